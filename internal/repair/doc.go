// Package repair implements opportunistic, read-triggered anti-entropy: when
// an API router get fan-out sees divergent owner replies for a key, the node
// that answered the client asynchronously pushes the newest value to the
// owners still holding a stale one. It never blocks the client reply and
// never retries.
package repair
