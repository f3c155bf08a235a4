// Package registry implements the membership registry: the set of known
// peers, each with a last-seen timestamp, updated by incoming publications
// and by the join handshake. It owns no networking of its own (internal/
// publish and internal/peerproto call into it), but it does own the
// recompute hook that tells internal/hashring to rebuild whenever the peer
// set changes, since ring recomputation must never be skipped on a
// membership delta.
package registry
