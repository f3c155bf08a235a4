// Package clock provides the wall-clock abstraction used for cache entry
// timestamps and their wire format. Timestamps drive last-writer-wins
// resolution in internal/store, so the clock is kept behind an interface to
// make ordering deterministic under test.
package clock
