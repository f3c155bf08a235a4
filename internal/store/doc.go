// Package store implements the local cache store: an ordered key→(value,
// timestamp) map bounded by a maximum aggregate character budget, evicting
// oldest-by-install-order entries to make room for new writes. Eviction
// order is FIFO-by-install, chosen for determinism under test over an LRU
// alternative.
package store
