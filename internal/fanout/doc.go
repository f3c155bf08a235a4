// Package fanout dispatches one client request to a key's owner set in
// parallel and aggregates the replies: a write requires every owner to
// answer no-error, a read returns the first non-empty hit. Both operations
// honor a single deadline for the whole fan-out; replies that arrive after
// it are discarded.
package fanout
