// Package logging provides a small node-id-prefixed wrapper around the
// standard library's log.Logger, for operational tracing of cluster
// membership and request handling.
package logging
