// Package peerproto implements the peer-facing request dispatcher: it answers
// set/get/connect frames from other nodes, delegating to the local cache
// store and the membership registry.
package peerproto
