// Package wire implements the framed, multi-part message transport used
// between nodes: a framed request/reply socket, plus an independent
// publish/subscribe socket. Nothing in
// the retrieved example pack uses ZeroMQ or an equivalent library (see
// DESIGN.md), so this package is a small hand-rolled length-prefixed frame
// codec over net.Conn: the required stdlib exception for a concern no
// example library covers.
//
// Wire format for one message: a 4-byte big-endian frame count, followed by
// that many (4-byte big-endian length, payload) pairs. Listener and Dialer
// exchange bare payload frames over one connection per peer, with no
// routing ids. An envelope is zero or more routing-id frames, an empty
// delimiter frame, then payload frames; SplitEnvelope/Envelope.Frames
// convert between that logical shape and a flat frame list.
package wire
