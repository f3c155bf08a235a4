package wire

import "errors"

// ErrNoDelimiter is returned when a frame list has no empty delimiter frame
// separating routing ids from payload.
var ErrNoDelimiter = errors.New("wire: message has no envelope delimiter")

// Envelope is zero or more routing ids accumulated by intermediary sockets,
// an empty delimiter frame, then the payload frames a protocol handler
// actually cares about.
type Envelope struct {
	RoutingIDs [][]byte
	Payload    [][]byte
}

// SplitEnvelope locates the first empty frame in frames and splits it into
// routing ids and payload. A reply built from the same Envelope (see
// Frames) retains the identical routing-id prefix, so a transport that
// multiplexes many peers over one socket can still route the reply home.
func SplitEnvelope(frames [][]byte) (Envelope, error) {
	for i, f := range frames {
		if len(f) == 0 {
			ids := make([][]byte, i)
			copy(ids, frames[:i])
			payload := make([][]byte, len(frames)-i-1)
			copy(payload, frames[i+1:])
			return Envelope{RoutingIDs: ids, Payload: payload}, nil
		}
	}
	return Envelope{}, ErrNoDelimiter
}

// Frames reassembles the flat frame list WriteMessage expects.
func (e Envelope) Frames() [][]byte {
	out := make([][]byte, 0, len(e.RoutingIDs)+1+len(e.Payload))
	out = append(out, e.RoutingIDs...)
	out = append(out, []byte{})
	out = append(out, e.Payload...)
	return out
}

// Reply builds a new Envelope with the same routing-id prefix and the given
// payload, for sending a response back through the same intermediaries.
func (e Envelope) Reply(payload ...[]byte) Envelope {
	return Envelope{RoutingIDs: e.RoutingIDs, Payload: payload}
}
