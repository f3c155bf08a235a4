package publish

import (
	"dcache/internal/clock"
	"dcache/internal/registry"
)

// topic is the single-byte frame every published message starts with.
const topic = "n"

// encodeSnapshot serializes a Registry snapshot as the topic frame followed
// by (NODE-ID, REQUEST-ADDR, PUBLISH-ADDR, LAST-SEEN) frames per node.
func encodeSnapshot(snap map[string]registry.Descriptor) [][]byte {
	frames := make([][]byte, 0, 1+4*len(snap))
	frames = append(frames, []byte(topic))
	for _, d := range snap {
		frames = append(frames,
			[]byte(d.NodeID),
			[]byte(d.RequestAddr),
			[]byte(d.PublishAddr),
			[]byte(clock.Format(d.LastSeen)),
		)
	}
	return frames
}

// decodeSnapshot parses a published message back into descriptors.
// Malformed tuples are skipped rather than aborting the whole message:
// publication is best-effort and lossy.
func decodeSnapshot(frames [][]byte) []registry.Descriptor {
	if len(frames) == 0 || string(frames[0]) != topic {
		return nil
	}
	body := frames[1:]
	out := make([]registry.Descriptor, 0, len(body)/4)
	for i := 0; i+3 < len(body); i += 4 {
		ts, err := clock.Parse(string(body[i+3]))
		if err != nil {
			continue
		}
		out = append(out, registry.Descriptor{
			NodeID:      string(body[i]),
			RequestAddr: string(body[i+1]),
			PublishAddr: string(body[i+2]),
			LastSeen:    ts,
		})
	}
	return out
}
