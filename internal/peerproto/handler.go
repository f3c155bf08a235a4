package peerproto

import (
	"context"
	"strconv"

	"dcache/internal/clock"
	"dcache/internal/logging"
	"dcache/internal/registry"
	"dcache/internal/store"
)

// Error codes returned on the wire.
const (
	NoError              = "0"
	TooBig               = "1"
	NodeIDTaken          = "997"
	UnknownRequest       = "998"
	VersionNotSupported  = "999"
	supportedVersion     = "1"
	missTimestampLiteral = "0"
)

// ForwardFunc sends a fire-and-forget connect notice to addr, used to tell
// already-known peers about a node that just joined. Errors are not
// reported back to the caller: forwarding is best-effort.
type ForwardFunc func(addr string, payload [][]byte)

// Handler answers the peer request protocol by delegating to a local cache
// store and a membership registry.
type Handler struct {
	Registry   *registry.Registry
	Store      *store.Store
	Clock      clock.Clock
	Replicas   int
	Redundancy int
	Forward    ForwardFunc
	Log        *logging.Logger
}

// Handle implements wire.Handler.
func (h *Handler) Handle(ctx context.Context, payload [][]byte) [][]byte {
	if len(payload) == 0 {
		return frame(UnknownRequest)
	}
	if string(payload[0]) != supportedVersion {
		return frame(VersionNotSupported)
	}
	if len(payload) < 2 {
		return frame(UnknownRequest)
	}
	verb := string(payload[1])
	params := payload[2:]
	switch verb {
	case "set":
		return h.handleSet(params)
	case "get":
		return h.handleGet(params)
	case "connect":
		return h.handleConnect(params)
	default:
		return frame(UnknownRequest)
	}
}

func (h *Handler) handleSet(params [][]byte) [][]byte {
	if len(params) < 3 {
		return frame(UnknownRequest)
	}
	key := string(params[0])
	value := string(params[1])
	ts, err := clock.Parse(string(params[2]))
	if err != nil {
		return frame(UnknownRequest)
	}
	switch h.Store.Put(key, value, ts) {
	case store.TooBig:
		return frame(TooBig)
	default:
		return frame(NoError)
	}
}

func (h *Handler) handleGet(params [][]byte) [][]byte {
	if len(params) < 1 {
		return frame(UnknownRequest)
	}
	key := string(params[0])
	entry, ok := h.Store.Get(key)
	if !ok {
		return frame(NoError, "", missTimestampLiteral)
	}
	return frame(NoError, entry.Value, clock.Format(entry.Timestamp))
}

func (h *Handler) handleConnect(params [][]byte) [][]byte {
	if len(params) < 3 {
		return frame(UnknownRequest)
	}
	nodeID := string(params[0])
	reqAddr := string(params[1])
	pubAddr := string(params[2])

	if h.Registry.IsKnown(nodeID) {
		return frame(NodeIDTaken)
	}

	h.Registry.Observe(registry.Descriptor{NodeID: nodeID, RequestAddr: reqAddr, PublishAddr: pubAddr})
	h.logf("peer %s joined at %s", nodeID, reqAddr)

	h.forwardJoin(nodeID, reqAddr, pubAddr)

	self := h.Registry.Self()
	return frame(NoError, self.NodeID, self.RequestAddr, self.PublishAddr,
		strconv.Itoa(h.Replicas), strconv.Itoa(h.Redundancy))
}

// forwardJoin tells every other already-known peer about the new node,
// fire-and-forget. It does not wait for replies.
func (h *Handler) forwardJoin(nodeID, reqAddr, pubAddr string) {
	if h.Forward == nil {
		return
	}
	notice := frame(supportedVersion, "connect", nodeID, reqAddr, pubAddr)
	for _, id := range h.Registry.MemberIDs() {
		if id == h.Registry.Self().NodeID || id == nodeID {
			continue
		}
		addr, ok := h.Registry.PeerAddr(id)
		if !ok {
			continue
		}
		go h.Forward(addr, notice)
	}
}

func (h *Handler) logf(format string, args ...interface{}) {
	if h.Log == nil {
		return
	}
	h.Log.Printf(format, args...)
}

func frame(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

