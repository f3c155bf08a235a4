package apirouter

import (
	"context"
	"errors"
	"sync"
	"time"

	"dcache/internal/clock"
	"dcache/internal/fanout"
	"dcache/internal/hashring"
	"dcache/internal/logging"
	"dcache/internal/peerproto"
	"dcache/internal/repair"
	"dcache/internal/store"
)

// errUnresolvedOwner marks an owner the Registry no longer knows an
// address for; fanout treats it as a missing reply, same as a transport
// failure.
var errUnresolvedOwner = errors.New("apirouter: owner has no known address")

// API protocol error codes: "1" and "998"/"999" are shared with the peer
// protocol; "2" (timeout) is API-only.
const (
	NoError             = peerproto.NoError
	TooBig              = peerproto.TooBig
	Timeout             = "2"
	UnknownRequest      = peerproto.UnknownRequest
	VersionNotSupported = peerproto.VersionNotSupported
	supportedVersion    = "1"
)

// PeerClient sends one request/reply round trip to a peer's request
// address. *dcache/internal/wire.Dialer satisfies this.
type PeerClient interface {
	Request(ctx context.Context, addr string, payload [][]byte) ([][]byte, error)
}

// AddrResolver resolves a node id to its peer request address.
// *dcache/internal/registry.Registry satisfies this.
type AddrResolver interface {
	PeerAddr(nodeID string) (string, bool)
}

// Router is the client-facing API router.
type Router struct {
	SelfID   string
	Store    *store.Store
	Client   PeerClient
	Resolver AddrResolver
	Clock    clock.Clock
	MaxSize  int
	Deadline time.Duration
	Log      *logging.Logger

	// Repairer, if set, is used after a get that hit and has more than one
	// owner: every owner is re-polled in the background and the winning
	// value is pushed to stale owners. Nil disables read repair.
	Repairer *repair.Repairer

	mu   sync.RWMutex
	ring *hashring.Ring
}

// SetRing atomically replaces the ring used to compute owner tuples. Called
// whenever the Membership Registry signals a membership delta.
func (r *Router) SetRing(ring *hashring.Ring) {
	r.mu.Lock()
	r.ring = ring
	r.mu.Unlock()
}

func (r *Router) currentRing() *hashring.Ring {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ring
}

// Handle implements wire.Handler for the client-facing API protocol: set
// and get, version-gated the same way the peer protocol is.
func (r *Router) Handle(ctx context.Context, payload [][]byte) [][]byte {
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
		return r.handleSet(ctx, params)
	case "get":
		return r.handleGet(ctx, params)
	default:
		return frame(UnknownRequest)
	}
}

func (r *Router) handleSet(ctx context.Context, params [][]byte) [][]byte {
	if len(params) < 2 {
		return frame(UnknownRequest)
	}
	key, value := string(params[0]), string(params[1])
	if len(key)+len(value) > r.MaxSize {
		return frame(TooBig)
	}

	owners := r.ownersFor(key)
	ts := r.Clock.Now()
	tsStr := clock.Format(ts)

	result := fanout.Write(ctx, owners, r.Deadline, func(ctx context.Context, owner string) (fanout.WriteResult, error) {
		if owner == r.SelfID {
			if r.Store.Put(key, value, ts) == store.TooBig {
				return fanout.WriteTooBig, nil
			}
			return fanout.WriteOK, nil
		}
		addr, ok := r.Resolver.PeerAddr(owner)
		if !ok {
			return fanout.WriteTimeout, errUnresolvedOwner
		}
		reply, err := r.Client.Request(ctx, addr, frame(supportedVersion, "set", key, value, tsStr))
		if err != nil {
			return fanout.WriteTimeout, err
		}
		if len(reply) == 0 {
			return fanout.WriteUnknown, nil
		}
		switch string(reply[0]) {
		case peerproto.NoError:
			return fanout.WriteOK, nil
		case peerproto.TooBig:
			return fanout.WriteTooBig, nil
		default:
			return fanout.WriteUnknown, nil
		}
	})

	switch result {
	case fanout.WriteOK:
		return frame(NoError)
	case fanout.WriteTooBig:
		return frame(TooBig)
	case fanout.WriteTimeout:
		return frame(Timeout)
	default:
		return frame(UnknownRequest)
	}
}

func (r *Router) handleGet(ctx context.Context, params [][]byte) [][]byte {
	if len(params) < 1 {
		return frame(UnknownRequest)
	}
	key := string(params[0])
	owners := r.ownersFor(key)
	readFn := r.readOwnerFn(key)

	value, _, hit := fanout.Read(ctx, owners, r.Deadline, readFn)

	if hit && len(owners) > 1 && r.Repairer != nil {
		go r.repairInBackground(key, owners, readFn)
	}

	if !hit {
		return frame(NoError, "")
	}
	return frame(NoError, value)
}

// readOwnerFn returns a fanout.ReadFn closed over key, shared by the
// client-facing fast path and the off-critical-path repair scan.
func (r *Router) readOwnerFn(key string) fanout.ReadFn {
	return func(ctx context.Context, owner string) (string, time.Time, bool, error) {
		if owner == r.SelfID {
			entry, ok := r.Store.Get(key)
			if !ok {
				return "", time.Time{}, false, nil
			}
			return entry.Value, entry.Timestamp, true, nil
		}
		addr, ok := r.Resolver.PeerAddr(owner)
		if !ok {
			return "", time.Time{}, false, errUnresolvedOwner
		}
		reply, err := r.Client.Request(ctx, addr, frame(supportedVersion, "get", key))
		if err != nil {
			return "", time.Time{}, false, err
		}
		if len(reply) < 3 || string(reply[0]) != peerproto.NoError || len(reply[1]) == 0 {
			return "", time.Time{}, false, nil
		}
		ts, parseErr := clock.Parse(string(reply[2]))
		if parseErr != nil {
			ts = time.Time{}
		}
		return string(reply[1]), ts, true, nil
	}
}

// repairInBackground re-polls every owner (detached from the client's
// deadline) and pushes the newest value to any owner still holding a
// stale one. It runs after the client has already been answered.
func (r *Router) repairInBackground(key string, owners []string, readFn fanout.ReadFn) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Deadline)
	defer cancel()

	outcomes := fanout.ReadAll(ctx, owners, r.Deadline, readFn)
	winner, ok := repair.Winner(outcomes)
	if !ok {
		return
	}
	stale := repair.Stale(outcomes, winner)
	r.Repairer.Repair(key, winner, stale)
}

func (r *Router) ownersFor(key string) []string {
	ring := r.currentRing()
	if ring == nil || ring.Empty() {
		return []string{r.SelfID}
	}
	return ring.Owners(key)
}

func frame(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}
