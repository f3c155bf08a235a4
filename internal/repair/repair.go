package repair

import (
	"context"
	"time"

	"dcache/internal/clock"
	"dcache/internal/fanout"
	"dcache/internal/logging"
)

// PeerClient sends one request/reply round trip to a peer's request
// address. *dcache/internal/wire.Dialer satisfies this.
type PeerClient interface {
	Request(ctx context.Context, addr string, payload [][]byte) ([][]byte, error)
}

// AddrResolver resolves a node id to its peer request address.
type AddrResolver interface {
	PeerAddr(nodeID string) (string, bool)
}

// Winner picks the outcome with the latest timestamp among hits. ok is
// false if no owner had the key.
func Winner(outcomes []fanout.ReadOutcome) (fanout.ReadOutcome, bool) {
	var best fanout.ReadOutcome
	found := false
	for _, o := range outcomes {
		if !o.Hit {
			continue
		}
		if !found || o.Timestamp.After(best.Timestamp) {
			best = o
			found = true
		}
	}
	return best, found
}

// Stale returns every outcome that disagrees with winner: a miss where the
// winner hit, or a hit with a strictly older timestamp.
func Stale(outcomes []fanout.ReadOutcome, winner fanout.ReadOutcome) []fanout.ReadOutcome {
	var stale []fanout.ReadOutcome
	for _, o := range outcomes {
		if o.Owner == winner.Owner {
			continue
		}
		if !o.Hit || o.Timestamp.Before(winner.Timestamp) {
			stale = append(stale, o)
		}
	}
	return stale
}

// Repairer pushes a winning value to stale owners, fire-and-forget.
type Repairer struct {
	Client   PeerClient
	Resolver AddrResolver
	Timeout  time.Duration
	Log      *logging.Logger
}

// Repair sends key/winner's value to every stale owner asynchronously. It
// does not block the caller and does not retry a failed push.
func (r *Repairer) Repair(key string, winner fanout.ReadOutcome, stale []fanout.ReadOutcome) {
	if len(stale) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
		defer cancel()

		tsStr := clock.Format(winner.Timestamp)
		for _, s := range stale {
			addr, ok := r.Resolver.PeerAddr(s.Owner)
			if !ok {
				continue
			}
			payload := [][]byte{[]byte("1"), []byte("set"), []byte(key), []byte(winner.Value), []byte(tsStr)}
			if _, err := r.Client.Request(ctx, addr, payload); err != nil && r.Log != nil {
				r.Log.Printf("read repair to %s for key %s failed: %v", s.Owner, key, err)
			}
		}
	}()
}
