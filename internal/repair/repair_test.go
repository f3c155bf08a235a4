package repair

import (
	"context"
	"sync"
	"testing"
	"time"

	"dcache/internal/fanout"
)

func at(seconds int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, seconds, 0, time.UTC)
}

func TestWinnerPicksLatestTimestamp(t *testing.T) {
	outcomes := []fanout.ReadOutcome{
		{Owner: "a", Value: "old", Timestamp: at(1), Hit: true},
		{Owner: "b", Value: "new", Timestamp: at(5), Hit: true},
	}
	w, ok := Winner(outcomes)
	if !ok || w.Owner != "b" || w.Value != "new" {
		t.Errorf("Winner() = %+v, ok=%v, want owner b", w, ok)
	}
}

func TestWinnerAllMissIsNotFound(t *testing.T) {
	outcomes := []fanout.ReadOutcome{{Owner: "a"}, {Owner: "b"}}
	_, ok := Winner(outcomes)
	if ok {
		t.Error("Winner() reported found when every outcome missed")
	}
}

func TestStaleIncludesOlderHitsAndMisses(t *testing.T) {
	winner := fanout.ReadOutcome{Owner: "b", Value: "new", Timestamp: at(5), Hit: true}
	outcomes := []fanout.ReadOutcome{
		winner,
		{Owner: "a", Value: "old", Timestamp: at(1), Hit: true},
		{Owner: "c", Hit: false},
	}
	stale := Stale(outcomes, winner)
	if len(stale) != 2 {
		t.Fatalf("Stale() = %v, want 2 entries", stale)
	}
	owners := map[string]bool{}
	for _, s := range stale {
		owners[s.Owner] = true
	}
	if !owners["a"] || !owners["c"] {
		t.Errorf("Stale() owners = %v, want a and c", owners)
	}
}

func TestStaleExcludesWinnerItself(t *testing.T) {
	winner := fanout.ReadOutcome{Owner: "b", Value: "new", Timestamp: at(5), Hit: true}
	stale := Stale([]fanout.ReadOutcome{winner}, winner)
	if len(stale) != 0 {
		t.Errorf("Stale() = %v, want empty (winner excluded)", stale)
	}
}

type fakeResolver map[string]string

func (f fakeResolver) PeerAddr(nodeID string) (string, bool) {
	addr, ok := f[nodeID]
	return addr, ok
}

type fakeClient struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeClient) Request(ctx context.Context, addr string, payload [][]byte) ([][]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, addr)
	f.mu.Unlock()
	return [][]byte{[]byte("0")}, nil
}

func TestRepairPushesToStaleOwnersOnly(t *testing.T) {
	client := &fakeClient{}
	r := &Repairer{Client: client, Resolver: fakeResolver{"a": "a:addr"}, Timeout: time.Second}

	winner := fanout.ReadOutcome{Owner: "b", Value: "new", Timestamp: at(5), Hit: true}
	stale := []fanout.ReadOutcome{{Owner: "a", Value: "old", Timestamp: at(1), Hit: true}}
	r.Repair("key", winner, stale)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		client.mu.Lock()
		n := len(client.calls)
		client.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.calls) != 1 || client.calls[0] != "a:addr" {
		t.Errorf("calls = %v, want one call to a:addr", client.calls)
	}
}

func TestRepairNoStaleDoesNothing(t *testing.T) {
	client := &fakeClient{}
	r := &Repairer{Client: client, Resolver: fakeResolver{}, Timeout: time.Second}
	r.Repair("key", fanout.ReadOutcome{Owner: "b", Hit: true}, nil)

	time.Sleep(50 * time.Millisecond)
	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.calls) != 0 {
		t.Errorf("calls = %v, want none", client.calls)
	}
}
