package apirouter

import (
	"context"
	"errors"
	"testing"
	"time"

	"dcache/internal/clock"
	"dcache/internal/hashring"
	"dcache/internal/store"
)

type fakeResolver map[string]string

func (f fakeResolver) PeerAddr(nodeID string) (string, bool) {
	addr, ok := f[nodeID]
	return addr, ok
}

type fakeClient struct {
	respond func(addr string, payload [][]byte) ([][]byte, error)
}

func (f fakeClient) Request(ctx context.Context, addr string, payload [][]byte) ([][]byte, error) {
	return f.respond(addr, payload)
}

func singleOwnerRing(self string) *hashring.Ring {
	return hashring.Build(5, 1, []string{self})
}

func bytesOf(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

func TestRouterSetGetSingleNodeLocal(t *testing.T) {
	r := &Router{
		SelfID:   "self",
		Store:    store.New(1024),
		Client:   fakeClient{},
		Resolver: fakeResolver{},
		Clock:    clock.Wall{},
		MaxSize:  1024,
		Deadline: time.Second,
	}
	r.SetRing(singleOwnerRing("self"))

	reply := r.Handle(context.Background(), bytesOf("1", "set", "alpha", "one"))
	if string(reply[0]) != NoError {
		t.Fatalf("set reply = %v, want no-error", reply)
	}

	reply = r.Handle(context.Background(), bytesOf("1", "get", "alpha"))
	if string(reply[0]) != NoError || string(reply[1]) != "one" {
		t.Errorf("get reply = %v, want [0, one]", reply)
	}
}

func TestRouterDeleteViaEmptyValue(t *testing.T) {
	r := &Router{
		SelfID: "self", Store: store.New(1024), Client: fakeClient{}, Resolver: fakeResolver{},
		Clock: clock.Wall{}, MaxSize: 1024, Deadline: time.Second,
	}
	r.SetRing(singleOwnerRing("self"))

	r.Handle(context.Background(), bytesOf("1", "set", "alpha", "one"))
	r.Handle(context.Background(), bytesOf("1", "set", "alpha", ""))
	reply := r.Handle(context.Background(), bytesOf("1", "get", "alpha"))
	if string(reply[0]) != NoError || string(reply[1]) != "" {
		t.Errorf("get reply = %v, want a miss", reply)
	}
}

func TestRouterSetTooBigRejectedAtIngress(t *testing.T) {
	r := &Router{
		SelfID: "self", Store: store.New(8), Client: fakeClient{}, Resolver: fakeResolver{},
		Clock: clock.Wall{}, MaxSize: 8, Deadline: time.Second,
	}
	r.SetRing(singleOwnerRing("self"))

	reply := r.Handle(context.Background(), bytesOf("1", "set", "key", "toolong!!"))
	if string(reply[0]) != TooBig {
		t.Errorf("reply = %v, want too-big", reply)
	}
}

func TestRouterSetFansOutToRemoteOwner(t *testing.T) {
	var gotAddr string
	var gotPayload [][]byte
	client := fakeClient{respond: func(addr string, payload [][]byte) ([][]byte, error) {
		gotAddr, gotPayload = addr, payload
		return bytesOf("0"), nil
	}}
	r := &Router{
		SelfID: "self", Store: store.New(1024), Client: client,
		Resolver: fakeResolver{"peer": "peer:9000"},
		Clock:    clock.Wall{}, MaxSize: 1024, Deadline: time.Second,
	}
	r.SetRing(hashring.Build(5, 2, []string{"self", "peer"}))

	reply := r.Handle(context.Background(), bytesOf("1", "set", "somekey", "value"))
	if string(reply[0]) != NoError {
		t.Fatalf("reply = %v, want no-error", reply)
	}
	if gotAddr != "peer:9000" {
		t.Errorf("dispatched to %q, want peer:9000", gotAddr)
	}
	if string(gotPayload[1]) != "set" {
		t.Errorf("payload verb = %q, want set", gotPayload[1])
	}
}

func TestRouterSetTimeoutOnUnreachablePeer(t *testing.T) {
	client := fakeClient{respond: func(addr string, payload [][]byte) ([][]byte, error) {
		return nil, errors.New("connection refused")
	}}
	r := &Router{
		SelfID: "self", Store: store.New(1024), Client: client,
		Resolver: fakeResolver{"peer": "peer:9000"},
		Clock:    clock.Wall{}, MaxSize: 1024, Deadline: 50 * time.Millisecond,
	}
	r.SetRing(hashring.Build(5, 2, []string{"self", "peer"}))

	reply := r.Handle(context.Background(), bytesOf("1", "set", "somekey", "value"))
	if string(reply[0]) != Timeout {
		t.Errorf("reply = %v, want timeout", reply)
	}
}

func TestRouterGetAfterTimeoutSetStillReturnsLocalCopy(t *testing.T) {
	client := fakeClient{respond: func(addr string, payload [][]byte) ([][]byte, error) {
		return nil, errors.New("unreachable")
	}}
	r := &Router{
		SelfID: "self", Store: store.New(1024), Client: client,
		Resolver: fakeResolver{"peer": "peer:9000"},
		Clock:    clock.Wall{}, MaxSize: 1024, Deadline: 50 * time.Millisecond,
	}
	r.SetRing(hashring.Build(5, 2, []string{"self", "peer"}))

	r.Handle(context.Background(), bytesOf("1", "set", "k", "v"))
	reply := r.Handle(context.Background(), bytesOf("1", "get", "k"))
	if string(reply[0]) != NoError || string(reply[1]) != "v" {
		t.Errorf("get reply = %v, want [0, v] (S6 scenario)", reply)
	}
}

func TestRouterGetFirstHitWins(t *testing.T) {
	client := fakeClient{respond: func(addr string, payload [][]byte) ([][]byte, error) {
		if addr == "slow" {
			time.Sleep(50 * time.Millisecond)
			return bytesOf("0", "slow-value", "2024:01:01:00:00:00"), nil
		}
		return bytesOf("0", "fast-value", "2024:01:01:00:00:00"), nil
	}}
	r := &Router{
		SelfID: "self", Store: store.New(1024), Client: client,
		Resolver: fakeResolver{"a": "slow", "b": "fast", "self": "self:addr"},
		Clock:    clock.Wall{}, MaxSize: 1024, Deadline: time.Second,
	}
	// Owners include only "a" and "b", not self, so both hits come over the wire.
	r.SetRing(hashring.Build(5, 2, []string{"a", "b"}))

	reply := r.Handle(context.Background(), bytesOf("1", "get", "somekey"))
	if string(reply[0]) != NoError {
		t.Fatalf("reply = %v, want no-error", reply)
	}
	if string(reply[1]) != "fast-value" {
		t.Errorf("reply value = %q, want the faster owner's %q", reply[1], "fast-value")
	}
}

func TestRouterRejectsBadVersion(t *testing.T) {
	r := &Router{SelfID: "self", Store: store.New(1024), Client: fakeClient{}, Resolver: fakeResolver{}, Clock: clock.Wall{}, MaxSize: 1024, Deadline: time.Second}
	reply := r.Handle(context.Background(), bytesOf("7", "get", "k"))
	if string(reply[0]) != VersionNotSupported {
		t.Errorf("reply = %v, want version-not-supported", reply)
	}
}
