// Package it provides a multi-node in-process test harness for the cache:
// every node runs its real listeners and goroutines bound to ephemeral
// loopback ports inside the test process, instead of spawning subprocess
// binaries, so integration scenarios run fast and need no built binary on
// PATH.
package it

import (
	"context"
	"fmt"
	"testing"
	"time"

	"dcache/internal/apirouter"
	"dcache/internal/clock"
	"dcache/internal/hashring"
	"dcache/internal/logging"
	"dcache/internal/peerproto"
	"dcache/internal/publish"
	"dcache/internal/registry"
	"dcache/internal/repair"
	"dcache/internal/store"
	"dcache/internal/wire"
)

// NodeOpts configures one in-process node. Zero values fall back to small,
// fast-converging defaults suitable for tests.
type NodeOpts struct {
	MaxSize         int
	Replicas        int
	Redundancy      int
	PublishInterval time.Duration
	ExpiryWindow    time.Duration
	Deadline        time.Duration
	SeedAddr        string // another node's RequestAddr to join through
}

func (o NodeOpts) withDefaults() NodeOpts {
	if o.MaxSize == 0 {
		o.MaxSize = 4096
	}
	if o.Replicas == 0 {
		o.Replicas = 32
	}
	if o.Redundancy == 0 {
		o.Redundancy = 2
	}
	if o.PublishInterval == 0 {
		o.PublishInterval = 30 * time.Millisecond
	}
	if o.ExpiryWindow == 0 {
		o.ExpiryWindow = 150 * time.Millisecond
	}
	if o.Deadline == 0 {
		o.Deadline = 500 * time.Millisecond
	}
	return o
}

// Node is one in-process cluster member, wired the same way
// cmd/dcache-node wires a real process, bound to ephemeral ports.
type Node struct {
	ID          string
	RequestAddr string
	PublishAddr string
	APIAddr     string

	Registry *registry.Registry
	Store    *store.Store

	client          *wire.Dialer // a private dialer used by test helpers to hit the API socket
	requestListener *wire.Listener
	apiListener     *wire.Listener
	publisher       *wire.Publisher
	cancel          context.CancelFunc
}

// KillNode simulates a node crash ahead of its t.Cleanup teardown: every
// listener is closed immediately, so peers dialing it start seeing
// connection failures.
func KillNode(n *Node) {
	n.cancel()
	n.requestListener.Close()
	n.apiListener.Close()
	n.publisher.Close()
}

// StartNode brings up one node in-process and registers its teardown with
// t.Cleanup. If opts.SeedAddr is non-empty, it joins through that address
// before returning, failing the test if the join is rejected.
func StartNode(t *testing.T, nodeID string, opts NodeOpts) *Node {
	t.Helper()
	opts = opts.withDefaults()

	log := logging.New(nodeID)
	clk := clock.Wall{}

	router := &apirouter.Router{}
	peerHandler := &peerproto.Handler{}

	requestListener, err := wire.Listen("127.0.0.1:0", peerHandler.Handle)
	if err != nil {
		t.Fatalf("node %s: listen request: %v", nodeID, err)
	}
	apiListener, err := wire.Listen("127.0.0.1:0", router.Handle)
	if err != nil {
		t.Fatalf("node %s: listen api: %v", nodeID, err)
	}
	publisher, err := wire.NewPublisher("127.0.0.1:0")
	if err != nil {
		t.Fatalf("node %s: listen publish: %v", nodeID, err)
	}

	reg := registry.New(registry.Descriptor{
		NodeID:      nodeID,
		RequestAddr: requestListener.Addr(),
		PublishAddr: publisher.Addr(),
	}, clk)
	cacheStore := store.New(opts.MaxSize)
	dialer := wire.NewDialer(0)

	router.SelfID = nodeID
	router.Store = cacheStore
	router.Client = dialer
	router.Resolver = reg
	router.Clock = clk
	router.MaxSize = opts.MaxSize
	router.Deadline = opts.Deadline
	router.Log = log
	router.Repairer = &repair.Repairer{Client: dialer, Resolver: reg, Timeout: opts.Deadline, Log: log}

	peerHandler.Registry = reg
	peerHandler.Store = cacheStore
	peerHandler.Clock = clk
	peerHandler.Replicas = opts.Replicas
	peerHandler.Redundancy = opts.Redundancy
	peerHandler.Log = log
	peerHandler.Forward = func(addr string, payload [][]byte) {
		ctx, cancel := context.WithTimeout(context.Background(), opts.Deadline)
		defer cancel()
		dialer.Request(ctx, addr, payload)
	}

	rebuildRing := func(memberIDs []string) {
		router.SetRing(hashring.Build(opts.Replicas, opts.Redundancy, memberIDs))
	}
	rebuildRing(reg.MemberIDs())

	loop := publish.NewLoop(reg, publisher, opts.PublishInterval, opts.ExpiryWindow, wire.DefaultDialTimeout, log)
	reg.SetOnChange(func(memberIDs []string) {
		rebuildRing(memberIDs)
		loop.Reconcile(memberIDs)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go requestListener.Serve(ctx)
	go apiListener.Serve(ctx)
	go publisher.Serve(ctx)
	go loop.Run(ctx)

	t.Cleanup(func() {
		cancel()
		requestListener.Close()
		apiListener.Close()
		publisher.Close()
		dialer.Close()
	})

	n := &Node{
		ID:              nodeID,
		RequestAddr:     requestListener.Addr(),
		PublishAddr:     publisher.Addr(),
		APIAddr:         apiListener.Addr(),
		Registry:        reg,
		Store:           cacheStore,
		requestListener: requestListener,
		apiListener:     apiListener,
		publisher:       publisher,
		cancel:          cancel,
		client:          wire.NewDialer(0),
	}
	t.Cleanup(func() { n.client.Close() })

	if opts.SeedAddr != "" {
		if err := n.join(opts.SeedAddr, opts.Deadline); err != nil {
			t.Fatalf("node %s: join %s: %v", nodeID, opts.SeedAddr, err)
		}
	}
	return n
}

func (n *Node) join(seedAddr string, deadline time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()
	payload := [][]byte{
		[]byte("1"), []byte("connect"),
		[]byte(n.ID), []byte(n.RequestAddr), []byte(n.PublishAddr),
	}
	reply, err := n.client.Request(ctx, seedAddr, payload)
	if err != nil {
		return err
	}
	if len(reply) == 0 {
		return fmt.Errorf("connect reply: empty")
	}
	if string(reply[0]) != peerproto.NoError {
		return fmt.Errorf("connect reply: error code %s", reply[0])
	}
	if len(reply) < 4 {
		return fmt.Errorf("connect reply: malformed, got %d frames", len(reply))
	}
	n.Registry.Observe(registry.Descriptor{
		NodeID:      string(reply[1]),
		RequestAddr: string(reply[2]),
		PublishAddr: string(reply[3]),
	})
	return nil
}

// Set issues a client set request against this node's API socket.
func (n *Node) Set(ctx context.Context, key, value string) [][]byte {
	reply, err := n.client.Request(ctx, n.APIAddr, [][]byte{[]byte("1"), []byte("set"), []byte(key), []byte(value)})
	if err != nil {
		return [][]byte{[]byte(apirouter.Timeout)}
	}
	return reply
}

// Get issues a client get request against this node's API socket.
func (n *Node) Get(ctx context.Context, key string) [][]byte {
	reply, err := n.client.Request(ctx, n.APIAddr, [][]byte{[]byte("1"), []byte("get"), []byte(key)})
	if err != nil {
		return [][]byte{[]byte(apirouter.Timeout)}
	}
	return reply
}

// WaitForMembers polls until the node's Registry knows about every id in
// want, or fails the test after timeout.
func WaitForMembers(t *testing.T, n *Node, want []string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		known := true
		for _, id := range want {
			if !n.Registry.IsKnown(id) {
				known = false
				break
			}
		}
		if known {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("node %s: timed out waiting for members %v", n.ID, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
