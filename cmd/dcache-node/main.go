// Command dcache-node runs one node of the distributed in-memory KV cache:
// a peer request listener, a client API listener, and a membership publish
// socket, wired to the Registry, Ring Index, and Local Cache Store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"dcache/internal/apirouter"
	"dcache/internal/clock"
	"dcache/internal/config"
	"dcache/internal/hashring"
	"dcache/internal/logging"
	"dcache/internal/peerproto"
	"dcache/internal/publish"
	"dcache/internal/registry"
	"dcache/internal/repair"
	"dcache/internal/store"
	"dcache/internal/wire"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logging.New(cfg.NodeID)
	clk := clock.Wall{}

	reg := registry.New(registry.Descriptor{
		NodeID:      cfg.NodeID,
		RequestAddr: cfg.RequestAddr,
		PublishAddr: cfg.PublishAddr,
	}, clk)

	cacheStore := store.New(cfg.MaxSize)
	dialer := wire.NewDialer(0)

	router := &apirouter.Router{
		SelfID:   cfg.NodeID,
		Store:    cacheStore,
		Client:   dialer,
		Resolver: reg,
		Clock:    clk,
		MaxSize:  cfg.MaxSize,
		Deadline: cfg.RequestDeadline,
		Log:      log,
		Repairer: &repair.Repairer{
			Client:   dialer,
			Resolver: reg,
			Timeout:  cfg.RequestDeadline,
			Log:      log,
		},
	}

	peerHandler := &peerproto.Handler{
		Registry:   reg,
		Store:      cacheStore,
		Clock:      clk,
		Replicas:   cfg.Replicas,
		Redundancy: cfg.Redundancy,
		Log:        log,
		Forward: func(addr string, payload [][]byte) {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestDeadline)
			defer cancel()
			if _, err := dialer.Request(ctx, addr, payload); err != nil {
				log.Printf("forward connect to %s failed: %v", addr, err)
			}
		},
	}

	requestListener, err := wire.Listen(cfg.RequestAddr, peerHandler.Handle)
	if err != nil {
		log.Printf("listen request addr %s: %v", cfg.RequestAddr, err)
		os.Exit(1)
	}
	apiListener, err := wire.Listen(cfg.APIAddr, router.Handle)
	if err != nil {
		log.Printf("listen api addr %s: %v", cfg.APIAddr, err)
		os.Exit(1)
	}
	publisher, err := wire.NewPublisher(cfg.PublishAddr)
	if err != nil {
		log.Printf("listen publish addr %s: %v", cfg.PublishAddr, err)
		os.Exit(1)
	}

	rebuildRing := func(memberIDs []string) {
		router.SetRing(hashring.Build(cfg.Replicas, cfg.Redundancy, memberIDs))
	}
	rebuildRing(reg.MemberIDs())

	loop := publish.NewLoop(reg, publisher, cfg.PublishInterval, cfg.ExpiryWindow, wire.DefaultDialTimeout, log)
	reg.SetOnChange(func(memberIDs []string) {
		rebuildRing(memberIDs)
		loop.Reconcile(memberIDs)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := requestListener.Serve(ctx); err != nil {
			log.Printf("request listener stopped: %v", err)
		}
	}()
	go func() {
		if err := apiListener.Serve(ctx); err != nil {
			log.Printf("api listener stopped: %v", err)
		}
	}()
	go func() {
		if err := publisher.Serve(ctx); err != nil {
			log.Printf("publisher stopped: %v", err)
		}
	}()
	go loop.Run(ctx)

	if cfg.SeedAddr != "" {
		if err := join(ctx, cfg, dialer, reg, log); err != nil {
			log.Printf("join %s: %v", cfg.SeedAddr, err)
			os.Exit(1)
		}
	}

	log.Printf("serving request=%s publish=%s api=%s replicas=%d redundancy=%d",
		cfg.RequestAddr, cfg.PublishAddr, cfg.APIAddr, cfg.Replicas, cfg.Redundancy)

	<-ctx.Done()
	log.Printf("shutting down")

	requestListener.Close()
	apiListener.Close()
	publisher.Close()
	dialer.Close()
}

// join sends a connect request to the seed peer and adopts the reply into
// the local registry. It fails fast on a taken node id or a cluster-wide
// R/D mismatch rather than starting in a silently misconfigured state.
func join(ctx context.Context, cfg *config.Config, dialer *wire.Dialer, reg *registry.Registry, log *logging.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.RequestDeadline)
	defer cancel()

	payload := [][]byte{
		[]byte("1"), []byte("connect"),
		[]byte(cfg.NodeID), []byte(cfg.RequestAddr), []byte(cfg.PublishAddr),
	}
	reply, err := dialer.Request(ctx, cfg.SeedAddr, payload)
	if err != nil {
		return fmt.Errorf("connect request: %w", err)
	}
	if len(reply) == 0 {
		return fmt.Errorf("connect reply: empty")
	}
	switch string(reply[0]) {
	case peerproto.NoError:
	case peerproto.NodeIDTaken:
		return fmt.Errorf("node id %q already in use in this cluster", cfg.NodeID)
	default:
		return fmt.Errorf("connect reply: error code %s", reply[0])
	}
	if len(reply) < 6 {
		return fmt.Errorf("connect reply: malformed, got %d frames", len(reply))
	}

	seedID, seedReqAddr, seedPubAddr := string(reply[1]), string(reply[2]), string(reply[3])
	seedReplicas, err := strconv.Atoi(string(reply[4]))
	if err != nil {
		return fmt.Errorf("connect reply: malformed replicas: %w", err)
	}
	seedRedundancy, err := strconv.Atoi(string(reply[5]))
	if err != nil {
		return fmt.Errorf("connect reply: malformed redundancy: %w", err)
	}
	if seedReplicas != cfg.Replicas || seedRedundancy != cfg.Redundancy {
		return fmt.Errorf("cluster configuration mismatch: seed has replicas=%d redundancy=%d, this node has replicas=%d redundancy=%d",
			seedReplicas, seedRedundancy, cfg.Replicas, cfg.Redundancy)
	}

	reg.Observe(registry.Descriptor{NodeID: seedID, RequestAddr: seedReqAddr, PublishAddr: seedPubAddr})
	log.Printf("joined cluster through %s at %s", seedID, cfg.SeedAddr)
	return nil
}
