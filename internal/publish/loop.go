package publish

import (
	"context"
	"sync"
	"time"

	"dcache/internal/logging"
	"dcache/internal/registry"
	"dcache/internal/wire"
)

// subscribeRetryDelay bounds how quickly a dropped subscription redials,
// so a peer that is briefly down does not busy-loop the subscriber.
const subscribeRetryDelay = time.Second

// Loop owns the publish timer and the set of live subscriptions.
type Loop struct {
	Registry        *registry.Registry
	Publisher       *wire.Publisher
	PublishInterval time.Duration
	ExpiryWindow    time.Duration
	DialTimeout     time.Duration
	Log             *logging.Logger

	mu      sync.Mutex
	ctx     context.Context
	subs    map[string]context.CancelFunc // node id -> cancel for its subscription goroutine
	subAddr map[string]string             // node id -> publish address currently subscribed to
}

// NewLoop creates a Loop. Reconcile calls made before Run are no-ops; Run
// reconciles against the Registry's membership when it starts, so peers
// already known at that point (e.g. after a bootstrap connect) get
// subscriptions.
func NewLoop(reg *registry.Registry, pub *wire.Publisher, publishInterval, expiryWindow, dialTimeout time.Duration, log *logging.Logger) *Loop {
	return &Loop{
		Registry:        reg,
		Publisher:       pub,
		PublishInterval: publishInterval,
		ExpiryWindow:    expiryWindow,
		DialTimeout:     dialTimeout,
		Log:             log,
		subs:            make(map[string]context.CancelFunc),
		subAddr:         make(map[string]string),
	}
}

// Run drives the publish timer and the expiry sweeper until ctx is
// cancelled. It does not itself install Reconcile as the Registry's
// onChange hook: the caller composes that with any other recompute hooks
// (e.g. ring rebuild) and calls SetOnChange once.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()

	l.Reconcile(l.Registry.MemberIDs())

	publishTicker := time.NewTicker(l.PublishInterval)
	defer publishTicker.Stop()

	sweepInterval := l.ExpiryWindow / 3
	if sweepInterval <= 0 {
		sweepInterval = time.Second
	}
	sweepTicker := time.NewTicker(sweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.stopAll()
			return
		case <-publishTicker.C:
			l.publishSnapshot()
		case <-sweepTicker.C:
			l.Registry.Sweep(l.ExpiryWindow)
		}
	}
}

func (l *Loop) publishSnapshot() {
	snap := l.Registry.Snapshot()
	l.Publisher.Publish(encodeSnapshot(snap))
}

// Reconcile brings the live subscription set in line with the current
// Registry membership: a subscription per peer publish address, added for
// new peers and torn down for removed ones. Safe to call as the Registry's
// onChange hook.
func (l *Loop) Reconcile(memberIDs []string) {
	desired := l.Registry.PublishAddrs() // peers only, self excluded

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx == nil {
		return // Run hasn't started yet; the initial Reconcile inside Run will catch up
	}

	for id, addr := range desired {
		if existingAddr, ok := l.subAddr[id]; ok && existingAddr == addr {
			continue
		}
		if cancel, ok := l.subs[id]; ok {
			cancel() // address changed; restart the subscription
		}
		subCtx, cancel := context.WithCancel(l.ctx)
		l.subs[id] = cancel
		l.subAddr[id] = addr
		go l.runSubscription(subCtx, id, addr)
	}
	for id, cancel := range l.subs {
		if _, ok := desired[id]; !ok {
			cancel()
			delete(l.subs, id)
			delete(l.subAddr, id)
		}
	}
}

func (l *Loop) runSubscription(ctx context.Context, nodeID, addr string) {
	for {
		err := wire.Subscribe(ctx, addr, l.DialTimeout, l.handleSnapshot)
		if ctx.Err() != nil {
			return
		}
		if l.Log != nil {
			l.Log.Printf("subscription to %s (%s) dropped: %v; retrying", nodeID, addr, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(subscribeRetryDelay):
		}
	}
}

func (l *Loop) handleSnapshot(frames [][]byte) {
	for _, d := range decodeSnapshot(frames) {
		if d.NodeID == l.Registry.Self().NodeID {
			continue
		}
		l.Registry.Observe(d)
	}
}

func (l *Loop) stopAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, cancel := range l.subs {
		cancel()
		delete(l.subs, id)
		delete(l.subAddr, id)
	}
}
