package registry

import (
	"sort"
	"sync"
	"time"

	"dcache/internal/clock"
)

// Descriptor is a node's membership record. PublishAddr and RequestAddr are
// informational: the latest incoming descriptor for a node_id always wins,
// so a node that restarts on a new address is picked up automatically.
type Descriptor struct {
	NodeID      string
	RequestAddr string
	PublishAddr string
	LastSeen    time.Time
}

// Registry is the Membership Registry. The local node is always a member of
// its own view; it is tracked separately from peers so its last-seen can be
// synthesized fresh on every Snapshot rather than drifting.
type Registry struct {
	mu    sync.RWMutex
	self  Descriptor
	peers map[string]Descriptor
	clock clock.Clock

	onChange func(memberIDs []string)
}

// New creates a Registry for the local node described by self.
func New(self Descriptor, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.Wall{}
	}
	return &Registry{
		self:  self,
		peers: make(map[string]Descriptor),
		clock: clk,
	}
}

// SetOnChange installs the recompute hook invoked whenever a membership
// delta (add, address change, or removal) occurs. The callback receives the
// current full member id list (self included).
func (r *Registry) SetOnChange(fn func(memberIDs []string)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Observe upserts a peer descriptor by node_id. The descriptor's own
// LastSeen field is ignored; last_seen is always set to the
// time this merge observed it, not the sender's clock. A descriptor whose
// node_id is the local node is a no-op (callers, namely internal/publish,
// are expected to filter these before calling Observe, but Registry
// enforces it defensively too).
func (r *Registry) Observe(d Descriptor) (changed bool) {
	if d.NodeID == r.self.NodeID {
		return false
	}

	now := r.clock.Now()
	r.mu.Lock()
	existing, known := r.peers[d.NodeID]
	changed = !known || existing.RequestAddr != d.RequestAddr || existing.PublishAddr != d.PublishAddr
	r.peers[d.NodeID] = Descriptor{
		NodeID:      d.NodeID,
		RequestAddr: d.RequestAddr,
		PublishAddr: d.PublishAddr,
		LastSeen:    now,
	}
	ids := r.memberIDsLocked()
	r.mu.Unlock()

	if changed {
		r.notify(ids)
	}
	return changed
}

// Sweep removes every peer (never the local node) whose last-seen age
// exceeds maxAge, returning the removed node ids. A non-empty result
// triggers the recompute hook.
func (r *Registry) Sweep(maxAge time.Duration) []string {
	now := r.clock.Now()

	r.mu.Lock()
	var removed []string
	for id, d := range r.peers {
		if now.Sub(d.LastSeen) > maxAge {
			delete(r.peers, id)
			removed = append(removed, id)
		}
	}
	ids := r.memberIDsLocked()
	r.mu.Unlock()

	if len(removed) > 0 {
		sort.Strings(removed)
		r.notify(ids)
	}
	return removed
}

// Snapshot returns the current view for publication, including the local
// node with a freshly stamped last-seen time.
func (r *Registry) Snapshot() map[string]Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Descriptor, len(r.peers)+1)
	for id, d := range r.peers {
		out[id] = d
	}
	self := r.self
	self.LastSeen = r.clock.Now()
	out[self.NodeID] = self
	return out
}

// IsKnown reports whether node_id is a member of the current view, self
// included (used by the connect handler to reject a taken node id).
func (r *Registry) IsKnown(nodeID string) bool {
	if nodeID == r.self.NodeID {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[nodeID]
	return ok
}

// Self returns the local node's descriptor.
func (r *Registry) Self() Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	self := r.self
	self.LastSeen = r.clock.Now()
	return self
}

// MemberIDs returns the sorted ids of every member, self included. Sorting
// makes the slice a stable input to internal/hashring.Build, though Build
// itself is order-independent.
func (r *Registry) MemberIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.memberIDsLocked()
}

func (r *Registry) memberIDsLocked() []string {
	ids := make([]string, 0, len(r.peers)+1)
	ids = append(ids, r.self.NodeID)
	for id := range r.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PeerAddr returns the request address to dial for a known peer.
func (r *Registry) PeerAddr(nodeID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.peers[nodeID]
	if !ok {
		return "", false
	}
	return d.RequestAddr, true
}

// PublishAddrs returns the publish address of every currently known peer,
// used by internal/publish to drive the subscription set.
func (r *Registry) PublishAddrs() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.peers))
	for id, d := range r.peers {
		out[id] = d.PublishAddr
	}
	return out
}

func (r *Registry) notify(ids []string) {
	r.mu.RLock()
	fn := r.onChange
	r.mu.RUnlock()
	if fn != nil {
		fn(ids)
	}
}
