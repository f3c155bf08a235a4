package hashring

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// DefaultReplicas and DefaultRedundancy are the cluster-wide defaults when
// no override is configured.
const (
	DefaultReplicas   = 5
	DefaultRedundancy = 3
)

// vpos is one virtual position on one ring.
type vpos struct {
	pos  uint64
	node string
}

// Ring is an immutable snapshot of D independent consistent-hashing rings,
// R virtual positions per node each. A Ring is never mutated after Build;
// membership changes produce a new Ring that atomically replaces the old
// one.
type Ring struct {
	replicas   int
	redundancy int
	rings      [][]vpos // len == redundancy, each sorted by pos then node
}

// Build deterministically derives a Ring from the given peer set. Equal
// nodes slices (regardless of input order, since it is sorted internally by
// hash) always produce byte-identical rings.
func Build(replicas, redundancy int, nodes []string) *Ring {
	if replicas <= 0 {
		replicas = DefaultReplicas
	}
	if redundancy <= 0 {
		redundancy = DefaultRedundancy
	}

	r := &Ring{
		replicas:   replicas,
		redundancy: redundancy,
		rings:      make([][]vpos, redundancy),
	}

	for d := 0; d < redundancy; d++ {
		positions := make([]vpos, 0, len(nodes)*replicas)
		for _, node := range nodes {
			for rep := 0; rep < replicas; rep++ {
				positions = append(positions, vpos{
					pos:  position(node, d, rep),
					node: node,
				})
			}
		}
		// Sort by position; break ties lexicographically by node id so
		// collisions resolve deterministically.
		sort.Slice(positions, func(i, j int) bool {
			if positions[i].pos != positions[j].pos {
				return positions[i].pos < positions[j].pos
			}
			return positions[i].node < positions[j].node
		})
		r.rings[d] = positions
	}

	return r
}

// position computes the virtual-node position for (node, ring index d,
// replica index rep): hash(node_id ∥ d ∥ r). The result is a uint64 drawn
// uniformly from [0, 2^64); comparing and sorting these is equivalent to
// comparing fractional positions in [0, 1), since dividing by 2^64 is a
// monotonic bijection.
func position(node string, d, rep int) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%s|%d|%d", node, d, rep))
}

// keyPosition computes a key's position using the same hash family as node
// positions, so keys and nodes land in the same space.
func keyPosition(key string) uint64 {
	return xxhash.Sum64String(key)
}

// Owners returns the D-tuple of owner node ids for key, one per ring,
// deduplicated while preserving first-seen order. Returns nil if the ring
// has no nodes.
func (r *Ring) Owners(key string) []string {
	if r == nil || len(r.rings) == 0 {
		return nil
	}
	kp := keyPosition(key)

	seen := make(map[string]struct{}, r.redundancy)
	owners := make([]string, 0, r.redundancy)
	for _, ring := range r.rings {
		if len(ring) == 0 {
			continue
		}
		idx := sort.Search(len(ring), func(i int) bool {
			return ring[i].pos >= kp
		})
		if idx == len(ring) {
			idx = 0 // wrap to the first entry
		}
		owner := ring[idx].node
		if _, dup := seen[owner]; dup {
			continue
		}
		seen[owner] = struct{}{}
		owners = append(owners, owner)
	}
	if len(owners) == 0 {
		return nil
	}
	return owners
}

// Replicas returns R, the configured virtual positions per node per ring.
func (r *Ring) Replicas() int { return r.replicas }

// Redundancy returns D, the configured number of independent rings.
func (r *Ring) Redundancy() int { return r.redundancy }

// Empty reports whether the ring has no member nodes.
func (r *Ring) Empty() bool {
	if r == nil {
		return true
	}
	for _, ring := range r.rings {
		if len(ring) > 0 {
			return false
		}
	}
	return true
}
