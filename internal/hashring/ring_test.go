package hashring

import "testing"

func TestOwnersDeterministic(t *testing.T) {
	nodes := []string{"a", "b", "c", "d"}
	r1 := Build(8, 3, nodes)
	r2 := Build(8, 3, nodes)

	keys := []string{"alpha", "beta", "gamma", "user:123", "a-long-key-here"}
	for _, k := range keys {
		o1 := r1.Owners(k)
		o2 := r2.Owners(k)
		if len(o1) != len(o2) {
			t.Fatalf("Owners(%q) length mismatch: %v vs %v", k, o1, o2)
		}
		for i := range o1 {
			if o1[i] != o2[i] {
				t.Errorf("Owners(%q)[%d] = %q, want %q", k, i, o1[i], o2[i])
			}
		}
	}
}

func TestOwnersOrderIndependentOfInputOrder(t *testing.T) {
	r1 := Build(8, 3, []string{"a", "b", "c"})
	r2 := Build(8, 3, []string{"c", "a", "b"})

	for _, k := range []string{"x", "y", "z", "k1"} {
		o1, o2 := r1.Owners(k), r2.Owners(k)
		if len(o1) != len(o2) {
			t.Fatalf("len mismatch for %q: %v vs %v", k, o1, o2)
		}
		for i := range o1 {
			if o1[i] != o2[i] {
				t.Errorf("Owners(%q)[%d] = %q, want %q (input order must not matter)", k, i, o1[i], o2[i])
			}
		}
	}
}

func TestOwnersDeduplicated(t *testing.T) {
	// A single-node ring must always collapse the D-tuple to one owner.
	r := Build(8, 4, []string{"solo"})
	owners := r.Owners("any-key")
	if len(owners) != 1 {
		t.Fatalf("Owners() with one node and D=4 = %v, want exactly 1 entry after dedup", owners)
	}
	if owners[0] != "solo" {
		t.Errorf("Owners()[0] = %q, want %q", owners[0], "solo")
	}
}

func TestOwnersEmptyRing(t *testing.T) {
	r := Build(8, 3, nil)
	if owners := r.Owners("key"); owners != nil {
		t.Errorf("Owners() on empty ring = %v, want nil", owners)
	}
	if !r.Empty() {
		t.Error("Empty() = false, want true for a ring with no nodes")
	}
}

func TestOwnersWraparound(t *testing.T) {
	// Regardless of where a key's hash lands relative to the largest
	// position in a ring, every ring must still yield an owner (the binary
	// search wraps to the first entry rather than falling off the end).
	r := Build(4, 1, []string{"only"})
	for _, k := range []string{"a", "bbbbbbbbbbbbbbb", "", "zzzzzzzzzzzzzzzzzzzzz"} {
		owners := r.Owners(k)
		if len(owners) != 1 || owners[0] != "only" {
			t.Errorf("Owners(%q) = %v, want [\"only\"]", k, owners)
		}
	}
}

func TestDistributionAcrossNodes(t *testing.T) {
	nodes := []string{"n1", "n2", "n3", "n4", "n5"}
	r := Build(128, 1, nodes)

	counts := make(map[string]int)
	for i := 0; i < 5000; i++ {
		key := "key-" + string(rune('a'+i%26)) + string(rune('0'+i%10)) + string(rune(i))
		owners := r.Owners(key)
		for _, o := range owners {
			counts[o]++
		}
	}
	for _, n := range nodes {
		if counts[n] == 0 {
			t.Errorf("node %q received no keys out of 5000 lookups", n)
		}
	}
}
