package store

import (
	"testing"
	"time"
)

func at(seconds int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, seconds, 0, time.UTC)
}

func TestPutThenGetIdempotence(t *testing.T) {
	s := New(1024)
	if r := s.Put("alpha", "one", at(0)); r != OK {
		t.Fatalf("Put() = %v, want OK", r)
	}
	entry, ok := s.Get("alpha")
	if !ok || entry.Value != "one" {
		t.Errorf("Get(alpha) = (%v, %v), want (one, true)", entry, ok)
	}
}

func TestDeleteViaEmptyValue(t *testing.T) {
	s := New(1024)
	s.Put("alpha", "one", at(0))
	if r := s.Put("alpha", "", at(1)); r != OK {
		t.Fatalf("Put(empty) = %v, want OK", r)
	}
	if _, ok := s.Get("alpha"); ok {
		t.Error("Get(alpha) hit after delete-by-empty-value")
	}
}

func TestDeleteAbsentKeyIsOK(t *testing.T) {
	s := New(1024)
	if r := s.Put("nope", "", at(0)); r != OK {
		t.Errorf("Put(empty) on absent key = %v, want OK", r)
	}
}

func TestTooBigRejectsAndDoesNotEvict(t *testing.T) {
	s := New(8)
	s.Put("k", "v", at(0)) // size 2, fits
	r := s.Put("key", "toolong!!", at(1))
	if r != TooBig {
		t.Fatalf("Put() = %v, want TooBig", r)
	}
	if _, ok := s.Get("k"); !ok {
		t.Error("a rejected too-big write must not evict existing entries")
	}
}

func TestEvictionNeverExceedsMaxSize(t *testing.T) {
	s := New(10)
	for i := 0; i < 20; i++ {
		s.Put(string(rune('a'+i%5)), "12", at(i))
		if s.Size() > 10 {
			t.Fatalf("after put #%d: size = %d, want <= 10", i, s.Size())
		}
	}
}

func TestEvictionIsFIFOByInstallOrder(t *testing.T) {
	s := New(6) // room for exactly 3 single-char keys with 1-char values
	s.Put("a", "1", at(0))
	s.Put("b", "1", at(1))
	s.Put("c", "1", at(2))
	// Store is full (6/6). Writing "d" must evict "a" (the oldest), not "c".
	s.Put("d", "1", at(3))

	if _, ok := s.Get("a"); ok {
		t.Error("oldest entry \"a\" should have been evicted")
	}
	if _, ok := s.Get("c"); !ok {
		t.Error("recently installed entry \"c\" should not have been evicted")
	}
	if _, ok := s.Get("d"); !ok {
		t.Error("newly installed entry \"d\" should be present")
	}
}

func TestGetDoesNotChangeEvictionOrder(t *testing.T) {
	s := New(6)
	s.Put("a", "1", at(0))
	s.Put("b", "1", at(1))
	s.Put("c", "1", at(2))
	s.Get("a") // touching "a" must not protect it from eviction
	s.Put("d", "1", at(3))

	if _, ok := s.Get("a"); ok {
		t.Error("Get() must not update eviction order (a should still be the oldest and get evicted)")
	}
}

func TestLastWriterWinsByTimestampTiesFavorExisting(t *testing.T) {
	s := New(1024)
	s.Put("k", "new-later", at(10))
	// An older write arriving after must not overwrite the newer value.
	s.Put("k", "old-earlier", at(5))
	entry, _ := s.Get("k")
	if entry.Value != "new-later" {
		t.Errorf("Get(k).Value = %q, want %q (older write must lose)", entry.Value, "new-later")
	}

	// Equal timestamps: existing wins.
	s.Put("k", "challenger", at(10))
	entry, _ = s.Get("k")
	if entry.Value != "new-later" {
		t.Errorf("Get(k).Value = %q after tie, want existing value %q", entry.Value, "new-later")
	}
}

func TestSoleEntryLargerThanMaxSizeAlwaysTooBig(t *testing.T) {
	s := New(4)
	if r := s.Put("toolongkey", "v", at(0)); r != TooBig {
		t.Errorf("Put() = %v, want TooBig", r)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after a rejected write", s.Len())
	}
}
