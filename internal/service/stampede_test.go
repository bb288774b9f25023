package service

import (
	"sync"
	"testing"
)

// TestMissTracker_BeginEnd verifies that Begin increments and returns the
// concurrent count per ZIP and that End decrements until the key is removed.
func TestMissTracker_BeginEnd(t *testing.T) {
	tracker := newMissTracker()
	zip := "94043"

	// First miss: count 1.
	if got := tracker.Begin(zip); got != 1 {
		t.Errorf("Begin first = %d, want 1", got)
	}
	// Second concurrent miss: count 2.
	if got := tracker.Begin(zip); got != 2 {
		t.Errorf("Begin second = %d, want 2", got)
	}

	// Resolve one miss.
	tracker.End(zip)
	if got := tracker.Begin(zip); got != 2 {
		t.Errorf("after one End, Begin = %d, want 2", got)
	}
	tracker.End(zip)
	tracker.End(zip)
	// All resolved; next miss starts over at 1.
	if got := tracker.Begin(zip); got != 1 {
		t.Errorf("after all End, Begin = %d, want 1", got)
	}
	tracker.End(zip)
}

// TestMissTracker_EndWithoutBegin verifies that a stray End never drives the
// count negative.
func TestMissTracker_EndWithoutBegin(t *testing.T) {
	tracker := newMissTracker()
	tracker.End("94043")
	if got := tracker.Begin("94043"); got != 1 {
		t.Errorf("Begin after stray End = %d, want 1", got)
	}
}

// TestMissTracker_Concurrent verifies that concurrent Begin/End calls do not
// race and leave the tracker consistent.
func TestMissTracker_Concurrent(t *testing.T) {
	tracker := newMissTracker()
	zip := "10001"
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Begin(zip)
			tracker.End(zip)
		}()
	}
	wg.Wait()

	if got := tracker.Begin(zip); got != 1 {
		t.Errorf("after concurrent ops Begin = %d, want 1", got)
	}
	tracker.End(zip)
}
