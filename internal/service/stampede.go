package service

import (
	"sync"
)

// missTracker counts concurrent in-flight cache misses per ZIP so a
// thundering herd against a single key shows up in metrics. Begin increments
// and returns the concurrent count; End decrements once the upstream fetch
// for that miss has completed.
type missTracker struct {
	mu       sync.Mutex     // protects inFlight
	inFlight map[string]int // ZIP -> number of misses being resolved right now
}

// newMissTracker returns an empty missTracker.
func newMissTracker() *missTracker {
	return &missTracker{
		inFlight: make(map[string]int),
	}
}

// Begin records a cache miss for zip and returns the concurrent miss count
// after incrementing. Callers pair it with End(zip) when the fetch resolves.
func (t *missTracker) Begin(zip string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight[zip]++
	return t.inFlight[zip]
}

// End records completion of a miss for zip.
func (t *missTracker) End(zip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.inFlight[zip]; ok && n > 0 {
		t.inFlight[zip]--
		if t.inFlight[zip] == 0 {
			delete(t.inFlight, zip)
		}
	}
}
