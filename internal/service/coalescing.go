package service

import (
	"context"
	"sync"
	"time"

	"github.com/wvencel/forecaster/internal/models"
)

// inFlightFetch is a single upstream fetch that any number of callers may
// wait on. The result fields are written exactly once, before done is closed.
type inFlightFetch struct {
	done     chan struct{}
	forecast *models.Forecast
	err      error
}

// forecastCoalescer collapses concurrent upstream fetches for the same ZIP
// into one. The first caller for a key runs the fetch; everyone else arriving
// while it is in flight waits for its result instead of issuing their own.
type forecastCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

// newForecastCoalescer creates a forecastCoalescer whose waiters give up
// after timeout.
func newForecastCoalescer(timeout time.Duration) *forecastCoalescer {
	return &forecastCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo runs fn for zip unless a fetch for the same ZIP is already in
// flight, in which case it waits for that fetch's result. The returned bool
// reports whether the result came from another caller's fetch. Waiting is
// bounded by the coalescer timeout and by the caller's context; a waiter
// timing out does not abandon the fetch for everyone behind it.
func (fc *forecastCoalescer) GetOrDo(ctx context.Context, zip string, fn func() (*models.Forecast, error)) (*models.Forecast, bool, error) {
	fc.mu.Lock()
	fetch, shared := fc.inFlight[zip]
	if !shared {
		fetch = &inFlightFetch{done: make(chan struct{})}
		fc.inFlight[zip] = fetch
		fc.mu.Unlock()

		go func() {
			fetch.forecast, fetch.err = fn()
			close(fetch.done)

			fc.mu.Lock()
			delete(fc.inFlight, zip)
			fc.mu.Unlock()
		}()
	} else {
		fc.mu.Unlock()
	}

	waitCtx, cancel := context.WithTimeout(ctx, fc.timeout)
	defer cancel()
	select {
	case <-fetch.done:
		return fetch.forecast, shared, fetch.err
	case <-waitCtx.Done():
		return nil, shared, waitCtx.Err()
	}
}
