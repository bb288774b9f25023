package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/wvencel/forecaster/internal/observability"
)

// warmTimeout bounds a single warming run across all locations.
const warmTimeout = 30 * time.Second

// ForecastPrefetcher is implemented by the service layer to populate the
// cache for a known location. Used by Warmer to avoid a circular dependency
// on the service package.
type ForecastPrefetcher interface {
	Prefetch(ctx context.Context, zip string, lat, lon float64) error
}

// WarmLocation identifies a location to keep warm: the ZIP the forecast is
// cached under plus the coordinates the producer fetches with.
type WarmLocation struct {
	Zip       string
	Latitude  float64
	Longitude float64
}

// Warmer keeps the cache populated for a fixed list of locations, refreshing
// on a schedule so the first user request after expiry does not pay the
// upstream latency.
type Warmer struct {
	prefetcher ForecastPrefetcher
	scheduler  *gocron.Scheduler
	locations  []WarmLocation
	interval   time.Duration
	logger     *zap.Logger
}

// NewWarmer creates a Warmer over the given prefetcher and locations.
func NewWarmer(prefetcher ForecastPrefetcher, locations []WarmLocation, interval time.Duration, logger *zap.Logger) *Warmer {
	return &Warmer{
		prefetcher: prefetcher,
		scheduler:  gocron.NewScheduler(time.UTC),
		locations:  locations,
		interval:   interval,
		logger:     logger,
	}
}

// Warm prefetches forecasts for every configured location concurrently.
// Returns an aggregated error when any location failed; the rest still warm.
func (w *Warmer) Warm(ctx context.Context) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("locations", len(w.locations)))
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(w.locations))
	for _, loc := range w.locations {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.prefetcher.Prefetch(ctx, loc.Zip, loc.Latitude, loc.Longitude); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", loc.Zip, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete",
			zap.Int("locations", len(w.locations)),
			zap.Int("errors", len(errs)),
			zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %v", errs)
	}
	return nil
}

// Start runs an initial warm in the background, then schedules refreshes at
// the configured interval. Each run gets its own timeout-bounded context.
func (w *Warmer) Start() error {
	if len(w.locations) == 0 {
		if w.logger != nil {
			w.logger.Info("cache warming enabled but no locations configured")
		}
		return nil
	}

	minutes := int(w.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	_, err := w.scheduler.Every(minutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
		defer cancel()
		if err := w.Warm(ctx); err != nil && w.logger != nil {
			w.logger.Warn("scheduled cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
		defer cancel()
		if err := w.Warm(ctx); err != nil && w.logger != nil {
			w.logger.Warn("initial cache warm failed", zap.Error(err))
		}
	}()

	w.scheduler.StartAsync()
	return nil
}

// Stop cancels future warming runs. Safe to call when Start never ran.
func (w *Warmer) Stop() {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
}
