package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wvencel/forecaster/internal/cache"
	"github.com/wvencel/forecaster/internal/geocode"
	"github.com/wvencel/forecaster/internal/models"
	"github.com/wvencel/forecaster/internal/observability"
	"github.com/wvencel/forecaster/internal/traffic"
	"github.com/wvencel/forecaster/internal/weather"
	"go.uber.org/zap"
)

// ErrAddressNotFound reports that geocoding produced no usable location for
// the submitted address: either no match at all, or a match without a postal
// code to key the forecast cache on.
var ErrAddressNotFound = errors.New("address not found")

// Result is a completed forecast lookup. Cached reports whether the forecast
// was served from the cache rather than fetched upstream.
type Result struct {
	Forecast   models.Forecast
	Location   models.Location
	PostalCode string
	Cached     bool
}

// ForecastService turns a free-form address into a forecast: geocode the
// address, then fetch-or-populate the forecast cache keyed by the location's
// postal code. Cache failures degrade to a direct upstream fetch and never
// fail a request on their own.
type ForecastService struct {
	geocoder  geocode.Geocoder
	weather   weather.Client
	cache     *cache.ForecastCache
	misses    *missTracker
	coalescer *forecastCoalescer // nil unless coalescing is enabled
}

// NewForecastService wires a ForecastService. Coalescing of concurrent
// upstream fetches for the same ZIP stays off unless coalesceEnabled is set
// with a positive timeout.
func NewForecastService(geocoder geocode.Geocoder, weatherClient weather.Client, forecastCache *cache.ForecastCache, coalesceEnabled bool, coalesceTimeout time.Duration) *ForecastService {
	svc := &ForecastService{
		geocoder: geocoder,
		weather:  weatherClient,
		cache:    forecastCache,
		misses:   newMissTracker(),
	}
	if coalesceEnabled && coalesceTimeout > 0 {
		svc.coalescer = newForecastCoalescer(coalesceTimeout)
	}
	return svc
}

// Lookup resolves address to a forecast. A missing geocoding result returns
// ErrAddressNotFound; geocoding and weather failures propagate to the caller.
func (s *ForecastService) Lookup(ctx context.Context, address string) (Result, error) {
	logger := loggerFromContext(ctx)
	observability.ForecastLookupsTotal.Inc()

	loc, found, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		traffic.RecordError()
		return Result{}, fmt.Errorf("geocode address: %w", err)
	}
	if !found {
		// Not a service failure; keep it out of the degraded-health window.
		traffic.RecordSuccess()
		return Result{}, ErrAddressNotFound
	}

	zip := loc.PostalCode
	producer := s.producer(loc)

	forecast, cached, err := s.cache.FetchOrStore(ctx, zip, producer)
	bypassed := false
	var cerr *cache.CacheError
	if err != nil && errors.As(err, &cerr) {
		bypassed = true
		observability.CacheErrorsTotal.WithLabelValues(cerr.Op, categorizeCacheError(cerr.Err)).Inc()
		observability.CacheBypassTotal.Inc()
		if logger != nil {
			logger.Warn("cache unavailable, fetching without cache",
				zap.String("operation", cerr.Op),
				zap.String("zip", zip),
				zap.Error(cerr.Err))
		}
		forecast, err = producer(ctx)
		cached = false
	}
	if err != nil {
		traffic.RecordError()
		return Result{}, fmt.Errorf("fetch forecast for %s: %w", zip, err)
	}
	if forecast == nil {
		// Producer returned no data and no error; nothing to render.
		traffic.RecordError()
		return Result{}, fmt.Errorf("fetch forecast for %s: %w", zip, weather.ErrInvalidResponse)
	}

	if cached {
		observability.CacheHitsTotal.Inc()
	} else if !bypassed {
		observability.CacheMissesTotal.Inc()
	}
	traffic.RecordSuccess()

	return Result{
		Forecast:   *forecast,
		Location:   loc,
		PostalCode: cache.Normalize(zip),
		Cached:     cached,
	}, nil
}

// Prefetch populates the cache for a known location without touching the
// geocoder and without counting toward user traffic. The cache warmer calls
// it on a schedule.
func (s *ForecastService) Prefetch(ctx context.Context, zip string, lat, lon float64) error {
	loc := models.Location{Latitude: lat, Longitude: lon, PostalCode: zip}
	_, _, err := s.cache.FetchOrStore(ctx, zip, s.producer(loc))
	return err
}

// CachePing reports whether the cache store is reachable. Used by the health
// endpoint.
func (s *ForecastService) CachePing(ctx context.Context) error {
	_, err := s.cache.Exists(ctx, "00000")
	return err
}

// producer builds the single-fetch producer for loc, with concurrent-miss
// tracking around the upstream call.
func (s *ForecastService) producer(loc models.Location) cache.ProducerFunc {
	zip := cache.Normalize(loc.PostalCode)
	return func(ctx context.Context) (*models.Forecast, error) {
		concurrent := s.misses.Begin(zip)
		defer s.misses.End(zip)
		if concurrent > 1 {
			observability.CacheStampedeDetectedTotal.WithLabelValues(observability.MetricZipLabel(zip)).Inc()
			observability.CacheStampedeConcurrency.Observe(float64(concurrent))
		}
		return s.fetchWeather(ctx, loc)
	}
}

// fetchWeather calls the weather client, through the coalescer when enabled.
func (s *ForecastService) fetchWeather(ctx context.Context, loc models.Location) (*models.Forecast, error) {
	if s.coalescer == nil {
		return s.weather.Fetch(ctx, loc.Latitude, loc.Longitude)
	}

	start := time.Now()
	forecast, shared, err := s.coalescer.GetOrDo(ctx, cache.Normalize(loc.PostalCode), func() (*models.Forecast, error) {
		return s.weather.Fetch(ctx, loc.Latitude, loc.Longitude)
	})
	if shared {
		observability.CoalescingHitsTotal.Inc()
		observability.CoalescingWaitSeconds.Observe(time.Since(start).Seconds())
	}
	return forecast, err
}

// categorizeCacheError buckets a store failure for the cache error metric.
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "connection") || strings.Contains(msg, "refused") || strings.Contains(msg, "no servers"):
		return "connection"
	default:
		return "unknown"
	}
}

// loggerFromContext extracts the request logger if middleware attached one.
// Returns nil when the context carries no logger.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return nil
}
