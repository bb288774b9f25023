package cache

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wvencel/forecaster/internal/models"
	"github.com/wvencel/forecaster/internal/observability"
)

// keyPrefix namespaces forecast entries in shared stores like memcached.
const keyPrefix = "forecast:"

// DefaultTTL is the entry lifetime used unless WithTTL overrides it.
const DefaultTTL = 30 * time.Minute

// ProducerFunc computes a fresh forecast on a cache miss. A nil forecast with
// a nil error means the upstream had nothing for this key; nothing is cached
// and the next access recomputes.
type ProducerFunc func(ctx context.Context) (*models.Forecast, error)

// zipPattern matches five ZIP digits with an optional +4 extension. Keys that
// normalize to something else are still served, but the mismatch is logged so
// odd postal codes coming back from geocoding are visible.
var zipPattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// ForecastCache caches forecasts by normalized postal code on top of a
// pluggable Store. It holds no cross-request locks: concurrent misses on the
// same key may each invoke their producer, and the last write wins.
type ForecastCache struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// Option configures a ForecastCache.
type Option func(*ForecastCache)

// WithTTL overrides the default entry lifetime. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *ForecastCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger attaches a logger for key-shape warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(c *ForecastCache) {
		c.logger = logger
	}
}

// New creates a ForecastCache over the given backing store.
func New(store Store, opts ...Option) (*ForecastCache, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	c := &ForecastCache{
		store: store,
		ttl:   DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured entry lifetime.
func (c *ForecastCache) TTL() time.Duration {
	return c.ttl
}

// Normalize canonicalizes a postal-code key: surrounding whitespace removed,
// letters upper-cased. Normalizing an already-normalized key is a no-op.
func Normalize(zip string) string {
	return strings.ToUpper(strings.TrimSpace(zip))
}

// storeKey normalizes and validates zip, returning the namespaced store key.
// A key that normalizes to empty returns ErrBlankKey before any store access.
func (c *ForecastCache) storeKey(zip string) (string, error) {
	norm := Normalize(zip)
	if norm == "" {
		return "", ErrBlankKey
	}
	if !zipPattern.MatchString(norm) && c.logger != nil {
		c.logger.Warn("cache key does not look like a ZIP code", zap.String("key", norm))
	}
	return keyPrefix + norm, nil
}

// Fetch returns the cached forecast for zip if a live entry exists.
// Store failures are wrapped in a *CacheError carrying the operation name.
func (c *ForecastCache) Fetch(ctx context.Context, zip string) (*models.Forecast, bool, error) {
	key, err := c.storeKey(zip)
	if err != nil {
		return nil, false, err
	}
	start := time.Now()
	value, ok, err := c.store.Read(ctx, key)
	observability.CacheOperationDuration.WithLabelValues("read").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, false, &CacheError{Op: "read", Key: key, Err: err}
	}
	if !ok {
		return nil, false, nil
	}
	return &value, true, nil
}

// Write stores the forecast under zip with the default TTL. A nil forecast is
// a no-op; "nothing" is never cached.
func (c *ForecastCache) Write(ctx context.Context, zip string, f *models.Forecast) error {
	return c.WriteTTL(ctx, zip, f, c.ttl)
}

// WriteTTL stores the forecast under zip with an explicit TTL. The key is
// validated even when the forecast is nil and the write becomes a no-op.
func (c *ForecastCache) WriteTTL(ctx context.Context, zip string, f *models.Forecast, ttl time.Duration) error {
	key, err := c.storeKey(zip)
	if err != nil {
		return err
	}
	if f == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	start := time.Now()
	err = c.store.Write(ctx, key, *f, ttl)
	observability.CacheOperationDuration.WithLabelValues("write").Observe(time.Since(start).Seconds())
	if err != nil {
		return &CacheError{Op: "write", Key: key, Err: err}
	}
	return nil
}

// FetchOrStore returns the cached forecast for zip, or invokes producer to
// compute and cache a fresh one. The bool reports whether the value came from
// cache. On a hit the producer is never invoked. On a miss the producer runs
// exactly once, synchronously: a nil result is not cached and reports
// (nil, false, nil); a non-nil result is written before returning. Producer
// errors propagate unchanged with nothing cached; store failures propagate as
// *CacheError.
func (c *ForecastCache) FetchOrStore(ctx context.Context, zip string, producer ProducerFunc) (*models.Forecast, bool, error) {
	if producer == nil {
		return nil, false, ErrNilProducer
	}

	cached, ok, err := c.Fetch(ctx, zip)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return cached, true, nil
	}

	fresh, err := producer(ctx)
	if err != nil {
		return nil, false, err
	}
	if fresh == nil {
		return nil, false, nil
	}
	if err := c.WriteTTL(ctx, zip, fresh, c.ttl); err != nil {
		return nil, false, err
	}
	return fresh, false, nil
}

// Delete removes the entry for zip. Store failures are wrapped in *CacheError.
func (c *ForecastCache) Delete(ctx context.Context, zip string) error {
	key, err := c.storeKey(zip)
	if err != nil {
		return err
	}
	start := time.Now()
	err = c.store.Delete(ctx, key)
	observability.CacheOperationDuration.WithLabelValues("delete").Observe(time.Since(start).Seconds())
	if err != nil {
		return &CacheError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Exists reports whether a live entry is cached for zip. Store failures
// propagate unwrapped.
func (c *ForecastCache) Exists(ctx context.Context, zip string) (bool, error) {
	key, err := c.storeKey(zip)
	if err != nil {
		return false, err
	}
	start := time.Now()
	ok, err := c.store.Exists(ctx, key)
	observability.CacheOperationDuration.WithLabelValues("exists").Observe(time.Since(start).Seconds())
	return ok, err
}
