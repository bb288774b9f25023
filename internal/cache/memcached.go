package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/wvencel/forecaster/internal/models"
)

// MemcachedStore implements Store using memcached. Forecasts are stored as a
// JSON envelope; expiry is enforced by memcached itself.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Read implements Store.Read. A memcached miss reports (zero, false, nil).
func (s *MemcachedStore) Read(ctx context.Context, storeKey string) (models.Forecast, bool, error) {
	if ctx.Err() != nil {
		return models.Forecast{}, false, ctx.Err()
	}
	item, err := s.client.Get(storeKey)
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return models.Forecast{}, false, nil
		}
		return models.Forecast{}, false, err
	}
	var f models.Forecast
	if err := json.Unmarshal(item.Value, &f); err != nil {
		return models.Forecast{}, false, err
	}
	return f, true, nil
}

// Write implements Store.Write.
func (s *MemcachedStore) Write(ctx context.Context, storeKey string, value models.Forecast, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	expSec := int32(ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days, memcached's relative-expiry ceiling
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 1800 // fallback 30m if invalid
	}
	return s.client.Set(&memcache.Item{
		Key:        storeKey,
		Value:      raw,
		Expiration: expSec,
	})
}

// Delete implements Store.Delete. Deleting an absent key is not an error.
func (s *MemcachedStore) Delete(ctx context.Context, storeKey string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := s.client.Delete(storeKey); err != nil && err != memcache.ErrCacheMiss {
		return err
	}
	return nil
}

// Exists implements Store.Exists via a full Get; gomemcache offers no lighter
// existence probe.
func (s *MemcachedStore) Exists(ctx context.Context, storeKey string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if _, err := s.client.Get(storeKey); err != nil {
		if err == memcache.ErrCacheMiss {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
