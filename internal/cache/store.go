package cache

import (
	"context"
	"sync"
	"time"

	"github.com/wvencel/forecaster/internal/models"
)

// Store is the backing-store contract consumed by ForecastCache. Read returns
// (zero, false, nil) on a miss; errors are reserved for store failures. Any
// conforming implementation may be substituted; it must be safe for
// concurrent use.
type Store interface {
	Read(ctx context.Context, storeKey string) (models.Forecast, bool, error)
	Write(ctx context.Context, storeKey string, value models.Forecast, ttl time.Duration) error
	Delete(ctx context.Context, storeKey string) error
	Exists(ctx context.Context, storeKey string) (bool, error)
}

// MemoryStore implements Store using a mutex-guarded map with TTL-based
// expiration. Expired entries are removed on access.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]memoryEntry
}

// memoryEntry stores a cached forecast with its expiration timestamp.
type memoryEntry struct {
	value     models.Forecast
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]memoryEntry)}
}

// Read returns the stored forecast for the key if present and not expired.
// Expired entries are removed on access.
func (s *MemoryStore) Read(ctx context.Context, storeKey string) (models.Forecast, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[storeKey]
	if !ok {
		return models.Forecast{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.data, storeKey)
		return models.Forecast{}, false, nil
	}
	return entry.value, true, nil
}

// Write stores the forecast with the given TTL. Entries expire after TTL
// elapses and are removed on the next access.
func (s *MemoryStore) Write(ctx context.Context, storeKey string, value models.Forecast, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[storeKey] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Delete removes the entry for the key. Deleting an absent key is not an error.
func (s *MemoryStore) Delete(ctx context.Context, storeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, storeKey)
	return nil
}

// Exists reports whether a live entry is stored under the key.
func (s *MemoryStore) Exists(ctx context.Context, storeKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[storeKey]
	if !ok {
		return false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.data, storeKey)
		return false, nil
	}
	return true, nil
}
