package cache

import (
	"context"
	"testing"
	"time"

	"github.com/wvencel/forecaster/internal/models"
)

// BenchmarkMemoryStore_Read_Hit benchmarks store reads on a hit.
func BenchmarkMemoryStore_Read_Hit(b *testing.B) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Write(ctx, "forecast:94043", *testForecast(15.5), 5*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = s.Read(ctx, "forecast:94043")
	}
}

// BenchmarkMemoryStore_Read_Miss benchmarks store reads on a miss.
func BenchmarkMemoryStore_Read_Miss(b *testing.B) {
	s := NewMemoryStore()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = s.Read(ctx, "forecast:nonexistent")
	}
}

// BenchmarkMemoryStore_Concurrent benchmarks concurrent store reads.
func BenchmarkMemoryStore_Concurrent(b *testing.B) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Write(ctx, "forecast:94043", *testForecast(15.5), 5*time.Minute)

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _, _ = s.Read(ctx, "forecast:94043")
		}
	})
}

// BenchmarkForecastCache_FetchOrStore_Hit benchmarks the full normalized
// fetch-or-store path when every call hits.
func BenchmarkForecastCache_FetchOrStore_Hit(b *testing.B) {
	c, err := New(NewMemoryStore())
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	c.Write(ctx, "94043", testForecast(15.5))
	producer := func(ctx context.Context) (*models.Forecast, error) { return nil, nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.FetchOrStore(ctx, "94043", producer)
	}
}

// BenchmarkMemcachedStore_Read benchmarks memcached reads.
// Requires: memcached running (skip if unavailable).
func BenchmarkMemcachedStore_Read(b *testing.B) {
	if testing.Short() {
		b.Skip("skipping memcached benchmark in short mode")
	}

	s, err := NewMemcachedStore("localhost:11211", 500*time.Millisecond, 2)
	if err != nil {
		b.Skipf("memcached not available: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Write(ctx, "forecast:94043", *testForecast(15.5), 5*time.Minute); err != nil {
		b.Skipf("memcached not available: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = s.Read(ctx, "forecast:94043")
	}
}
