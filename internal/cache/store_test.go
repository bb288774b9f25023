package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestMemoryStore_ReadWrite verifies that Write stores values and Read
// retrieves them with the expected data.
func TestMemoryStore_ReadWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	val := *testForecast(12.5)
	if err := s.Write(ctx, "forecast:94043", val, time.Minute); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, ok, err := s.Read(ctx, "forecast:94043")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !ok {
		t.Fatal("Read() ok = false, want true")
	}
	if got.CurrentTempF == nil || *got.CurrentTempF != 12.5 {
		t.Errorf("Read() = %+v, want temp 12.5", got)
	}
}

// TestMemoryStore_Read_Miss verifies that Read returns ok=false when the
// requested key does not exist.
func TestMemoryStore_Read_Miss(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Read(ctx, "forecast:nonexistent")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if ok {
		t.Error("Read() ok = true, want false for miss")
	}
}

// TestMemoryStore_Read_Expired verifies that Read returns ok=false for
// expired entries and removes them on access.
func TestMemoryStore_Read_Expired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Write(ctx, "forecast:94043", *testForecast(10), 1*time.Millisecond); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	time.Sleep(2 * time.Millisecond)

	_, ok, err := s.Read(ctx, "forecast:94043")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if ok {
		t.Error("Read() ok = true, want false for expired entry")
	}

	// Expired entry should be removed
	if ok, _ := s.Exists(ctx, "forecast:94043"); ok {
		t.Error("expired entry should be deleted from store")
	}
}

// TestMemoryStore_DeleteExists verifies Delete removes entries and Exists
// tracks liveness including expiry.
func TestMemoryStore_DeleteExists(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if ok, _ := s.Exists(ctx, "forecast:94043"); ok {
		t.Error("Exists() = true on empty store, want false")
	}

	if err := s.Write(ctx, "forecast:94043", *testForecast(10), time.Minute); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if ok, _ := s.Exists(ctx, "forecast:94043"); !ok {
		t.Error("Exists() = false after write, want true")
	}

	if err := s.Delete(ctx, "forecast:94043"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if ok, _ := s.Exists(ctx, "forecast:94043"); ok {
		t.Error("Exists() = true after delete, want false")
	}

	// Deleting an absent key is not an error
	if err := s.Delete(ctx, "forecast:94043"); err != nil {
		t.Errorf("Delete() of absent key error = %v, want nil", err)
	}
}

// TestMemoryStore_ConcurrentAccess verifies the store tolerates concurrent
// readers and writers without data races.
func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	val := *testForecast(20)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Write(ctx, "forecast:94043", val, time.Minute)
				_, _, _ = s.Read(ctx, "forecast:94043")
				_, _ = s.Exists(ctx, "forecast:94043")
			}
		}()
	}
	wg.Wait()

	if _, ok, _ := s.Read(ctx, "forecast:94043"); !ok {
		t.Error("Read() missed after concurrent writes, want hit")
	}
}
