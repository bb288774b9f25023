package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrNilStore is returned by New when no backing store is supplied.
	ErrNilStore = errors.New("nil store")

	// ErrBlankKey is returned when a key normalizes to the empty string.
	// The store is never touched for a blank key.
	ErrBlankKey = errors.New("blank cache key")

	// ErrNilProducer is returned by FetchOrStore when no producer is supplied.
	ErrNilProducer = errors.New("nil producer")
)

// CacheError wraps a backing-store failure with the operation and key that
// triggered it, so callers see one error kind regardless of which store is
// configured. The original failure is available via Unwrap.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }
