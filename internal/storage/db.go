// Package storage provides the key-value stores backing the header sync
// state.
package storage

import (
	"bytes"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in key order.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch collects writes that become visible together on Commit.
// Discard releases an uncommitted batch and is a no-op after Commit, so
// callers can defer it right after creating the batch.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Discard()
}

// Batcher is implemented by databases that support atomic batches.
type Batcher interface {
	NewBatch() Batch
}

// NewBatch returns an atomic batch when db supports one, and otherwise a
// buffered batch that applies its writes one by one on Commit.
func NewBatch(db DB) Batch {
	if b, ok := db.(Batcher); ok {
		return b.NewBatch()
	}
	return &fallbackBatch{db: db}
}

// Seeker is implemented by databases that can start a prefix scan at an
// arbitrary key instead of at the prefix itself.
type Seeker interface {
	// ForEachFrom is ForEach restricted to keys >= start.
	ForEachFrom(prefix, start []byte, fn func(key, value []byte) error) error
}

// ForEachFrom iterates over the keys with prefix that sort at or after
// start. Databases without a Seeker fall back to a filtered ForEach.
func ForEachFrom(db DB, prefix, start []byte, fn func(key, value []byte) error) error {
	if s, ok := db.(Seeker); ok {
		return s.ForEachFrom(prefix, start, fn)
	}
	return db.ForEach(prefix, func(key, value []byte) error {
		if bytes.Compare(key, start) < 0 {
			return nil
		}
		return fn(key, value)
	})
}

// seekKey is where a scan over prefix starting at start begins.
func seekKey(prefix, start []byte) []byte {
	if bytes.Compare(start, prefix) > 0 {
		return start
	}
	return prefix
}
