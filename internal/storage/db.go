// Package storage provides database abstractions.
package storage

import "errors"

// ErrNotFound is returned by Get when no value exists for a key. Callers
// use errors.Is to distinguish an ordinary miss from a genuine
// backing-store fault, which DB implementations return as a different
// error that does not wrap ErrNotFound.
var ErrNotFound = errors.New("storage: key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Iterator walks keys with a given prefix in ascending byte order.
// Callers must call Close when done; an Iterator that is Valid() may
// be advanced with Next() until it reports invalid.
type Iterator interface {
	// Valid reports whether the iterator is positioned at an entry.
	Valid() bool
	// Key returns the current key (without the seek prefix stripped).
	Key() []byte
	// Value returns the current value.
	Value() []byte
	// Next advances the iterator.
	Next()
	// Close releases resources held by the iterator.
	Close() error
}

// Iterable is implemented by a DB that can produce ordered cursor
// iterators in addition to the callback-based ForEach.
type Iterable interface {
	// NewIterator returns an Iterator over all keys with the given
	// prefix, seeked to the first key >= seek (seek may equal prefix
	// to start at the beginning of the prefix range).
	NewIterator(prefix, seek []byte) Iterator
}

// Batch accumulates a set of writes to be committed atomically.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by a DB that can produce atomic write batches.
type Batcher interface {
	NewBatch() Batch
}
