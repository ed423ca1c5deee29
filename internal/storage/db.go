// Package storage provides database abstractions.
package storage

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key; the value may alias the
	// backend's own buffer and must be copied if kept after fn returns.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	// NewBatch returns a Batch whose staged puts and deletes become
	// visible together, in one atomic write, when Commit is called.
	NewBatch() Batch
	Close() error
}

// Batch accumulates puts and deletes for a single atomic write.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	// Commit applies every staged op atomically.
	Commit() error
}
