package storage

import (
	"context"
	"errors"
)

// Sentinel errors for storage operations.
var (
	// ErrNotFound indicates the key or database does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidName indicates an empty or malformed key or database name.
	ErrInvalidName = errors.New("storage: invalid name")

	// ErrPathRequired indicates a persistent store was opened without a path.
	ErrPathRequired = errors.New("storage: path is required for persistent store")
)

// KVStore is an enumerable durable key/value store.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Delete is idempotent: deleting a missing key is not an error.
// - Keys returns a point-in-time listing; keys may disappear before they are
//   deleted by a caller.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// ObjectDB is a set of named structured databases that can be listed and
// dropped whole.
//
// Contract:
// - Drop is idempotent: dropping a missing database is not an error.
type ObjectDB interface {
	Put(ctx context.Context, db, key string, value []byte) error
	Fetch(ctx context.Context, db, key string) ([]byte, error)
	Databases(ctx context.Context) ([]string, error)
	Drop(ctx context.Context, db string) error
}
