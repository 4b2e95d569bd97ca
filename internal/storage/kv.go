package storage

import "context"

// KVStore is a flat key-value store holding opaque values.
// Implementations must be safe for concurrent use.
type KVStore interface {
	// Get returns the stored value. found is false when the key was never written.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists every key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
