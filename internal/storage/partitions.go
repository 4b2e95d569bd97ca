package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"schedle/internal/models"
)

// Partitions maps (user, kind) pairs onto keys of a KVStore and holds the
// process-local locks that serialize writers of the same key.
//
// Every partition is a JSON array. A key that was never written reads as an
// empty collection, and so does a value that fails to decode; the latter is
// logged and the next write replaces it.
type Partitions struct {
	kv     KVStore
	prefix string
	locks  keyLocks
}

// NewPartitions wraps kv. prefix is prepended to every key and may be empty.
func NewPartitions(kv KVStore, prefix string) *Partitions {
	return &Partitions{
		kv:     kv,
		prefix: prefix,
		locks:  keyLocks{entries: make(map[string]*keyLock)},
	}
}

// Key returns the storage key of a partition, e.g. "friends_user1".
func (p *Partitions) Key(userID string, kind models.PartitionKind) string {
	return p.prefix + string(kind) + "_" + userID
}

// Store exposes the underlying key-value store.
func (p *Partitions) Store() KVStore {
	return p.kv
}

// Prefix returns the configured global key prefix.
func (p *Partitions) Prefix() string {
	return p.prefix
}

// Lock acquires the locks of all keys in sorted order and returns the release
// function. Duplicate keys are locked once. Locks are not reentrant: do not
// call Update on a key that is already held.
func (p *Partitions) Lock(keys ...string) (unlock func()) {
	return p.locks.acquire(keys)
}

// Raw returns the stored bytes of a partition without decoding them.
func (p *Partitions) Raw(ctx context.Context, userID string, kind models.PartitionKind) ([]byte, bool, error) {
	return p.kv.Get(ctx, p.Key(userID, kind))
}

// Clear removes a partition.
func (p *Partitions) Clear(ctx context.Context, userID string, kind models.PartitionKind) error {
	key := p.Key(userID, kind)
	unlock := p.Lock(key)
	defer unlock()
	if err := p.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to clear partition %s: %w", key, err)
	}
	return nil
}

// Load reads a partition. A missing or malformed value yields an empty,
// non-nil slice. Only backend errors are returned.
func Load[T any](ctx context.Context, p *Partitions, userID string, kind models.PartitionKind) ([]T, error) {
	key := p.Key(userID, kind)
	raw, found, err := p.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load partition %s: %w", key, err)
	}
	if !found || len(raw) == 0 {
		return []T{}, nil
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		log.Printf("Partition %s is unreadable, treating it as empty: %v", key, err)
		return []T{}, nil
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Save overwrites a partition with items.
func Save[T any](ctx context.Context, p *Partitions, userID string, kind models.PartitionKind, items []T) error {
	key := p.Key(userID, kind)
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode partition %s: %w", key, err)
	}
	if err := p.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to save partition %s: %w", key, err)
	}
	return nil
}

// Update runs a load-modify-save cycle on one partition while holding its lock.
// Nothing is written when fn returns an error.
func Update[T any](ctx context.Context, p *Partitions, userID string, kind models.PartitionKind, fn func([]T) ([]T, error)) error {
	unlock := p.Lock(p.Key(userID, kind))
	defer unlock()

	items, err := Load[T](ctx, p, userID, kind)
	if err != nil {
		return err
	}
	items, err = fn(items)
	if err != nil {
		return err
	}
	return Save(ctx, p, userID, kind, items)
}

type keyLock struct {
	sync.Mutex
	refs int
}

// keyLocks hands out one mutex per key and drops it once nobody holds or waits on it.
type keyLocks struct {
	mu      sync.Mutex
	entries map[string]*keyLock
}

func (l *keyLocks) acquire(keys []string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	held := make([]string, 0, len(sorted))
	for i, k := range sorted {
		if i > 0 && sorted[i-1] == k {
			continue
		}
		l.mu.Lock()
		entry, ok := l.entries[k]
		if !ok {
			entry = &keyLock{}
			l.entries[k] = entry
		}
		entry.refs++
		l.mu.Unlock()

		entry.Lock()
		held = append(held, k)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				l.release(held[i])
			}
		})
	}
}

func (l *keyLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.entries[key]
	entry.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}
