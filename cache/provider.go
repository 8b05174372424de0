package cache

import (
	"context"
	"strings"
	"sync"
)

// CacheProvider is an interface for a cache provider.
// It stores and retrieves []byte values, which represent HTTP response
// snapshots. Keys are opaque to the provider; partition handling is layered
// on top by Store, which relies on prefix iteration for enumeration and
// cleanup.
//
// Implementations must be thread-safe! Concurrent writes to the same key are
// resolved as last-write-wins.
type CacheProvider interface {
	// Get returns the stored bytes for the given key, if they exist.
	// It also returns a boolean indicating whether retrieval was successful.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put stores the given bytes under the given key,
	// overwriting any previous value.
	Put(ctx context.Context, key string, bytes []byte) error
	// Purge removes the entry for the given key.
	// Purging a nonexistent key is not an error.
	Purge(ctx context.Context, key string) error
	// AllKeys calls the given callback for each key with the given prefix.
	// It calls the callback in order to enable very large lists of keys to be
	// processable (provider implementation might use paging, for instance).
	AllKeys(ctx context.Context, prefix string, cb func(string)) error
}

type MemCache struct {
	mutex *sync.RWMutex
	db    map[string][]byte
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string][]byte),
	}
}

func (m MemCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	bytes, ok := m.db[key]
	if !ok {
		return nil, false, nil
	}
	return bytes, true, nil
}

func (m MemCache) Put(ctx context.Context, key string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[key] = bytes
	return nil
}

func (m MemCache) Purge(ctx context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, key)
	return nil
}

func (m MemCache) AllKeys(ctx context.Context, prefix string, cb func(string)) error {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.db))
	for key := range m.db {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mutex.RUnlock()
	for _, key := range keys {
		cb(key)
	}
	return nil
}
