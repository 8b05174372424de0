package cache

import (
	"context"
	"sort"
	"strings"
)

// keySeparator separates the partition name from the entry key in the
// provider key space. It cannot appear in partition names.
const keySeparator = "\t"

// Store organizes a flat CacheProvider key space into named partitions.
// A partition name encodes the cache generation it belongs to (for example
// "v2-static"), so deleting stale generations is just deleting partitions.
type Store struct {
	provider CacheProvider
}

func NewStore(provider CacheProvider) *Store {
	return &Store{provider: provider}
}

// Partition returns a handle to the named partition.
// Partitions are materialized lazily: one exists as soon as it has an entry.
func (s *Store) Partition(name string) Partition {
	return Partition{name: name, store: s}
}

// PartitionNames returns the names of all partitions that currently hold at
// least one entry, in lexical order.
func (s *Store) PartitionNames(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := s.provider.AllKeys(ctx, "", func(key string) {
		if name, _, ok := strings.Cut(key, keySeparator); ok {
			seen[name] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeletePartition removes every entry in the named partition.
func (s *Store) DeletePartition(ctx context.Context, name string) error {
	keys := make([]string, 0)
	if err := s.provider.AllKeys(ctx, name+keySeparator, func(key string) {
		keys = append(keys, key)
	}); err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.provider.Purge(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAll removes every partition regardless of generation.
func (s *Store) DeleteAll(ctx context.Context) error {
	names, err := s.PartitionNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.DeletePartition(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Lookup searches all partitions for the given entry key and returns the
// first match, in lexical partition order.
func (s *Store) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	names, err := s.PartitionNames(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, name := range names {
		bytes, ok, err := s.Partition(name).Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return bytes, true, nil
		}
	}
	return nil, false, nil
}

// Partition is a named view into a Store.
// The zero value is not usable; get one from Store.Partition.
type Partition struct {
	name  string
	store *Store
}

func (p Partition) Name() string {
	return p.name
}

func (p Partition) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.store.provider.Get(ctx, p.name+keySeparator+key)
}

func (p Partition) Put(ctx context.Context, key string, bytes []byte) error {
	return p.store.provider.Put(ctx, p.name+keySeparator+key, bytes)
}

func (p Partition) Purge(ctx context.Context, key string) error {
	return p.store.provider.Purge(ctx, p.name+keySeparator+key)
}

// Keys calls the given callback for each entry key in the partition.
func (p Partition) Keys(ctx context.Context, cb func(string)) error {
	prefix := p.name + keySeparator
	return p.store.provider.AllKeys(ctx, prefix, func(key string) {
		cb(strings.TrimPrefix(key, prefix))
	})
}
