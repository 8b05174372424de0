package cache

import (
	"context"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type LevelDBCache struct {
	db *leveldb.DB
}

// NewLevelDBCache opens (or creates) a leveldb database at the given path.
func NewLevelDBCache(path string) (LevelDBCache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return LevelDBCache{}, err
	}
	return LevelDBCache{db: db}, nil
}

func (l LevelDBCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	bytes, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (l LevelDBCache) Put(ctx context.Context, key string, bytes []byte) error {
	return l.db.Put([]byte(key), bytes, nil)
}

func (l LevelDBCache) Purge(ctx context.Context, key string) error {
	return l.db.Delete([]byte(key), nil)
}

func (l LevelDBCache) AllKeys(ctx context.Context, prefix string, cb func(string)) error {
	it := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()
	for it.Next() {
		cb(string(it.Key()))
	}
	return it.Error()
}

// Close closes the underlying database.
func (l LevelDBCache) Close() error {
	return l.db.Close()
}
