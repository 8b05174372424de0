package cache

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

type SQLiteCache struct {
	db *sql.DB
	// sqlite allows only one writer at a time
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If the file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) (SQLiteCache, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteCache{}, err
	}
	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS cache (key TEXT PRIMARY KEY, bytes BLOB)"); err != nil {
		return SQLiteCache{}, err
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s SQLiteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRowContext(ctx, "SELECT bytes FROM cache WHERE key = ?", key).Scan(&bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteCache) Put(ctx context.Context, key string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO cache (key, bytes) VALUES (?, ?)", key, bytes)
	return err
}

func (s SQLiteCache) Purge(ctx context.Context, key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", key)
	return err
}

func (s SQLiteCache) AllKeys(ctx context.Context, prefix string, cb func(string)) error {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM cache WHERE key LIKE ? || '%' ORDER BY key", prefix)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		cb(key)
	}
	return rows.Err()
}

// Close closes the underlying database handle.
func (s SQLiteCache) Close() error {
	return s.db.Close()
}
