package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"OFFCACHE_REDIS_ADDR"`
	Password string `yaml:"password" env:"OFFCACHE_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"OFFCACHE_REDIS_DB"`
}

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the given redis instance and verifies the
// connection with a ping before returning.
func NewRedisCache(cfg RedisConfig) (RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return RedisCache{}, fmt.Errorf("connect to redis: %w", err)
	}

	return RedisCache{client: client}, nil
}

func (r RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	bytes, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (r RedisCache) Put(ctx context.Context, key string, bytes []byte) error {
	// entries have no TTL, generational cleanup is the only expiry
	return r.client.Set(ctx, key, bytes, 0).Err()
}

func (r RedisCache) Purge(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r RedisCache) AllKeys(ctx context.Context, prefix string, cb func(string)) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		cb(iter.Val())
	}
	return iter.Err()
}

// Close closes the underlying client.
func (r RedisCache) Close() error {
	return r.client.Close()
}
