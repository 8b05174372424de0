package offcache

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/offcache/offcache/cache"
)

// FileConfig is the on-disk configuration of the gateway binary.
// Values can be overridden through OFFCACHE_* environment variables.
type FileConfig struct {
	// Version is the generation tag, fixed at deployment.
	Version string `yaml:"version" env:"OFFCACHE_VERSION"`
	// Origin is the URL of the origin server.
	Origin string `yaml:"origin" env:"OFFCACHE_ORIGIN"`
	// Port to listen on.
	Port int `yaml:"port" env:"OFFCACHE_PORT"`
	// Provider selects the storage backend:
	// memory, sqlite, leveldb or redis.
	Provider string `yaml:"provider" env:"OFFCACHE_PROVIDER"`
	// DBFile is the sqlite database file (sqlite provider).
	DBFile string `yaml:"dbFile" env:"OFFCACHE_DB_FILE"`
	// LevelDBPath is the database directory (leveldb provider).
	LevelDBPath string `yaml:"leveldbPath" env:"OFFCACHE_LEVELDB_PATH"`
	// Redis connection settings (redis provider).
	Redis cache.RedisConfig `yaml:"redis"`
	// Precache lists the origin paths written to the static partition
	// during install.
	Precache []string `yaml:"precache"`
	// Streaming lists host/path fragments that must never be cached.
	Streaming []string `yaml:"streaming"`
	// ImageRefs lists URL fragments treated as images in addition to the
	// well-known extensions.
	ImageRefs []string `yaml:"imageRefs"`
}

// LoadConfig reads the yaml config file and applies the environment overlay.
// An empty filename skips the file and uses only the environment and
// defaults. Required fields are checked by Validate, not here, so callers
// can still fill them in from flags.
func LoadConfig(filename string) (FileConfig, error) {
	config := FileConfig{
		Port:     8080,
		Provider: "sqlite",
		DBFile:   "cache.db",
	}

	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&config); err != nil {
		return config, fmt.Errorf("parse env: %w", err)
	}

	return config, nil
}

// Validate checks that the merged configuration is complete.
func (c FileConfig) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.Origin == "" {
		return fmt.Errorf("origin is required")
	}
	return nil
}
