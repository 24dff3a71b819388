package tokenstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store persists one opaque session token
type Store interface {
	// Load returns the stored token, or "" when there is none
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	Close() error
}

const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config selects and configures a backend
type Config struct {
	Driver        string        `yaml:"driver"`
	Path          string        `yaml:"path"`
	Key           string        `yaml:"key"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
	PostgresURL   string        `yaml:"postgres_url"`
}

// DefaultPath is where the file backend keeps the token when no path is set
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "energytrade", "token")
}

func (c Config) key() string {
	if c.Key == "" {
		return "default"
	}
	return c.Key
}

func (c Config) path() string {
	if c.Path == "" {
		return DefaultPath()
	}
	return c.Path
}

// Open builds the configured backend. When a networked backend cannot be
// reached the file backend is used instead and a warning is logged.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(cfg.Driver) {
	case "", DriverFile:
		return NewFile(cfg.path()), nil

	case DriverMemory:
		return NewMemory(), nil

	case DriverSQLite:
		path := cfg.path()
		if cfg.Path == "" {
			path += ".db"
		}
		return NewSQLite(ctx, path)

	case DriverRedis:
		store, err := NewRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.key(),
			TTL:      cfg.RedisTTL,
		})
		if err != nil {
			logger.Warn("redis token store unavailable, falling back to file", "error", err)
			return NewFile(cfg.path()), nil
		}
		return store, nil

	case DriverPostgres:
		store, err := NewPostgres(ctx, cfg.PostgresURL, cfg.key())
		if err != nil {
			logger.Warn("postgres token store unavailable, falling back to file", "error", err)
			return NewFile(cfg.path()), nil
		}
		return store, nil
	}
	return nil, fmt.Errorf("tokenstore: unknown driver %q", cfg.Driver)
}
