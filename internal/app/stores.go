package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	"github.com/odyssey-erp/odyssey-authz/internal/authz/grants"
	"github.com/odyssey-erp/odyssey-authz/internal/directory"
)

// Backends carries the connections a process opened. Either may be nil.
type Backends struct {
	Pool  *pgxpool.Pool
	Redis redis.UniversalClient
}

// NewGrantStore builds the configured grant store behind a circuit breaker.
func NewGrantStore(ctx context.Context, cfg *Config, backends Backends, logger *slog.Logger) (*grants.BreakerStore, error) {
	var store authz.GrantStore
	switch cfg.GrantBackend {
	case BackendPostgres:
		if backends.Pool == nil {
			return nil, errors.New("grant backend postgres requires a database pool")
		}
		pg := grants.NewPostgresStore(backends.Pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		store = pg
	case BackendRedis:
		if backends.Redis == nil {
			return nil, errors.New("grant backend redis requires a redis client")
		}
		store = grants.NewRedisStore(backends.Redis)
	case BackendMemory:
		store = grants.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown grant backend %q", cfg.GrantBackend)
	}
	return grants.NewBreakerStore(store, grants.BreakerConfig{
		Name:        "grant-store-" + cfg.GrantBackend,
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, logger), nil
}

// NewDirectory returns the fixture directory when configured, otherwise the
// Postgres directory.
func NewDirectory(cfg *Config, backends Backends) (authz.Directory, error) {
	if cfg.DirectoryFixture != "" {
		f, err := os.Open(cfg.DirectoryFixture)
		if err != nil {
			return nil, fmt.Errorf("open directory fixture: %w", err)
		}
		defer f.Close()
		mem, err := directory.LoadFixture(f)
		if err != nil {
			return nil, err
		}
		return mem, nil
	}
	if backends.Pool == nil {
		return nil, errors.New("directory requires a database pool or DIRECTORY_FIXTURE")
	}
	return directory.NewPostgresDirectory(backends.Pool), nil
}

// NeedsPostgres reports whether cfg requires a database pool.
func (c *Config) NeedsPostgres() bool {
	return c.GrantBackend == BackendPostgres || c.DirectoryFixture == ""
}

// NewService wires the engine from cfg.
func NewService(store authz.GrantStore, dir authz.Directory, observer authz.Observer, cfg *Config, logger *slog.Logger) *authz.Service {
	return authz.NewService(store, dir, observer, logger, authz.ServiceConfig{
		StoreTimeout:     cfg.StoreTimeout,
		BatchConcurrency: cfg.SeedConcurrency,
	})
}
