package app

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	"github.com/odyssey-erp/odyssey-authz/internal/authz/grants"
	"github.com/odyssey-erp/odyssey-authz/internal/observability"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/db"
)

// Runtime holds the engine and the connections it owns.
type Runtime struct {
	Service  *authz.Service
	Store    *grants.BreakerStore
	Metrics  *observability.Metrics
	backends Backends
	logger   *slog.Logger
}

// Bootstrap opens the connections cfg requires and wires the engine.
func Bootstrap(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{logger: logger}
	if cfg.NeedsPostgres() {
		pool, err := db.New(ctx, cfg.PGDSN, 0)
		if err != nil {
			return nil, err
		}
		rt.backends.Pool = pool
	}
	if cfg.GrantBackend == BackendRedis {
		client, err := cache.New(ctx, cfg.RedisAddr, cfg.StoreTimeout)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.backends.Redis = client
	}

	store, err := NewGrantStore(ctx, cfg, rt.backends, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	dir, err := NewDirectory(cfg, rt.backends)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Store = store
	rt.Metrics = observability.NewMetrics()
	rt.Service = NewService(store, dir, rt.Metrics, cfg, logger)
	logger.Info("authz engine ready",
		slog.String("grant_backend", cfg.GrantBackend),
		slog.Bool("directory_fixture", cfg.DirectoryFixture != ""),
		slog.String("catalog_version", authz.CatalogVersion))
	return rt, nil
}

// Close releases the connections opened by Bootstrap.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	if r.backends.Redis != nil {
		if err := r.backends.Redis.Close(); err != nil {
			r.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if r.backends.Pool != nil {
		r.backends.Pool.Close()
	}
}
