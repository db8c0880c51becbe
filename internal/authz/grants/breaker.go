package grants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
)

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	Name        string
	MaxFailures uint32
	OpenTimeout time.Duration
}

// BreakerStore short-circuits a failing backend. While open, every call
// fails with ErrStoreUnavailable without touching the backend.
type BreakerStore struct {
	next authz.GrantStore
	cb   *gobreaker.CircuitBreaker[any]
}

// NewBreakerStore wraps next. Invalid tuples and caller cancellation do not
// count as failures.
func NewBreakerStore(next authz.GrantStore, cfg BreakerConfig, logger *slog.Logger) *BreakerStore {
	if cfg.Name == "" {
		cfg.Name = "grant-store"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, authz.ErrInvalidGrantTuple) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("grant store breaker state change", slog.String("breaker", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// State reports the breaker state for health endpoints.
func (s *BreakerStore) State() string {
	return s.cb.State().String()
}

func (s *BreakerStore) Lookup(ctx context.Context, role authz.Role, module authz.Module, action authz.Action) (authz.GrantState, error) {
	if err := ctx.Err(); err != nil {
		return authz.GrantUnset, err
	}
	v, err := s.cb.Execute(func() (any, error) {
		return s.next.Lookup(ctx, role, module, action)
	})
	if err != nil {
		return authz.GrantUnset, breakerError(err)
	}
	return v.(authz.GrantState), nil
}

func (s *BreakerStore) Set(ctx context.Context, g authz.Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.next.Set(ctx, g)
	})
	return breakerError(err)
}

func (s *BreakerStore) ListByRole(ctx context.Context, role authz.Role) ([]authz.Grant, error) {
	return s.list(ctx, func() ([]authz.Grant, error) { return s.next.ListByRole(ctx, role) })
}

func (s *BreakerStore) ListAll(ctx context.Context) ([]authz.Grant, error) {
	return s.list(ctx, func() ([]authz.Grant, error) { return s.next.ListAll(ctx) })
}

func (s *BreakerStore) list(ctx context.Context, fn func() ([]authz.Grant, error)) ([]authz.Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := s.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, breakerError(err)
	}
	return v.([]authz.Grant), nil
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", authz.ErrStoreUnavailable, err)
	}
	return err
}

var _ authz.GrantStore = (*BreakerStore)(nil)
