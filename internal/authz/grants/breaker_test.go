package grants

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
)

// ============================================================================
// MOCK GRANT STORE
// ============================================================================

type flakyStore struct {
	*MemoryStore
	err   error
	calls int
}

func (f *flakyStore) Lookup(ctx context.Context, role authz.Role, module authz.Module, action authz.Action) (authz.GrantState, error) {
	f.calls++
	if f.err != nil {
		return authz.GrantUnset, f.err
	}
	return f.MemoryStore.Lookup(ctx, role, module, action)
}

func (f *flakyStore) Set(ctx context.Context, g authz.Grant) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return f.MemoryStore.Set(ctx, g)
}

func TestBreakerStorePassesThrough(t *testing.T) {
	next := &flakyStore{MemoryStore: NewMemoryStore()}
	store := NewBreakerStore(next, BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute}, nil)
	exerciseStore(t, store)
	assert.Equal(t, "closed", store.State())
}

func TestBreakerStoreOpensAfterConsecutiveFailures(t *testing.T) {
	next := &flakyStore{MemoryStore: NewMemoryStore(), err: errors.New("dial tcp: connection refused")}
	store := NewBreakerStore(next, BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := store.Lookup(ctx, authz.RoleUser, authz.ModuleSales, authz.ActionEdit)
		require.Error(t, err)
	}
	assert.Equal(t, "open", store.State())

	calls := next.calls
	_, err := store.Lookup(ctx, authz.RoleUser, authz.ModuleSales, authz.ActionEdit)
	require.ErrorIs(t, err, authz.ErrStoreUnavailable)
	assert.Equal(t, calls, next.calls, "open breaker must not reach the backend")

	err = store.Set(ctx, authz.Grant{Role: authz.RoleUser, Module: authz.ModuleSales, Action: authz.ActionEdit})
	assert.ErrorIs(t, err, authz.ErrStoreUnavailable)
}

func TestBreakerStoreIgnoresInvalidTuples(t *testing.T) {
	next := &flakyStore{MemoryStore: NewMemoryStore(), err: authz.ErrInvalidGrantTuple}
	store := NewBreakerStore(next, BreakerConfig{MaxFailures: 1, OpenTimeout: time.Minute}, nil)
	for i := 0; i < 3; i++ {
		err := store.Set(context.Background(), authz.Grant{Role: authz.RoleUser})
		assert.ErrorIs(t, err, authz.ErrInvalidGrantTuple)
	}
	assert.Equal(t, "closed", store.State())
}

func TestBreakerStoreIgnoresCallerCancellation(t *testing.T) {
	next := &flakyStore{MemoryStore: NewMemoryStore(authz.Grant{Role: authz.RoleUser, Module: authz.ModuleSales, Action: authz.ActionEdit, Allowed: true})}
	store := NewBreakerStore(next, BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute}, nil)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()

	for i := 0; i < 5; i++ {
		_, err := store.Lookup(cancelled, authz.RoleUser, authz.ModuleSales, authz.ActionEdit)
		require.ErrorIs(t, err, context.Canceled)
		_, err = store.Lookup(expired, authz.RoleUser, authz.ModuleSales, authz.ActionEdit)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		_, err = store.ListByRole(cancelled, authz.RoleUser)
		require.Error(t, err)
		require.Error(t, store.Set(cancelled, authz.Grant{Role: authz.RoleUser, Module: authz.ModuleSales, Action: authz.ActionEdit}))
	}
	assert.Equal(t, "closed", store.State())
	assert.Zero(t, next.calls, "done contexts must not reach the backend")

	state, err := store.Lookup(context.Background(), authz.RoleUser, authz.ModuleSales, authz.ActionEdit)
	require.NoError(t, err)
	assert.Equal(t, authz.GrantAllowed, state)
}

func TestBreakerStoreCancelledMidCallDoesNotTrip(t *testing.T) {
	next := &flakyStore{MemoryStore: NewMemoryStore(), err: context.Canceled}
	store := NewBreakerStore(next, BreakerConfig{MaxFailures: 1, OpenTimeout: time.Minute}, nil)
	for i := 0; i < 3; i++ {
		_, err := store.Lookup(context.Background(), authz.RoleUser, authz.ModuleSales, authz.ActionEdit)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", store.State())
	assert.Equal(t, 3, next.calls)
}

func TestClassifyPgError(t *testing.T) {
	assert.NoError(t, classifyPgError(nil))

	err := classifyPgError(&pgconn.PgError{Code: "23514", Message: "violates check constraint"})
	assert.ErrorIs(t, err, authz.ErrInvalidGrantTuple)

	raw := &pgconn.PgError{Code: "57P01", Message: "terminating connection"}
	assert.Equal(t, raw, classifyPgError(raw))
	assert.ErrorIs(t, authz.StoreError("set", classifyPgError(raw)), authz.ErrStoreUnavailable)
}
