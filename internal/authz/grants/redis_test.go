package grants

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStoreContract(t *testing.T) {
	store, _ := newRedisStore(t)
	exerciseStore(t, store)
}

func TestRedisStoreLayout(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, authz.Grant{Role: authz.RoleUser, Module: authz.ModuleLedger, Action: authz.ActionViewCustomer, Allowed: true}))
	assert.Equal(t, "1", mr.HGet("authz:grants:user", "ledger:view_customer"))

	// Malformed values read as denied and are skipped by listings.
	mr.HSet("authz:grants:user", "sales:edit", "yes")
	mr.HSet("authz:grants:user", "garbage", "1")
	state, err := store.Lookup(ctx, authz.RoleUser, authz.ModuleSales, authz.ActionEdit)
	require.NoError(t, err)
	assert.Equal(t, authz.GrantDenied, state)

	grants, err := store.ListByRole(ctx, authz.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, []authz.Grant{{Role: authz.RoleUser, Module: authz.ModuleLedger, Action: authz.ActionViewCustomer, Allowed: true}}, grants)
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Lookup(context.Background(), authz.RoleUser, authz.ModuleSales, authz.ActionEdit)
	require.Error(t, err)
	assert.ErrorIs(t, authz.StoreError("lookup", err), authz.ErrStoreUnavailable)
}
