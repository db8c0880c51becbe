package authz

import "context"

// GrantStore persists the permission matrix. Absent cells are default-deny.
// Implementations must give read-your-writes per key and last-write-wins
// under concurrent Set calls, and must classify backend failures with
// StoreError so callers can tell timeouts from other outages.
type GrantStore interface {
	// Lookup returns the state of a cell; GrantUnset when no row exists.
	Lookup(ctx context.Context, role Role, module Module, action Action) (GrantState, error)
	// Set upserts a cell. Idempotent.
	Set(ctx context.Context, grant Grant) error
	// ListByRole returns the stored cells of a role.
	ListByRole(ctx context.Context, role Role) ([]Grant, error)
	// ListAll returns every stored cell.
	ListAll(ctx context.Context) ([]Grant, error)
}

// GetGrant reports whether a cell is allowed, treating absence as denied.
func GetGrant(ctx context.Context, store GrantStore, role Role, module Module, action Action) (bool, error) {
	state, err := store.Lookup(ctx, role, module, action)
	if err != nil {
		return false, err
	}
	return state == GrantAllowed, nil
}
