// Package grants provides GrantStore backends: in-memory, PostgreSQL,
// Redis and a circuit breaker decorator.
package grants

import (
	"context"
	"sort"
	"sync"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
)

// MemoryStore keeps the matrix in process. Writes to the same cell are
// last-write-wins.
type MemoryStore struct {
	mu    sync.RWMutex
	cells map[authz.GrantKey]bool
}

// NewMemoryStore returns an empty store, optionally pre-populated.
func NewMemoryStore(seed ...authz.Grant) *MemoryStore {
	s := &MemoryStore{cells: make(map[authz.GrantKey]bool, len(seed))}
	for _, g := range seed {
		s.cells[g.Key()] = g.Allowed
	}
	return s
}

func (s *MemoryStore) Lookup(ctx context.Context, role authz.Role, module authz.Module, action authz.Action) (authz.GrantState, error) {
	if err := ctx.Err(); err != nil {
		return authz.GrantUnset, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed, ok := s.cells[authz.GrantKey{Role: role, Module: module, Action: action}]
	if !ok {
		return authz.GrantUnset, nil
	}
	return authz.StateOf(allowed), nil
}

func (s *MemoryStore) Set(ctx context.Context, g authz.Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells[g.Key()] = g.Allowed
	return nil
}

func (s *MemoryStore) ListByRole(ctx context.Context, role authz.Role) ([]authz.Grant, error) {
	return s.list(ctx, func(k authz.GrantKey) bool { return k.Role == role })
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]authz.Grant, error) {
	return s.list(ctx, func(authz.GrantKey) bool { return true })
}

func (s *MemoryStore) list(ctx context.Context, keep func(authz.GrantKey) bool) ([]authz.Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]authz.Grant, 0, len(s.cells))
	for k, allowed := range s.cells {
		if keep(k) {
			out = append(out, authz.Grant{Role: k.Role, Module: k.Module, Action: k.Action, Allowed: allowed})
		}
	}
	s.mu.RUnlock()
	sortGrants(out)
	return out, nil
}

func sortGrants(gs []authz.Grant) {
	sort.Slice(gs, func(i, j int) bool {
		a, b := gs[i], gs[j]
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		return a.Action < b.Action
	})
}

var _ authz.GrantStore = (*MemoryStore)(nil)
