// Package matrixedit keeps an editable local view of one role's grant
// matrix. Toggles apply optimistically and revert when the write fails.
package matrixedit

import (
	"context"
	"fmt"
	"sync"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
)

// Backend is the subset of authz.Service the editor drives.
type Backend interface {
	GetMatrix(ctx context.Context, role authz.Role) ([]authz.Grant, error)
	SetGrant(ctx context.Context, role authz.Role, module authz.Module, action authz.Action, allowed bool) error
	ApplyBatch(ctx context.Context, role authz.Role, updates []authz.GrantUpdate) authz.BatchResult
}

// Editor is safe for concurrent use. Writes to the same cell are
// serialized; writes to different cells run concurrently.
type Editor struct {
	backend Backend
	catalog *authz.Catalog
	role    authz.Role

	mu    sync.RWMutex
	view  map[authz.GrantKey]bool
	locks map[authz.GrantKey]*sync.Mutex
}

// New returns an editor for role with an empty view. Call Load to fetch the
// stored matrix.
func New(backend Backend, role authz.Role) (*Editor, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role %q", authz.ErrInvalidGrantTuple, role)
	}
	return &Editor{
		backend: backend,
		catalog: authz.DefaultCatalog(),
		role:    role,
		view:    make(map[authz.GrantKey]bool),
		locks:   make(map[authz.GrantKey]*sync.Mutex),
	}, nil
}

// Role returns the edited role.
func (e *Editor) Role() authz.Role {
	return e.role
}

// Load replaces the local view with the stored matrix.
func (e *Editor) Load(ctx context.Context) error {
	grants, err := e.backend.GetMatrix(ctx, e.role)
	if err != nil {
		return err
	}
	view := make(map[authz.GrantKey]bool, len(grants))
	for _, g := range grants {
		view[g.Key()] = g.Allowed
	}
	e.mu.Lock()
	e.view = view
	e.mu.Unlock()
	return nil
}

// State reports the local state of a cell.
func (e *Editor) State(module authz.Module, action authz.Action) authz.GrantState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	allowed, ok := e.view[e.key(module, action)]
	if !ok {
		return authz.GrantUnset
	}
	return authz.StateOf(allowed)
}

// Toggle flips a cell and persists it. An unset cell toggles to allowed. On
// failure the local view is restored and the error returned.
func (e *Editor) Toggle(ctx context.Context, module authz.Module, action authz.Action) (bool, error) {
	unlock := e.lockCell(module, action)
	defer unlock()
	next := e.State(module, action) != authz.GrantAllowed
	return next, e.write(ctx, module, action, next)
}

// Set persists an explicit value with the same optimistic semantics as
// Toggle.
func (e *Editor) Set(ctx context.Context, module authz.Module, action authz.Action, allowed bool) error {
	unlock := e.lockCell(module, action)
	defer unlock()
	return e.write(ctx, module, action, allowed)
}

func (e *Editor) write(ctx context.Context, module authz.Module, action authz.Action, allowed bool) error {
	key := e.key(module, action)
	e.mu.Lock()
	prev, had := e.view[key]
	e.view[key] = allowed
	e.mu.Unlock()

	if err := e.backend.SetGrant(ctx, e.role, module, action, allowed); err != nil {
		e.mu.Lock()
		if had {
			e.view[key] = prev
		} else {
			delete(e.view, key)
		}
		e.mu.Unlock()
		return err
	}
	return nil
}

// SaveAll pushes every catalog cell of the local view in one best-effort
// batch. Unset cells are saved as denied.
func (e *Editor) SaveAll(ctx context.Context) authz.BatchResult {
	e.mu.RLock()
	updates := make([]authz.GrantUpdate, 0, e.catalog.Cells())
	for _, module := range e.catalog.Modules() {
		for _, action := range e.catalog.Actions(module) {
			updates = append(updates, authz.GrantUpdate{
				Module:  module,
				Action:  action,
				Allowed: e.view[e.key(module, action)],
			})
		}
	}
	e.mu.RUnlock()
	return e.backend.ApplyBatch(ctx, e.role, updates)
}

// Cells returns the local view over the whole catalog.
func (e *Editor) Cells() []authz.MatrixCell {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cells := make([]authz.MatrixCell, 0, e.catalog.Cells())
	for _, module := range e.catalog.Modules() {
		for _, action := range e.catalog.Actions(module) {
			cell := authz.MatrixCell{Module: module, Action: action, State: authz.GrantUnset}
			if allowed, ok := e.view[e.key(module, action)]; ok {
				cell.State = authz.StateOf(allowed)
				cell.Allowed = allowed
			}
			cell.Status = cell.State.String()
			cells = append(cells, cell)
		}
	}
	return cells
}

func (e *Editor) key(module authz.Module, action authz.Action) authz.GrantKey {
	return authz.GrantKey{Role: e.role, Module: module, Action: action}
}

func (e *Editor) lockCell(module authz.Module, action authz.Action) func() {
	key := e.key(module, action)
	e.mu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}
