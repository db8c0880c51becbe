package authz

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeStore struct {
	mu        sync.Mutex
	cells     map[GrantKey]bool
	lookupErr error
	setErr    error
	failSet   map[GrantKey]error
	lookups   int
	sets      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{cells: make(map[GrantKey]bool), failSet: make(map[GrantKey]error)}
}

func (f *fakeStore) Lookup(ctx context.Context, role Role, module Module, action Action) (GrantState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil {
		return GrantUnset, f.lookupErr
	}
	allowed, ok := f.cells[GrantKey{Role: role, Module: module, Action: action}]
	if !ok {
		return GrantUnset, nil
	}
	return StateOf(allowed), nil
}

func (f *fakeStore) Set(ctx context.Context, g Grant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	if err, ok := f.failSet[g.Key()]; ok {
		return err
	}
	f.cells[g.Key()] = g.Allowed
	return nil
}

func (f *fakeStore) ListByRole(ctx context.Context, role Role) ([]Grant, error) {
	all, err := f.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, g := range all {
		if g.Role == role {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAll(ctx context.Context) ([]Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	out := make([]Grant, 0, len(f.cells))
	for k, allowed := range f.cells {
		out = append(out, Grant{Role: k.Role, Module: k.Module, Action: k.Action, Allowed: allowed})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out, nil
}

func (f *fakeStore) grant(role Role, module Module, action Action, allowed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cells[GrantKey{Role: role, Module: module, Action: action}] = allowed
}

type fakeDirectory struct {
	actors      map[string]Actor
	assignments map[string][]string
	branches    []Branch
	err         error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{actors: make(map[string]Actor), assignments: make(map[string][]string)}
}

func (d *fakeDirectory) add(a Actor, branches ...string) {
	d.actors[a.ID] = a
	d.assignments[a.ID] = branches
}

func (d *fakeDirectory) GetActor(ctx context.Context, id string) (Actor, error) {
	if d.err != nil {
		return Actor{}, d.err
	}
	a, ok := d.actors[id]
	if !ok {
		return Actor{}, ErrActorNotFound
	}
	return a, nil
}

func (d *fakeDirectory) BranchAssignment(ctx context.Context, actorID string) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.assignments[actorID], nil
}

func (d *fakeDirectory) ListActors(ctx context.Context) ([]Actor, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make([]Actor, 0, len(d.actors))
	for _, a := range d.actors {
		out = append(out, a)
	}
	return out, nil
}

func (d *fakeDirectory) ListBranches(ctx context.Context) ([]Branch, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.branches, nil
}

type recordingObserver struct {
	mu        sync.Mutex
	decisions []Decision
	mutations map[GrantKey]error
	storeErrs []string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{mutations: make(map[GrantKey]error)}
}

func (o *recordingObserver) ObserveDecision(d Decision) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, d)
}

func (o *recordingObserver) ObserveGrantMutation(key GrantKey, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mutations[key] = err
}

func (o *recordingObserver) ObserveStoreError(op string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.storeErrs = append(o.storeErrs, op)
}

var errBackendDown = errors.New("connection refused")
