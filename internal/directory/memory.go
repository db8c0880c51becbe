package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
)

// Memory is an in-process directory for tests, the CLI and the memory
// backend.
type Memory struct {
	mu          sync.RWMutex
	actors      map[string]authz.Actor
	assignments map[string][]string
	branches    map[string]authz.Branch
}

// NewMemory returns an empty directory.
func NewMemory() *Memory {
	return &Memory{
		actors:      make(map[string]authz.Actor),
		assignments: make(map[string][]string),
		branches:    make(map[string]authz.Branch),
	}
}

// PutActor stores an actor and replaces its branch assignment.
func (m *Memory) PutActor(actor authz.Actor, branchIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actors[actor.ID] = actor
	m.assignments[actor.ID] = append([]string(nil), branchIDs...)
}

// PutBranch stores a branch.
func (m *Memory) PutBranch(b authz.Branch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branches[b.ID] = b
}

func (m *Memory) GetActor(ctx context.Context, id string) (authz.Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actors[id]
	if !ok {
		return authz.Actor{}, fmt.Errorf("%w: %q", authz.ErrActorNotFound, id)
	}
	return a, nil
}

func (m *Memory) ListActors(ctx context.Context) ([]authz.Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]authz.Actor, 0, len(m.actors))
	for _, a := range m.actors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListBranches(ctx context.Context) ([]authz.Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]authz.Branch, 0, len(m.branches))
	for _, b := range m.branches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) BranchAssignment(ctx context.Context, actorID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.assignments[actorID]...), nil
}

// Fixture is the JSON layout accepted by LoadFixture.
type Fixture struct {
	Branches []authz.Branch `json:"branches"`
	Actors   []FixtureActor `json:"actors"`
}

// FixtureActor is one directory entry in a fixture file.
type FixtureActor struct {
	ID       string   `json:"id"`
	Role     string   `json:"role"`
	Active   *bool    `json:"active"`
	Branches []string `json:"branches"`
}

// LoadFixture decodes a JSON fixture into a new Memory directory. Actors
// without an explicit active flag are active.
func LoadFixture(r io.Reader) (*Memory, error) {
	var fx Fixture
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("directory: decode fixture: %w", err)
	}
	m := NewMemory()
	for _, b := range fx.Branches {
		m.PutBranch(b)
	}
	for _, a := range fx.Actors {
		if a.ID == "" {
			return nil, errors.New("directory: fixture actor without id")
		}
		active := true
		if a.Active != nil {
			active = *a.Active
		}
		m.PutActor(authz.Actor{ID: a.ID, RawRole: a.Role, Active: active}, a.Branches...)
	}
	return m, nil
}

var _ authz.Directory = (*Memory)(nil)
