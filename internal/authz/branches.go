package authz

import (
	"context"
	"slices"
)

// AssignmentSource yields the stored branch assignment of an actor.
type AssignmentSource interface {
	BranchAssignment(ctx context.Context, actorID string) ([]string, error)
}

// BranchSet is an effective branch set. The AllBranches sentinel is never
// materialized, so it stays correct as branches are added or removed.
type BranchSet struct {
	all bool
	ids map[string]struct{}
}

// AllBranches returns the wildcard sentinel.
func AllBranches() BranchSet {
	return BranchSet{all: true}
}

// NewBranchSet builds an explicit set. An empty set grants no branch.
func NewBranchSet(ids ...string) BranchSet {
	set := BranchSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id == "" {
			continue
		}
		set.ids[id] = struct{}{}
	}
	return set
}

// All reports whether this is the AllBranches sentinel.
func (s BranchSet) All() bool {
	return s.all
}

// Contains reports whether branch is within the set.
func (s BranchSet) Contains(branch string) bool {
	if s.all {
		return true
	}
	_, ok := s.ids[branch]
	return ok
}

// IDs returns the explicit ids sorted; nil for the sentinel.
func (s BranchSet) IDs() []string {
	if s.all {
		return nil
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Len returns the explicit set size, -1 for the sentinel.
func (s BranchSet) Len() int {
	if s.all {
		return -1
	}
	return len(s.ids)
}

// BranchResolver computes effective branch sets.
type BranchResolver struct {
	source AssignmentSource
}

// NewBranchResolver wires the resolver to an assignment source.
func NewBranchResolver(source AssignmentSource) *BranchResolver {
	return &BranchResolver{source: source}
}

// EffectiveBranches returns AllBranches for bypass roles and the stored
// assignment otherwise. The role must already be normalized.
func (r *BranchResolver) EffectiveBranches(ctx context.Context, actorID string, role Role) (BranchSet, error) {
	if role.Bypass() {
		return AllBranches(), nil
	}
	if r == nil || r.source == nil {
		return NewBranchSet(), nil
	}
	ids, err := r.source.BranchAssignment(ctx, actorID)
	if err != nil {
		return NewBranchSet(), DirectoryError("branch assignment", err)
	}
	return NewBranchSet(ids...), nil
}
