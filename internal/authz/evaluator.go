package authz

import "context"

// Request is a point authorization question. Branch is optional; an empty
// Branch skips the branch check.
type Request struct {
	Actor  Actor
	Module Module
	Action Action
	Branch string
}

// Evaluator answers authorization requests. It holds no mutable state and
// is safe for concurrent use.
type Evaluator struct {
	catalog  *Catalog
	grants   GrantStore
	branches *BranchResolver
}

// NewEvaluator constructs an Evaluator. A nil catalog selects DefaultCatalog.
func NewEvaluator(catalog *Catalog, grants GrantStore, branches *BranchResolver) *Evaluator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Evaluator{catalog: catalog, grants: grants, branches: branches}
}

// Catalog returns the catalog the evaluator validates against.
func (e *Evaluator) Catalog() *Catalog {
	return e.catalog
}

// Evaluate always returns a Decision. The error is non-nil only for
// infrastructure failures, in which case the Decision denies.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (Decision, error) {
	d := Decision{
		ActorID: req.Actor.ID,
		Module:  req.Module,
		Action:  req.Action,
		Branch:  req.Branch,
	}
	if !req.Actor.Active {
		return deny(d, ReasonInactiveActor), nil
	}
	role := Normalize(req.Actor.RawRole)
	d.Role = role

	if !e.catalog.Declares(req.Module, req.Action) {
		return deny(d, ReasonUnknownModuleAction), nil
	}

	if role.Bypass() {
		return allow(d, ReasonRoleBypass), nil
	}

	state, err := e.lookup(ctx, role, req.Module, req.Action)
	if err != nil {
		return deny(d, ReasonDefaultDeny), err
	}
	switch state {
	case GrantUnset:
		return deny(d, ReasonDefaultDeny), nil
	case GrantDenied:
		return deny(d, ReasonExplicitDeny), nil
	}

	if req.Branch != "" {
		effective, err := e.branches.EffectiveBranches(ctx, req.Actor.ID, role)
		if err != nil {
			return deny(d, ReasonBranchDenied), err
		}
		if !effective.Contains(req.Branch) {
			return deny(d, ReasonBranchDenied), nil
		}
	}
	return allow(d, ReasonExplicitGrant), nil
}

func (e *Evaluator) lookup(ctx context.Context, role Role, module Module, action Action) (GrantState, error) {
	if e.grants == nil {
		return GrantUnset, nil
	}
	state, err := e.grants.Lookup(ctx, role, module, action)
	if err != nil {
		return GrantUnset, StoreError("lookup", err)
	}
	return state, nil
}

func allow(d Decision, reason Reason) Decision {
	d.Allowed = true
	d.Reason = reason
	return d
}

func deny(d Decision, reason Reason) Decision {
	d.Allowed = false
	d.Reason = reason
	return d
}
