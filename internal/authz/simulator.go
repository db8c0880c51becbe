package authz

import (
	"context"
	"errors"
)

// Simulation partitions every declared action of a module for one actor.
// Allowed and Denied are disjoint and together equal the module's catalog
// actions.
type Simulation struct {
	ActorID   string     `json:"actor_id"`
	Role      Role       `json:"role"`
	Module    Module     `json:"module"`
	Allowed   []Action   `json:"allowed"`
	Denied    []Action   `json:"denied"`
	Decisions []Decision `json:"decisions"`
}

// Simulator previews a role's matrix for an actor at module level.
type Simulator struct {
	evaluator *Evaluator
}

// NewSimulator wraps an evaluator.
func NewSimulator(evaluator *Evaluator) *Simulator {
	return &Simulator{evaluator: evaluator}
}

// Simulate evaluates every action of module without a target branch.
// Infrastructure failures deny the affected actions and are returned joined;
// the partition is complete regardless.
func (s *Simulator) Simulate(ctx context.Context, actor Actor, module Module) (Simulation, error) {
	sim := Simulation{
		ActorID: actor.ID,
		Role:    Normalize(actor.RawRole),
		Module:  module,
		Allowed: []Action{},
		Denied:  []Action{},
	}
	catalog := s.evaluator.Catalog()
	if !catalog.HasModule(module) {
		return sim, unknownModuleAction("module %q", module)
	}
	var errs []error
	for _, action := range catalog.Actions(module) {
		d, err := s.evaluator.Evaluate(ctx, Request{Actor: actor, Module: module, Action: action})
		if err != nil {
			errs = append(errs, err)
		}
		sim.Decisions = append(sim.Decisions, d)
		if d.Allowed {
			sim.Allowed = append(sim.Allowed, action)
		} else {
			sim.Denied = append(sim.Denied, action)
		}
	}
	return sim, errors.Join(errs...)
}

// Allows reports whether action landed in the allowed partition.
func (s Simulation) Allows(action Action) bool {
	for _, a := range s.Allowed {
		if a == action {
			return true
		}
	}
	return false
}
