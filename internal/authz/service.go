package authz

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Directory is the consumed user/branch directory collaborator.
type Directory interface {
	AssignmentSource
	GetActor(ctx context.Context, id string) (Actor, error)
	ListActors(ctx context.Context) ([]Actor, error)
	ListBranches(ctx context.Context) ([]Branch, error)
}

// Observer receives engine outcomes for metrics. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveDecision(d Decision)
	ObserveGrantMutation(key GrantKey, err error)
	ObserveStoreError(op string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(Decision)             {}
func (nopObserver) ObserveGrantMutation(GrantKey, error) {}
func (nopObserver) ObserveStoreError(string, error)      {}

// ServiceConfig tunes the service.
type ServiceConfig struct {
	// StoreTimeout bounds every grant store and directory call. Zero keeps
	// only the caller's deadline.
	StoreTimeout time.Duration
	// BatchConcurrency bounds concurrent writes in ApplyBatch.
	BatchConcurrency int
}

// Service is the exposed decision API: evaluate, simulate, matrix reads and
// writes, batch seeding, dashboard and policy preview.
type Service struct {
	catalog   *Catalog
	grants    GrantStore
	directory Directory
	evaluator *Evaluator
	simulator *Simulator
	observer  Observer
	logger    *slog.Logger
	cfg       ServiceConfig
	dashboard singleflight.Group
}

// NewService wires the engine. observer and logger may be nil.
func NewService(grants GrantStore, directory Directory, observer Observer, logger *slog.Logger, cfg ServiceConfig) *Service {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 4
	}
	catalog := DefaultCatalog()
	s := &Service{
		catalog:   catalog,
		grants:    grants,
		directory: directory,
		observer:  observer,
		logger:    logger,
		cfg:       cfg,
	}
	// The evaluator sees the same deadline-bounded collaborators as the
	// service.
	s.evaluator = NewEvaluator(catalog, boundedStore{GrantStore: grants, timeout: cfg.StoreTimeout}, NewBranchResolver(boundedSource{source: directory, timeout: cfg.StoreTimeout}))
	s.simulator = NewSimulator(s.evaluator)
	return s
}

// Catalog exposes the module/action catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Evaluate resolves the actor and evaluates a point request. Unknown actors
// and infrastructure failures deny and return the error for alerting.
func (s *Service) Evaluate(ctx context.Context, actorID string, module Module, action Action, branch string) (Decision, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		d := Decision{ActorID: actorID, Module: module, Action: action, Branch: branch, Reason: ReasonDefaultDeny}
		s.observer.ObserveDecision(d)
		return d, err
	}
	d, err := s.evaluator.Evaluate(ctx, Request{Actor: actor, Module: module, Action: action, Branch: branch})
	if err != nil {
		s.observer.ObserveStoreError("evaluate", err)
		s.logger.Warn("authz evaluate failed closed", slog.String("actor", actorID), slog.String("module", string(module)), slog.String("action", string(action)), slog.Any("error", err))
	}
	s.observer.ObserveDecision(d)
	return d, err
}

// Simulate previews every action of module for the actor.
func (s *Service) Simulate(ctx context.Context, actorID string, module Module) (Simulation, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return Simulation{}, err
	}
	sim, err := s.simulator.Simulate(ctx, actor, module)
	if err != nil && !errors.Is(err, ErrUnknownModuleAction) {
		s.observer.ObserveStoreError("simulate", err)
		s.logger.Warn("authz simulate degraded", slog.String("actor", actorID), slog.String("module", string(module)), slog.Any("error", err))
	}
	return sim, err
}

// PolicyPreview simulates and authors the row-level-security statement the
// actor's current matrix implies for module.
func (s *Service) PolicyPreview(ctx context.Context, actorID string, module Module) (PolicyPreview, error) {
	sim, err := s.Simulate(ctx, actorID, module)
	if err != nil {
		return PolicyPreview{}, err
	}
	branches, err := s.evaluator.branches.EffectiveBranches(ctx, actorID, sim.Role)
	if err != nil {
		return PolicyPreview{}, err
	}
	return AuthorPolicy(sim, branches)
}

// GetMatrix returns the stored grants of a role.
func (s *Service) GetMatrix(ctx context.Context, role Role) ([]Grant, error) {
	if !role.Valid() {
		return nil, invalidGrant("role %q", role)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	grants, err := s.grants.ListByRole(ctx, role)
	if err != nil {
		err = StoreError("list by role", err)
		s.observer.ObserveStoreError("list_by_role", err)
		return nil, err
	}
	return grants, nil
}

// MatrixCell is one catalog cell with its stored state.
type MatrixCell struct {
	Module  Module     `json:"module"`
	Action  Action     `json:"action"`
	State   GrantState `json:"-"`
	Status  string     `json:"state"`
	Allowed bool       `json:"allowed"`
}

// Matrix returns every catalog cell for role, including unset ones.
func (s *Service) Matrix(ctx context.Context, role Role) ([]MatrixCell, error) {
	stored, err := s.GetMatrix(ctx, role)
	if err != nil {
		return nil, err
	}
	byKey := make(map[GrantKey]bool, len(stored))
	for _, g := range stored {
		byKey[g.Key()] = g.Allowed
	}
	cells := make([]MatrixCell, 0, s.catalog.Cells())
	for _, module := range s.catalog.Modules() {
		for _, action := range s.catalog.Actions(module) {
			cell := MatrixCell{Module: module, Action: action, State: GrantUnset}
			if allowed, ok := byKey[GrantKey{Role: role, Module: module, Action: action}]; ok {
				cell.State = StateOf(allowed)
				cell.Allowed = allowed
			}
			cell.Status = cell.State.String()
			cells = append(cells, cell)
		}
	}
	return cells, nil
}

// SetGrant validates and persists one cell. Failures always propagate so
// callers can revert optimistic state.
func (s *Service) SetGrant(ctx context.Context, role Role, module Module, action Action, allowed bool) error {
	grant := Grant{Role: role, Module: module, Action: action, Allowed: allowed}
	if err := s.catalog.ValidateGrant(grant.Key()); err != nil {
		s.observer.ObserveGrantMutation(grant.Key(), err)
		return err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.grants.Set(ctx, grant); err != nil {
		err = StoreError("set", err)
		s.observer.ObserveGrantMutation(grant.Key(), err)
		s.logger.Error("authz set grant", slog.String("grant", grant.Key().String()), slog.Bool("allowed", allowed), slog.Any("error", err))
		return err
	}
	s.observer.ObserveGrantMutation(grant.Key(), nil)
	s.logger.Info("authz grant updated", slog.String("grant", grant.Key().String()), slog.Bool("allowed", allowed))
	return nil
}

// GrantUpdate is one entry of a bulk matrix save.
type GrantUpdate struct {
	Module  Module `json:"module"`
	Action  Action `json:"action"`
	Allowed bool   `json:"allowed"`
}

// BatchItem reports the outcome of one batch entry.
type BatchItem struct {
	Grant Grant  `json:"grant"`
	Error string `json:"error,omitempty"`
	// Superseded marks an entry overridden by a later entry for the same
	// cell. It shares that entry's outcome.
	Superseded bool `json:"superseded,omitempty"`
	err        error
}

// BatchResult reports a best-effort batch. It is not transactional.
type BatchResult struct {
	Role    Role        `json:"role"`
	Applied int         `json:"applied"`
	Failed  int         `json:"failed"`
	Items   []BatchItem `json:"items"`
}

// Err joins the per-item failures, nil when every item applied.
func (r BatchResult) Err() error {
	var errs []error
	for _, item := range r.Items {
		if item.err != nil && !item.Superseded {
			errs = append(errs, item.err)
		}
	}
	return errors.Join(errs...)
}

// ApplyBatch writes updates for role concurrently, reporting per-item
// failures instead of aborting. Repeated cells collapse to their last entry,
// so one write per cell is in flight.
func (s *Service) ApplyBatch(ctx context.Context, role Role, updates []GrantUpdate) BatchResult {
	result := BatchResult{Role: role, Items: make([]BatchItem, len(updates))}
	last := make(map[GrantKey]int, len(updates))
	for i, u := range updates {
		result.Items[i].Grant = Grant{Role: role, Module: u.Module, Action: u.Action, Allowed: u.Allowed}
		last[result.Items[i].Grant.Key()] = i
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, u := range updates {
		if last[result.Items[i].Grant.Key()] != i {
			continue
		}
		g.Go(func() error {
			// Items never fail the group; gctx is only cancelled by ctx.
			if err := s.SetGrant(gctx, role, u.Module, u.Action, u.Allowed); err != nil {
				result.Items[i].err = err
				result.Items[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	for i := range result.Items {
		winner := last[result.Items[i].Grant.Key()]
		if winner != i {
			result.Items[i].Superseded = true
			result.Items[i].err = result.Items[winner].err
			result.Items[i].Error = result.Items[winner].Error
		}
	}
	for _, item := range result.Items {
		if item.err != nil {
			result.Failed++
		} else {
			result.Applied++
		}
	}
	if result.Failed > 0 {
		s.logger.Warn("authz batch partially applied", slog.String("role", string(role)), slog.Int("applied", result.Applied), slog.Int("failed", result.Failed))
	}
	return result
}

// SeedDefaults applies the built-in profile for role as one best-effort
// batch.
func (s *Service) SeedDefaults(ctx context.Context, role Role) (BatchResult, error) {
	if !role.Valid() {
		return BatchResult{Role: role}, invalidGrant("role %q", role)
	}
	defaults := DefaultGrants(s.catalog, role)
	updates := make([]GrantUpdate, 0, len(defaults))
	for _, g := range defaults {
		updates = append(updates, GrantUpdate{Module: g.Module, Action: g.Action, Allowed: g.Allowed})
	}
	return s.ApplyBatch(ctx, role, updates), nil
}

// Dashboard aggregates matrix and directory counts. Concurrent callers
// share one computation, which outlives any single caller's cancellation.
func (s *Service) Dashboard(ctx context.Context) (DashboardSummary, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.dashboard.DoChan("dashboard", func() (any, error) {
		return s.buildDashboard(shared)
	})
	select {
	case <-ctx.Done():
		return DashboardSummary{}, StoreError("dashboard", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return DashboardSummary{}, res.Err
		}
		return res.Val.(DashboardSummary), nil
	}
}

func (s *Service) buildDashboard(ctx context.Context) (DashboardSummary, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	summary := DashboardSummary{
		TotalRoles:     len(roleCatalog),
		ActorsByRole:   make(map[Role]int, len(roleCatalog)),
		CatalogVersion: s.catalog.Version(),
		GeneratedAt:    time.Now().UTC(),
	}
	grants, err := s.grants.ListAll(ctx)
	if err != nil {
		return DashboardSummary{}, StoreError("list all", err)
	}
	for _, g := range grants {
		summary.TotalGrants++
		if g.Allowed {
			summary.AllowedGrants++
		}
	}
	if s.directory == nil {
		return summary, nil
	}
	actors, err := s.directory.ListActors(ctx)
	if err != nil {
		return DashboardSummary{}, DirectoryError("list actors", err)
	}
	for _, a := range actors {
		if !a.Active {
			continue
		}
		summary.ActiveActors++
		summary.ActorsByRole[Normalize(a.RawRole)]++
	}
	branches, err := s.directory.ListBranches(ctx)
	if err != nil {
		return DashboardSummary{}, DirectoryError("list branches", err)
	}
	summary.Branches = len(branches)
	return summary, nil
}

func (s *Service) actor(ctx context.Context, id string) (Actor, error) {
	if s.directory == nil {
		return Actor{}, ErrDirectoryUnavailable
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	actor, err := s.directory.GetActor(ctx, id)
	if err != nil {
		return Actor{}, DirectoryError("get actor", err)
	}
	return actor, nil
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// boundedStore applies a per-call deadline to lookups made by the
// evaluator.
type boundedStore struct {
	GrantStore
	timeout time.Duration
}

func (b boundedStore) Lookup(ctx context.Context, role Role, module Module, action Action) (GrantState, error) {
	if b.GrantStore == nil {
		return GrantUnset, nil
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return b.GrantStore.Lookup(ctx, role, module, action)
}

type boundedSource struct {
	source  AssignmentSource
	timeout time.Duration
}

func (b boundedSource) BranchAssignment(ctx context.Context, actorID string) ([]string, error) {
	if b.source == nil {
		return nil, nil
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return b.source.BranchAssignment(ctx, actorID)
}
