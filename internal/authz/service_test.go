package authz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(store GrantStore, dir Directory, obs Observer) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, dir, obs, logger, ServiceConfig{StoreTimeout: time.Second, BatchConcurrency: 3})
}

func TestServiceSetGrantRoundTrip(t *testing.T) {
	store := newFakeStore()
	obs := newRecordingObserver()
	svc := newTestService(store, newFakeDirectory(), obs)
	ctx := context.Background()

	require.NoError(t, svc.SetGrant(ctx, RoleManager, ModuleSales, ActionEdit, true))
	allowed, err := GetGrant(ctx, store, RoleManager, ModuleSales, ActionEdit)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Idempotent: repeated writes leave one cell with the same value.
	require.NoError(t, svc.SetGrant(ctx, RoleManager, ModuleSales, ActionEdit, true))
	grants, err := svc.GetMatrix(ctx, RoleManager)
	require.NoError(t, err)
	assert.Equal(t, []Grant{{Role: RoleManager, Module: ModuleSales, Action: ActionEdit, Allowed: true}}, grants)

	require.NoError(t, svc.SetGrant(ctx, RoleManager, ModuleSales, ActionEdit, false))
	allowed, err = GetGrant(ctx, store, RoleManager, ModuleSales, ActionEdit)
	require.NoError(t, err)
	assert.False(t, allowed)

	assert.Contains(t, obs.mutations, GrantKey{RoleManager, ModuleSales, ActionEdit})
	assert.NoError(t, obs.mutations[GrantKey{RoleManager, ModuleSales, ActionEdit}])
}

func TestServiceSetGrantRejectsInvalidTuples(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDirectory(), nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SetGrant(ctx, "salesman", ModuleSales, ActionEdit, true), ErrInvalidGrantTuple)
	assert.ErrorIs(t, svc.SetGrant(ctx, RoleUser, "crm", ActionEdit, true), ErrInvalidGrantTuple)
	assert.ErrorIs(t, svc.SetGrant(ctx, RoleUser, ModuleLedger, ActionDelete, true), ErrInvalidGrantTuple)
	assert.Empty(t, store.cells)
}

func TestServiceSetGrantPropagatesStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.setErr = errBackendDown
	obs := newRecordingObserver()
	svc := newTestService(store, newFakeDirectory(), obs)

	err := svc.SetGrant(context.Background(), RoleUser, ModuleSales, ActionCreate, true)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, errBackendDown)
	assert.ErrorIs(t, obs.mutations[GrantKey{RoleUser, ModuleSales, ActionCreate}], ErrStoreUnavailable)
}

func TestServiceEvaluate(t *testing.T) {
	store := newFakeStore()
	store.grant(RoleManager, ModuleLedger, ActionViewCustomer, true)
	dir := newFakeDirectory()
	dir.add(Actor{ID: "X", RawRole: "Accountant", Active: true}, "B1")
	obs := newRecordingObserver()
	svc := newTestService(store, dir, obs)
	ctx := context.Background()

	d, err := svc.Evaluate(ctx, "X", ModuleLedger, ActionViewCustomer, "B1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, RoleManager, d.Role)

	d, err = svc.Evaluate(ctx, "X", ModuleLedger, ActionViewCustomer, "B2")
	require.NoError(t, err)
	assert.Equal(t, ReasonBranchDenied, d.Reason)

	d, err = svc.Evaluate(ctx, "ghost", ModuleLedger, ActionViewCustomer, "")
	require.ErrorIs(t, err, ErrActorNotFound)
	assert.False(t, d.Allowed)

	assert.Len(t, obs.decisions, 3)
}

func TestServiceEvaluateStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.lookupErr = errBackendDown
	dir := newFakeDirectory()
	dir.add(Actor{ID: "m", RawRole: "manager", Active: true}, "B1")
	obs := newRecordingObserver()
	svc := newTestService(store, dir, obs)

	d, err := svc.Evaluate(context.Background(), "m", ModuleSales, ActionEdit, "")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, d.Allowed)
	assert.Equal(t, []string{"evaluate"}, obs.storeErrs)
}

// slowStore blocks lookups until the caller's context expires.
type slowStore struct {
	*fakeStore
}

func (s slowStore) Lookup(ctx context.Context, role Role, module Module, action Action) (GrantState, error) {
	<-ctx.Done()
	return GrantUnset, ctx.Err()
}

func TestServiceEvaluateTimesOut(t *testing.T) {
	dir := newFakeDirectory()
	dir.add(Actor{ID: "m", RawRole: "manager", Active: true})
	svc := NewService(slowStore{newFakeStore()}, dir, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), ServiceConfig{StoreTimeout: 10 * time.Millisecond})

	d, err := svc.Evaluate(context.Background(), "m", ModuleSales, ActionEdit, "")
	require.ErrorIs(t, err, ErrStoreTimeout)
	assert.False(t, d.Allowed)
}

func TestServiceSimulateUnknownActor(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeDirectory(), nil)
	_, err := svc.Simulate(context.Background(), "ghost", ModuleSales)
	assert.ErrorIs(t, err, ErrActorNotFound)

	svc = NewService(newFakeStore(), nil, nil, nil, ServiceConfig{})
	_, err = svc.Simulate(context.Background(), "ghost", ModuleSales)
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
}

func TestServicePolicyPreview(t *testing.T) {
	store := newFakeStore()
	store.grant(RoleUser, ModuleSales, ActionViewBranch, true)
	dir := newFakeDirectory()
	dir.add(Actor{ID: "u", RawRole: "salesman", Active: true}, "B3", "B1")
	svc := newTestService(store, dir, nil)

	p, err := svc.PolicyPreview(context.Background(), "u", ModuleSales)
	require.NoError(t, err)
	assert.Equal(t, AccessBranchLevel, p.AccessLevel)
	assert.Contains(t, p.Statement, "B1, B3")
	assert.Equal(t, []Action{ActionViewBranch}, p.Simulation.Allowed)
}

func TestServiceMatrixCoversCatalog(t *testing.T) {
	store := newFakeStore()
	store.grant(RoleUser, ModuleSales, ActionViewOwn, true)
	store.grant(RoleUser, ModuleSales, ActionDelete, false)
	store.grant(RoleManager, ModuleSales, ActionDelete, true)
	svc := newTestService(store, newFakeDirectory(), nil)

	cells, err := svc.Matrix(context.Background(), RoleUser)
	require.NoError(t, err)
	require.Len(t, cells, DefaultCatalog().Cells())

	states := map[Action]GrantState{}
	for _, c := range cells {
		if c.Module == ModuleSales {
			states[c.Action] = c.State
			assert.Equal(t, c.State.String(), c.Status)
		}
	}
	assert.Equal(t, GrantAllowed, states[ActionViewOwn])
	assert.Equal(t, GrantDenied, states[ActionDelete])
	assert.Equal(t, GrantUnset, states[ActionEdit])

	_, err = svc.Matrix(context.Background(), "guest")
	assert.ErrorIs(t, err, ErrInvalidGrantTuple)
}

func TestServiceApplyBatchReportsPerItemFailures(t *testing.T) {
	store := newFakeStore()
	store.failSet[GrantKey{RoleUser, ModulePOS, ActionEdit}] = errBackendDown
	svc := newTestService(store, newFakeDirectory(), nil)

	updates := []GrantUpdate{
		{Module: ModuleSales, Action: ActionViewOwn, Allowed: true},
		{Module: ModulePOS, Action: ActionEdit, Allowed: true},
		{Module: ModuleLedger, Action: ActionDelete, Allowed: true},
		{Module: ModulePayments, Action: ActionReceive, Allowed: true},
	}
	res := svc.ApplyBatch(context.Background(), RoleUser, updates)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Items, 4)
	assert.Empty(t, res.Items[0].Error)
	assert.NotEmpty(t, res.Items[1].Error)
	assert.NotEmpty(t, res.Items[2].Error)
	assert.Empty(t, res.Items[3].Error)

	err := res.Err()
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, ErrInvalidGrantTuple)

	allowed, err := GetGrant(context.Background(), store, RoleUser, ModulePayments, ActionReceive)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestServiceApplyBatchLastEntryWinsPerCell(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		store := newFakeStore()
		svc := NewService(store, newFakeDirectory(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)), ServiceConfig{BatchConcurrency: 8})

		res := svc.ApplyBatch(ctx, RoleUser, []GrantUpdate{
			{Module: ModuleSales, Action: ActionEdit, Allowed: true},
			{Module: ModuleSales, Action: ActionViewOwn, Allowed: true},
			{Module: ModuleSales, Action: ActionEdit, Allowed: false},
		})
		require.NoError(t, res.Err())
		assert.Equal(t, 3, res.Applied)
		assert.True(t, res.Items[0].Superseded)
		assert.False(t, res.Items[2].Superseded)
		assert.Equal(t, 2, store.sets)

		state, err := store.Lookup(ctx, RoleUser, ModuleSales, ActionEdit)
		require.NoError(t, err)
		require.Equal(t, GrantDenied, state)
	}
}

func TestServiceApplyBatchSupersededShareFailure(t *testing.T) {
	store := newFakeStore()
	store.failSet[GrantKey{RoleUser, ModuleSales, ActionEdit}] = errBackendDown
	svc := newTestService(store, newFakeDirectory(), nil)

	res := svc.ApplyBatch(context.Background(), RoleUser, []GrantUpdate{
		{Module: ModuleSales, Action: ActionEdit, Allowed: false},
		{Module: ModuleSales, Action: ActionEdit, Allowed: true},
	})
	assert.Equal(t, 2, res.Failed)
	assert.NotEmpty(t, res.Items[0].Error)
	assert.Equal(t, 1, store.sets)
	assert.ErrorIs(t, res.Err(), ErrStoreUnavailable)
}

func TestServiceSeedDefaults(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDirectory(), nil)
	ctx := context.Background()

	res, err := svc.SeedDefaults(ctx, RoleManager)
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog().Cells(), res.Applied)
	assert.Zero(t, res.Failed)
	require.NoError(t, res.Err())

	grants, err := svc.GetMatrix(ctx, RoleManager)
	require.NoError(t, err)
	assert.Len(t, grants, DefaultCatalog().Cells())

	_, err = svc.SeedDefaults(ctx, "salesman")
	assert.ErrorIs(t, err, ErrInvalidGrantTuple)
}

func TestServiceDashboard(t *testing.T) {
	store := newFakeStore()
	store.grant(RoleUser, ModuleSales, ActionViewOwn, true)
	store.grant(RoleUser, ModuleSales, ActionDelete, false)
	store.grant(RoleManager, ModuleReports, ActionViewBranch, true)
	dir := newFakeDirectory()
	dir.add(Actor{ID: "1", RawRole: "owner", Active: true})
	dir.add(Actor{ID: "2", RawRole: "Salesman", Active: true})
	dir.add(Actor{ID: "3", RawRole: "user", Active: true})
	dir.add(Actor{ID: "4", RawRole: "manager", Active: false})
	dir.branches = []Branch{{ID: "B1", Name: "Central"}, {ID: "B2", Name: "North"}}
	svc := newTestService(store, dir, nil)

	var wg sync.WaitGroup
	results := make([]DashboardSummary, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sum, err := svc.Dashboard(context.Background())
			assert.NoError(t, err)
			results[i] = sum
		}()
	}
	wg.Wait()

	for _, sum := range results {
		assert.Equal(t, 4, sum.TotalRoles)
		assert.Equal(t, 3, sum.ActiveActors)
		assert.Equal(t, 2, sum.Branches)
		assert.Equal(t, 3, sum.TotalGrants)
		assert.Equal(t, 2, sum.AllowedGrants)
		assert.Equal(t, 2, sum.ActorsByRole[RoleUser])
		assert.Equal(t, 1, sum.ActorsByRole[RoleOwner])
		assert.Zero(t, sum.ActorsByRole[RoleManager])
		assert.Equal(t, CatalogVersion, sum.CatalogVersion)
	}
}

func TestServiceDashboardDirectoryFailure(t *testing.T) {
	dir := newFakeDirectory()
	dir.err = errBackendDown
	svc := newTestService(newFakeStore(), dir, nil)

	_, err := svc.Dashboard(context.Background())
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.True(t, errors.Is(err, errBackendDown))
}

type blockingDirectory struct {
	*fakeDirectory
	entered chan struct{}
	release chan struct{}
}

func (d *blockingDirectory) ListActors(ctx context.Context) ([]Actor, error) {
	select {
	case d.entered <- struct{}{}:
	default:
	}
	select {
	case <-d.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return d.fakeDirectory.ListActors(ctx)
}

func TestServiceDashboardSurvivesFirstCallerCancel(t *testing.T) {
	base := newFakeDirectory()
	base.add(Actor{ID: "1", RawRole: "owner", Active: true})
	dir := &blockingDirectory{fakeDirectory: base, entered: make(chan struct{}, 1), release: make(chan struct{})}
	svc := newTestService(newFakeStore(), dir, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Dashboard(firstCtx)
		firstErr <- err
	}()
	<-dir.entered

	second := make(chan DashboardSummary, 1)
	go func() {
		sum, err := svc.Dashboard(context.Background())
		assert.NoError(t, err)
		second <- sum
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(dir.release)
	sum := <-second
	assert.Equal(t, 1, sum.ActiveActors)
}

func TestDirectoryErrorClassifiesDeadline(t *testing.T) {
	err := DirectoryError("get actor", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrDirectoryTimeout)
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = DirectoryError("get actor", errBackendDown)
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.NotErrorIs(t, err, ErrDirectoryTimeout)

	assert.ErrorIs(t, DirectoryError("get actor", ErrActorNotFound), ErrActorNotFound)
	assert.NoError(t, DirectoryError("get actor", nil))
}
