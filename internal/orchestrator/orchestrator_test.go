package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waypoint/internal/agents"
	"waypoint/internal/clock"
	"waypoint/internal/database"
	"waypoint/internal/execution"
	"waypoint/internal/models"
	"waypoint/internal/risk"
)

type countingExecutor struct {
	inner Executor
	calls atomic.Int32
}

func (c *countingExecutor) Execute(ctx context.Context, a *models.Action) (execution.Effect, error) {
	c.calls.Add(1)
	return c.inner.Execute(ctx, a)
}

// cancelAfterExecute runs the real handler, then cancels the caller's
// context before the outcome is recorded.
type cancelAfterExecute struct {
	inner  Executor
	cancel context.CancelFunc
}

func (c *cancelAfterExecute) Execute(ctx context.Context, a *models.Action) (execution.Effect, error) {
	effect, err := c.inner.Execute(ctx, a)
	c.cancel()
	return effect, err
}

type recordingObserver struct {
	mu          sync.Mutex
	proposed    int
	transitions []models.ActionStatus
	failures    []string
	executions  int
}

func (r *recordingObserver) ActionProposed(a *models.Action, d risk.Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proposed++
}

func (r *recordingObserver) ActionTransitioned(a *models.Action, from models.ActionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, a.Status)
}

func (r *recordingObserver) ProposalFailed(agent models.Agent, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, reason)
}

func (r *recordingObserver) ExecutionFinished(a *models.Action, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executions++
}

type fixedTick int64

func (f fixedTick) CurrentTick() int64 { return int64(f) }

type harness struct {
	store    *database.Store
	registry *agents.Registry
	exec     *countingExecutor
	obs      *recordingObserver
	orch     *Orchestrator
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, proposer agents.Proposer, cfg Config) *harness {
	t.Helper()
	logger := quietLogger()
	ctx := context.Background()

	store, err := database.Open(database.DriverSQLite, ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Seed(ctx))

	registry := agents.NewRegistry(store, logger)
	require.NoError(t, registry.Load(ctx, []models.Agent{
		{AgentID: "restock-1", AgentType: models.AgentTypeRestock, IsActive: true},
		{AgentID: "forecast-1", AgentType: models.AgentTypeForecasting, IsActive: true},
		{AgentID: "pricing-1", AgentType: models.AgentTypePricing, IsActive: true},
		{AgentID: "route-1", AgentType: models.AgentTypeRoute, IsActive: true},
	}))

	classifier, err := risk.New(risk.DefaultConfig(), logger)
	require.NoError(t, err)

	exec := &countingExecutor{inner: execution.NewDefaultRegistry(store)}
	obs := &recordingObserver{}
	orch, err := New(cfg, Deps{
		Store:      store,
		Registry:   registry,
		Proposer:   proposer,
		Classifier: classifier,
		Executor:   exec,
		Ticks:      fixedTick(1),
		Observers:  []Observer{obs},
		Logger:     logger,
	})
	require.NoError(t, err)
	return &harness{store: store, registry: registry, exec: exec, obs: obs, orch: orch}
}

// byAgent returns a proposer that answers from a per-agent table and
// reports ErrNoProposal for everyone else.
func byAgent(table map[string]agents.Proposal) agents.Proposer {
	return agents.ProposerFunc(func(ctx context.Context, t models.AgentType, snap agents.Snapshot) (agents.Proposal, error) {
		p, ok := table[snap.Agent.AgentID]
		if !ok {
			return agents.Proposal{}, agents.ErrNoProposal
		}
		return p, nil
	})
}

func (h *harness) agent(t *testing.T, id string) models.Agent {
	t.Helper()
	a, err := h.registry.Get(id)
	require.NoError(t, err)
	return a
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}

func TestScenario_SmallRestockAutoExecutes(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"restock-1": {ActionType: models.ActionRestock, Payload: models.Payload{SKU: "SKU-1001", Quantity: 5}, Rationale: "top up"},
	}), Config{})
	ctx := context.Background()

	a, err := h.orch.Activate(ctx, h.agent(t, "restock-1"), 1)
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.Equal(t, models.StatusExecuted, a.Status)
	assert.Equal(t, models.RiskAuto, a.Risk)
	assert.Equal(t, models.DecidedBySystem, a.DecidedBy)
	assert.NotNil(t, a.ExecutedAt)
	assert.NotEmpty(t, a.OrderID)

	po, err := h.store.PurchaseOrderForAction(ctx, a.ActionID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, po.Status)
	assert.Equal(t, 5, po.Quantity)
	assert.Equal(t, a.OrderID, po.OrderID)

	detail, err := h.orch.Action(ctx, a.ActionID)
	require.NoError(t, err)
	var path []models.ActionStatus
	for _, e := range detail.Audit {
		path = append(path, e.ToStatus)
	}
	assert.Equal(t, []models.ActionStatus{
		models.StatusProposed, models.StatusAutoApproved, models.StatusApproved, models.StatusExecuted,
	}, path)

	agent := h.agent(t, "restock-1")
	assert.NotNil(t, agent.LastActionTime)
	assert.Equal(t, 1, h.obs.proposed)
	assert.Equal(t, 1, h.obs.executions)
}

func TestScenario_DiscontinueNeedsHumanAndDeclineCreatesNoOrder(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"forecast-1": {ActionType: models.ActionDiscontinue, Payload: models.Payload{SKU: "SKU-2001", Quantity: 1000}},
	}), Config{})
	ctx := context.Background()

	a, err := h.orch.Activate(ctx, h.agent(t, "forecast-1"), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, a.Status)
	assert.Equal(t, models.RiskManual, a.Risk)

	pending, err := h.orch.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	declined, err := h.orch.Decline(ctx, a.ActionID, "ops_user")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, declined.Status)
	assert.Equal(t, "ops_user", declined.DecidedBy)
	assert.NotNil(t, declined.DecidedAt)
	assert.Nil(t, declined.ExecutedAt)

	orders, err := h.store.ListDisposalOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, int32(0), h.exec.calls.Load())

	item, err := h.store.GetItem(ctx, "SKU-2001")
	require.NoError(t, err)
	assert.False(t, item.Discontinued)
}

func TestScenario_ApproveDeclinedIsInvalid(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"forecast-1": {ActionType: models.ActionDiscontinue, Payload: models.Payload{SKU: "SKU-2001"}},
	}), Config{})
	ctx := context.Background()

	a, err := h.orch.Activate(ctx, h.agent(t, "forecast-1"), 1)
	require.NoError(t, err)
	_, err = h.orch.Decline(ctx, a.ActionID, "ops_user")
	require.NoError(t, err)

	_, err = h.orch.Approve(ctx, a.ActionID, "alice")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, models.StatusDeclined, te.Status)

	got, err := h.store.GetAction(ctx, a.ActionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, got.Status)
	assert.Equal(t, "ops_user", got.DecidedBy)

	// Declining twice is also invalid.
	_, err = h.orch.Decline(ctx, a.ActionID, "ops_user")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestScenario_RepriceOfDeletedItemFailsOnce(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"pricing-1": {
			ActionType:      models.ActionReprice,
			Payload:         models.Payload{SKU: "SKU-3001", Price: 12},
			EstimatedImpact: models.Impact{Value: 406},
		},
	}), Config{})
	ctx := context.Background()

	a, err := h.orch.Activate(ctx, h.agent(t, "pricing-1"), 1)
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingApproval, a.Status)

	require.NoError(t, h.store.DeleteItem(ctx, "SKU-3001"))

	failed, err := h.orch.Approve(ctx, a.ActionID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecutionFailed, failed.Status)
	assert.NotEmpty(t, failed.Error)
	assert.NotNil(t, failed.ExecutedAt)
	assert.Equal(t, int32(1), h.exec.calls.Load())

	again, err := h.orch.Approve(ctx, a.ActionID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecutionFailed, again.Status)
	assert.Equal(t, failed.Error, again.Error)
	assert.True(t, failed.ExecutedAt.Equal(*again.ExecutedAt))
	assert.Equal(t, int32(1), h.exec.calls.Load())
}

func TestApprove_TwiceIsIdempotent(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"restock-1": {ActionType: models.ActionRestock, Payload: models.Payload{SKU: "SKU-2002", Quantity: 300}},
	}), Config{})
	ctx := context.Background()

	a, err := h.orch.Activate(ctx, h.agent(t, "restock-1"), 1)
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingApproval, a.Status)

	first, err := h.orch.Approve(ctx, a.ActionID, "alice")
	require.NoError(t, err)
	second, err := h.orch.Approve(ctx, a.ActionID, "bob")
	require.NoError(t, err)

	assert.Equal(t, models.StatusExecuted, first.Status)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, "alice", second.DecidedBy)
	assert.True(t, first.ExecutedAt.Equal(*second.ExecutedAt))
	assert.Equal(t, int32(1), h.exec.calls.Load())

	orders, err := h.store.ListPurchaseOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestApprove_CallerCancelledDuringExecution(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"restock-1": {ActionType: models.ActionRestock, Payload: models.Payload{SKU: "SKU-2002", Quantity: 300}},
	}), Config{})
	ctx := context.Background()

	a, err := h.orch.Activate(ctx, h.agent(t, "restock-1"), 1)
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingApproval, a.Status)

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	h.orch.executor = &cancelAfterExecute{inner: h.exec, cancel: cancel}

	first, err := h.orch.Approve(reqCtx, a.ActionID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, first.Status)
	require.NotNil(t, first.ExecutedAt)
	assert.NotEmpty(t, first.OrderID)
	require.Error(t, reqCtx.Err())

	again, err := h.orch.Approve(ctx, a.ActionID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, again.Status)
	assert.Equal(t, first.OrderID, again.OrderID)
	assert.Equal(t, int32(1), h.exec.calls.Load())

	rep, err := h.orch.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, RecoveryReport{}, rep)

	detail, err := h.orch.Action(ctx, a.ActionID)
	require.NoError(t, err)
	last := detail.Audit[len(detail.Audit)-1]
	assert.Equal(t, models.StatusExecuted, last.ToStatus)

	orders, err := h.store.ListPurchaseOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestApprove_CancelledBeforeApproveChangesNothing(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"restock-1": {ActionType: models.ActionRestock, Payload: models.Payload{SKU: "SKU-2002", Quantity: 300}},
	}), Config{})
	ctx := context.Background()

	a, err := h.orch.Activate(ctx, h.agent(t, "restock-1"), 1)
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = h.orch.Approve(cancelled, a.ActionID, "alice")
	require.ErrorIs(t, err, context.Canceled)

	cur, err := h.store.GetAction(ctx, a.ActionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, cur.Status)
	assert.Nil(t, cur.ClaimedAt)
	assert.Zero(t, h.exec.calls.Load())
}

func TestActivate_CancelledDuringAutoExecution(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"restock-1": {ActionType: models.ActionRestock, Payload: models.Payload{SKU: "SKU-1001", Quantity: 5}},
	}), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.orch.executor = &cancelAfterExecute{inner: h.exec, cancel: cancel}

	a, err := h.orch.Activate(ctx, h.agent(t, "restock-1"), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, a.Status)

	cur, err := h.store.GetAction(context.Background(), a.ActionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, cur.Status)
	assert.NotNil(t, cur.ExecutedAt)
}

func TestClockShutdownDuringTick(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"restock-1": {ActionType: models.ActionRestock, Payload: models.Payload{SKU: "SKU-1001", Quantity: 5}},
	}), Config{})

	c := clock.New(5*time.Millisecond, quietLogger())
	c.SetTicker(h.orch)
	h.orch.SetTickSource(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.orch.executor = &cancelAfterExecute{inner: h.exec, cancel: cancel}

	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool { return !c.Status().IsRunning }, 2*time.Second, time.Millisecond)
	c.Stop()

	history, err := h.orch.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StatusExecuted, history[0].Status)
	assert.NotNil(t, history[0].ExecutedAt)
	assert.Equal(t, int32(1), h.exec.calls.Load())
	assert.Nil(t, c.Status().StartedAt)
}

func TestApprove_ConcurrentCallersExecuteOnce(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"restock-1": {ActionType: models.ActionRestock, Payload: models.Payload{SKU: "SKU-2002", Quantity: 300}},
	}), Config{})
	ctx := context.Background()

	a, err := h.orch.Activate(ctx, h.agent(t, "restock-1"), 1)
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*models.Action, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.orch.Approve(ctx, a.ActionID, "alice")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, models.StatusExecuted, results[i].Status)
	}
	assert.Equal(t, int32(1), h.exec.calls.Load())
}

func TestApprove_Validation(t *testing.T) {
	h := newHarness(t, byAgent(nil), Config{})
	ctx := context.Background()

	_, err := h.orch.Approve(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrMissingDecider)

	_, err = h.orch.Approve(ctx, "missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.orch.Decline(ctx, "missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecute_RequiresApproved(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"forecast-1": {ActionType: models.ActionDiscontinue, Payload: models.Payload{SKU: "SKU-2001"}},
	}), Config{})
	ctx := context.Background()

	a, err := h.orch.Activate(ctx, h.agent(t, "forecast-1"), 1)
	require.NoError(t, err)

	_, err = h.orch.Execute(ctx, a.ActionID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, int32(0), h.exec.calls.Load())
}

func TestExecute_ClaimedElsewhereIsInProgress(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"restock-1": {ActionType: models.ActionRestock, Payload: models.Payload{SKU: "SKU-2002", Quantity: 300}},
	}), Config{})
	ctx := context.Background()

	a, err := h.orch.Activate(ctx, h.agent(t, "restock-1"), 1)
	require.NoError(t, err)
	_, err = h.store.TransitionAction(ctx, a.ActionID, models.StatusPendingApproval, models.StatusApproved,
		database.Transition{Actor: "alice", DecidedBy: "alice"})
	require.NoError(t, err)
	// Another process won the claim.
	_, err = h.store.ClaimExecution(ctx, a.ActionID)
	require.NoError(t, err)

	_, err = h.orch.Execute(ctx, a.ActionID)
	assert.ErrorIs(t, err, ErrExecutionInProgress)
	assert.Equal(t, int32(0), h.exec.calls.Load())
}

func TestExecute_HandlerFailureIsWrapped(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"route-1": {ActionType: models.ActionReroute, Payload: models.Payload{ShipmentID: "SHP-404", Location: "X"}, EstimatedImpact: models.Impact{Value: 900}},
	}), Config{})
	ctx := context.Background()

	a, err := h.orch.Activate(ctx, h.agent(t, "route-1"), 1)
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingApproval, a.Status)
	_, err = h.store.TransitionAction(ctx, a.ActionID, models.StatusPendingApproval, models.StatusApproved,
		database.Transition{Actor: "alice", DecidedBy: "alice"})
	require.NoError(t, err)

	out, err := h.orch.Execute(ctx, a.ActionID)
	assert.ErrorIs(t, err, ErrExecutionFailed)
	require.NotNil(t, out)
	assert.Equal(t, models.StatusExecutionFailed, out.Status)
}

func TestActivate_ProposalTimeout(t *testing.T) {
	proposer := agents.ProposerFunc(func(ctx context.Context, t models.AgentType, snap agents.Snapshot) (agents.Proposal, error) {
		<-ctx.Done()
		return agents.Proposal{}, ctx.Err()
	})
	h := newHarness(t, proposer, Config{ProposalTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	a, err := h.orch.Activate(ctx, h.agent(t, "restock-1"), 1)
	assert.Nil(t, a)
	assert.ErrorIs(t, err, ErrProposalTimeout)

	history, err := h.orch.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Equal(t, []string{"timeout"}, h.obs.failures)
}

func TestActivate_TimeoutWhenProposerIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	proposer := agents.ProposerFunc(func(ctx context.Context, t models.AgentType, snap agents.Snapshot) (agents.Proposal, error) {
		<-release
		return agents.Proposal{ActionType: models.ActionRestock, Payload: models.Payload{SKU: "SKU-1001", Quantity: 1}}, nil
	})
	h := newHarness(t, proposer, Config{ProposalTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := h.orch.Activate(context.Background(), h.agent(t, "restock-1"), 1)
	assert.ErrorIs(t, err, ErrProposalTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestActivate_InvalidProposal(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"route-1": {ActionType: models.ActionRestock, Payload: models.Payload{SKU: "SKU-1001", Quantity: 1}},
	}), Config{})

	_, err := h.orch.Activate(context.Background(), h.agent(t, "route-1"), 1)
	assert.ErrorIs(t, err, ErrInvalidProposal)
}

func TestActivate_OncePerTick(t *testing.T) {
	var calls atomic.Int32
	proposer := agents.ProposerFunc(func(ctx context.Context, t models.AgentType, snap agents.Snapshot) (agents.Proposal, error) {
		calls.Add(1)
		return agents.Proposal{}, agents.ErrNoProposal
	})
	h := newHarness(t, proposer, Config{})
	ctx := context.Background()
	agent := h.agent(t, "restock-1")

	_, err := h.orch.Activate(ctx, agent, 5)
	require.NoError(t, err)
	_, err = h.orch.Activate(ctx, agent, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	h.orch.ResetCaches()
	_, err = h.orch.Activate(ctx, agent, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestActivate_SuppressesDuplicatePending(t *testing.T) {
	h := newHarness(t, byAgent(map[string]agents.Proposal{
		"restock-1": {ActionType: models.ActionRestock, Payload: models.Payload{SKU: "SKU-2002", Quantity: 300}},
	}), Config{})
	ctx := context.Background()
	agent := h.agent(t, "restock-1")

	first, err := h.orch.Activate(ctx, agent, 1)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := h.orch.Activate(ctx, agent, 2)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Contains(t, h.obs.failures, "duplicate")

	pending, err := h.orch.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRunTick_ContainsAgentFailures(t *testing.T) {
	proposer := agents.ProposerFunc(func(ctx context.Context, t models.AgentType, snap agents.Snapshot) (agents.Proposal, error) {
		switch snap.Agent.AgentID {
		case "restock-1":
			return agents.Proposal{}, errors.New("model unavailable")
		case "route-1":
			return agents.Proposal{ActionType: models.ActionReroute, Payload: models.Payload{ShipmentID: "SHP-1002", Location: "STORE-09"}, EstimatedImpact: models.Impact{Value: 50}}, nil
		}
		return agents.Proposal{}, agents.ErrNoProposal
	})
	h := newHarness(t, proposer, Config{ActivationConcurrency: 2})
	ctx := context.Background()

	require.NoError(t, h.orch.RunTick(ctx, 1))

	history, err := h.orch.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "route-1", history[0].AgentID)
	assert.Equal(t, models.StatusExecuted, history[0].Status)
	assert.Equal(t, []string{"error"}, h.obs.failures)
}

func TestRunTick_SkipsStoppedAgents(t *testing.T) {
	var seen sync.Map
	proposer := agents.ProposerFunc(func(ctx context.Context, t models.AgentType, snap agents.Snapshot) (agents.Proposal, error) {
		seen.Store(snap.Agent.AgentID, true)
		return agents.Proposal{}, agents.ErrNoProposal
	})
	h := newHarness(t, proposer, Config{})
	ctx := context.Background()

	_, err := h.registry.SetActive(ctx, "pricing-1", false)
	require.NoError(t, err)
	require.NoError(t, h.orch.RunTick(ctx, 1))

	_, ok := seen.Load("pricing-1")
	assert.False(t, ok)
	_, ok = seen.Load("restock-1")
	assert.True(t, ok)
}

func TestRecover(t *testing.T) {
	h := newHarness(t, byAgent(nil), Config{})
	ctx := context.Background()

	mk := func(id string, qty int) {
		require.NoError(t, h.store.CreateAction(ctx, &models.Action{
			ActionID: id, AgentID: "restock-1", ActionType: models.ActionRestock,
			Payload: models.Payload{SKU: "SKU-1001", Quantity: qty}, Risk: models.RiskManual,
			Status: models.StatusProposed, Tick: 1,
		}, "restock-1"))
		_, err := h.store.TransitionAction(ctx, id, models.StatusProposed, models.StatusPendingApproval, database.Transition{Actor: "system"})
		require.NoError(t, err)
		_, err = h.store.TransitionAction(ctx, id, models.StatusPendingApproval, models.StatusApproved, database.Transition{Actor: "alice", DecidedBy: "alice"})
		require.NoError(t, err)
	}
	mk("never-claimed", 70)
	mk("half-done", 80)
	_, err := h.store.ClaimExecution(ctx, "half-done")
	require.NoError(t, err)

	// Crashed between creation and classification.
	require.NoError(t, h.store.CreateAction(ctx, &models.Action{
		ActionID: "unclassified", AgentID: "restock-1", ActionType: models.ActionRestock,
		Payload: models.Payload{SKU: "SKU-1001", Quantity: 3}, Risk: models.RiskAuto,
		Status: models.StatusProposed, Tick: 1,
	}, "restock-1"))

	rep, err := h.orch.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, RecoveryReport{Classified: 1, Executed: 1, Interrupted: 1}, rep)

	a, err := h.store.GetAction(ctx, "never-claimed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, a.Status)

	a, err = h.store.GetAction(ctx, "half-done")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecutionFailed, a.Status)
	assert.Equal(t, interruptedMessage, a.Error)

	a, err = h.store.GetAction(ctx, "unclassified")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, a.Status)

	// Only never-claimed and unclassified ran their handler.
	assert.Equal(t, int32(2), h.exec.calls.Load())

	rep, err = h.orch.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, RecoveryReport{}, rep)
}

func TestKeyedMutex_ReleasesKeys(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	assert.Equal(t, 1, k.size())
	unlock()
	assert.Equal(t, 0, k.size())
}
