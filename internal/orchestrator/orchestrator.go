// Package orchestrator runs the action lifecycle: it activates agents on
// each tick, classifies their proposals, routes them to auto-approval or
// a human, and executes approved actions exactly once.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"waypoint/internal/agents"
	"waypoint/internal/database"
	"waypoint/internal/execution"
	"waypoint/internal/models"
	"waypoint/internal/risk"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	CreateAction(ctx context.Context, a *models.Action, actor string) error
	GetAction(ctx context.Context, id string) (*models.Action, error)
	TransitionAction(ctx context.Context, id string, from, to models.ActionStatus, t database.Transition) (*models.Action, error)
	ClaimExecution(ctx context.Context, id string) (*models.Action, error)
	ListActions(ctx context.Context, f database.ActionFilter) ([]models.Action, error)
	ListAudit(ctx context.Context, actionID string) ([]models.AuditEntry, error)
	ListInventory(ctx context.Context) ([]models.InventoryItem, error)
	ListShipments(ctx context.Context) ([]models.Shipment, error)
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
}

// Executor applies an approved action's side effects.
type Executor interface {
	Execute(ctx context.Context, a *models.Action) (execution.Effect, error)
}

// TickSource reports the current simulation tick.
type TickSource interface {
	CurrentTick() int64
}

// Observer is told about lifecycle events. Implementations must not block.
type Observer interface {
	ActionProposed(a *models.Action, d risk.Decision)
	ActionTransitioned(a *models.Action, from models.ActionStatus)
	ProposalFailed(agent models.Agent, reason string)
	ExecutionFinished(a *models.Action, elapsed time.Duration)
}

// Config tunes the orchestrator.
type Config struct {
	ProposalTimeout       time.Duration
	ActivationConcurrency int
}

// Deps are the collaborators an Orchestrator is built from.
type Deps struct {
	Store      Store
	Registry   *agents.Registry
	Proposer   agents.Proposer
	Classifier *risk.Classifier
	Executor   Executor
	Ticks      TickSource
	Observers  []Observer
	Logger     *slog.Logger
	Now        func() time.Time
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	cfg        Config
	store      Store
	registry   *agents.Registry
	proposer   agents.Proposer
	classifier *risk.Classifier
	executor   Executor
	ticks      TickSource
	observers  []Observer
	logger     *slog.Logger
	now        func() time.Time

	actionLocks *keyedMutex

	cacheMu   sync.Mutex
	activated map[int64]map[string]struct{}
}

// New validates deps and builds an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("orchestrator: store is required")
	case deps.Registry == nil:
		return nil, errors.New("orchestrator: agent registry is required")
	case deps.Proposer == nil:
		return nil, errors.New("orchestrator: proposer is required")
	case deps.Classifier == nil:
		return nil, errors.New("orchestrator: classifier is required")
	case deps.Executor == nil:
		return nil, errors.New("orchestrator: executor is required")
	}
	if cfg.ProposalTimeout <= 0 {
		cfg.ProposalTimeout = 30 * time.Second
	}
	if cfg.ActivationConcurrency <= 0 {
		cfg.ActivationConcurrency = 1
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{
		cfg:         cfg,
		store:       deps.Store,
		registry:    deps.Registry,
		proposer:    deps.Proposer,
		classifier:  deps.Classifier,
		executor:    deps.Executor,
		ticks:       deps.Ticks,
		observers:   deps.Observers,
		logger:      deps.Logger,
		now:         deps.Now,
		actionLocks: newKeyedMutex(),
		activated:   make(map[int64]map[string]struct{}),
	}, nil
}

// SetTickSource wires the clock after construction.
func (o *Orchestrator) SetTickSource(t TickSource) {
	o.ticks = t
}

// AddObserver registers an observer. Call before the clock starts.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.observers = append(o.observers, obs)
}

func (o *Orchestrator) currentTick() int64 {
	if o.ticks == nil {
		return 0
	}
	return o.ticks.CurrentTick()
}

// RunTick activates every active agent once. Proposal problems are logged
// and skipped; only store failures are reported, after all agents ran.
func (o *Orchestrator) RunTick(ctx context.Context, tick int64) error {
	active := o.registry.Active()
	o.pruneCache(tick)

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(o.cfg.ActivationConcurrency)
	for _, agent := range active {
		g.Go(func() error {
			_, err := o.Activate(ctx, agent, tick)
			if err == nil || isProposalError(err) {
				return nil
			}
			mu.Lock()
			errs = append(errs, fmt.Errorf("agent %s: %w", agent.AgentID, err))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("orchestrator: %d of %d activations failed: %w", len(errs), len(active), errors.Join(errs...))
	}
	return nil
}

func isProposalError(err error) bool {
	return errors.Is(err, ErrProposalTimeout) ||
		errors.Is(err, ErrProposalFailed) ||
		errors.Is(err, ErrInvalidProposal)
}

// Activate asks one agent for a proposal and records the resulting action.
// It returns a nil action when the agent was already activated this tick,
// had nothing to propose, or repeated a pending proposal.
func (o *Orchestrator) Activate(ctx context.Context, agent models.Agent, tick int64) (*models.Action, error) {
	if !o.markActivated(tick, agent.AgentID) {
		o.logger.Debug("agent already activated this tick", "agent_id", agent.AgentID, "tick", tick)
		return nil, nil
	}

	unlock, err := o.registry.Lock(agent.AgentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	snap, err := o.snapshot(ctx, agent, tick)
	if err != nil {
		return nil, err
	}

	proposal, err := o.propose(ctx, agent, snap)
	if err != nil {
		if errors.Is(err, agents.ErrNoProposal) {
			o.logger.Debug("agent has nothing to propose", "agent_id", agent.AgentID, "tick", tick)
			return nil, nil
		}
		return nil, err
	}

	payload := proposal.ToPayload()
	if target := payload.Target(); target != "" && pendingDuplicate(snap, proposal.ActionType, target) {
		o.logger.Info("suppressed duplicate proposal",
			"agent_id", agent.AgentID, "action_type", proposal.ActionType, "target", target, "tick", tick)
		o.notifyProposalFailed(agent, "duplicate")
		return nil, nil
	}

	decision := o.classifier.Classify(proposal.ActionType, payload)
	a := &models.Action{
		ActionID:   uuid.New().String(),
		AgentID:    agent.AgentID,
		ActionType: proposal.ActionType,
		Payload:    payload,
		Risk:       decision.Class,
		Status:     models.StatusProposed,
		Tick:       tick,
		CreatedAt:  o.now().UTC(),
	}

	unlockAction := o.actionLocks.Lock(a.ActionID)
	defer unlockAction()

	if err := o.store.CreateAction(ctx, a, agent.AgentID); err != nil {
		return nil, err
	}
	o.logger.Info("action proposed",
		"action_id", a.ActionID, "agent_id", agent.AgentID, "action_type", a.ActionType,
		"risk", decision.Class, "reason", decision.Reason, "tick", tick)
	for _, obs := range o.observers {
		obs.ActionProposed(a, decision)
	}
	if err := o.registry.MarkActed(ctx, agent.AgentID, a.CreatedAt); err != nil {
		o.logger.Warn("failed to record agent activity", "agent_id", agent.AgentID, "error", err)
	}

	return o.advance(ctx, a, tick)
}

// advance moves a freshly proposed action through classification and, when
// auto-approved, execution. Callers hold the action lock. Once the action
// exists it is carried to a resting status even if ctx is cancelled.
func (o *Orchestrator) advance(ctx context.Context, a *models.Action, tick int64) (*models.Action, error) {
	ctx = context.WithoutCancel(ctx)
	if a.Risk != models.RiskAuto {
		return o.transition(ctx, a, models.StatusPendingApproval, database.Transition{Actor: models.DecidedBySystem, Tick: tick})
	}

	sys := database.Transition{Actor: models.DecidedBySystem, DecidedBy: models.DecidedBySystem, Tick: tick}
	a, err := o.transition(ctx, a, models.StatusAutoApproved, sys)
	if err != nil {
		return nil, err
	}
	a, err = o.transition(ctx, a, models.StatusApproved, sys)
	if err != nil {
		return nil, err
	}
	out, err := o.execute(ctx, a, tick)
	if errors.Is(err, ErrExecutionFailed) {
		return out, nil
	}
	return out, err
}

func (o *Orchestrator) propose(ctx context.Context, agent models.Agent, snap agents.Snapshot) (agents.Proposal, error) {
	pctx, cancel := context.WithTimeout(ctx, o.cfg.ProposalTimeout)
	defer cancel()

	type result struct {
		p   agents.Proposal
		err error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := o.proposer.Propose(pctx, agent.AgentType, snap)
		ch <- result{p, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-pctx.Done():
		r.err = pctx.Err()
	}

	switch {
	case r.err == nil:
	case errors.Is(r.err, agents.ErrNoProposal):
		return agents.Proposal{}, r.err
	case ctx.Err() != nil:
		return agents.Proposal{}, ctx.Err()
	case errors.Is(r.err, context.DeadlineExceeded):
		o.logger.Warn("proposal timed out", "agent_id", agent.AgentID, "timeout", o.cfg.ProposalTimeout, "tick", snap.Tick)
		o.notifyProposalFailed(agent, "timeout")
		return agents.Proposal{}, fmt.Errorf("%w: agent %s after %s", ErrProposalTimeout, agent.AgentID, o.cfg.ProposalTimeout)
	default:
		o.logger.Warn("proposal failed", "agent_id", agent.AgentID, "error", r.err, "tick", snap.Tick)
		o.notifyProposalFailed(agent, "error")
		return agents.Proposal{}, fmt.Errorf("%w: agent %s: %v", ErrProposalFailed, agent.AgentID, r.err)
	}

	if err := r.p.Validate(agent.AgentType); err != nil {
		o.logger.Warn("rejected invalid proposal", "agent_id", agent.AgentID, "error", err, "tick", snap.Tick)
		o.notifyProposalFailed(agent, "invalid")
		return agents.Proposal{}, fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}
	return r.p, nil
}

func (o *Orchestrator) snapshot(ctx context.Context, agent models.Agent, tick int64) (agents.Snapshot, error) {
	snap := agents.Snapshot{Tick: tick, Agent: agent}
	var err error
	if snap.Inventory, err = o.store.ListInventory(ctx); err != nil {
		return snap, err
	}
	if snap.Shipments, err = o.store.ListShipments(ctx); err != nil {
		return snap, err
	}
	if snap.Vehicles, err = o.store.ListVehicles(ctx); err != nil {
		return snap, err
	}
	for _, st := range []models.ActionStatus{models.StatusPendingApproval, models.StatusApproved} {
		open, err := o.store.ListActions(ctx, database.ActionFilter{Status: st, AgentID: agent.AgentID, Oldest: true})
		if err != nil {
			return snap, err
		}
		snap.OpenActions = append(snap.OpenActions, open...)
	}
	return snap, nil
}

func pendingDuplicate(snap agents.Snapshot, t models.ActionType, target string) bool {
	for _, a := range snap.OpenActions {
		if a.Status == models.StatusPendingApproval && a.ActionType == t && a.Payload.Target() == target {
			return true
		}
	}
	return false
}

// Approve records a human approval and executes the action before
// returning. Approving an action that already ran returns it unchanged.
func (o *Orchestrator) Approve(ctx context.Context, id, decidedBy string) (*models.Action, error) {
	if decidedBy == "" {
		return nil, ErrMissingDecider
	}
	unlock := o.actionLocks.Lock(id)
	defer unlock()

	a, err := o.store.GetAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != models.StatusPendingApproval {
		return o.approveOutcome(a)
	}
	tick := o.currentTick()

	approved, err := o.transition(ctx, a, models.StatusApproved, database.Transition{Actor: decidedBy, DecidedBy: decidedBy, Tick: tick})
	if errors.Is(err, database.ErrStatusConflict) {
		cur, gerr := o.store.GetAction(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return o.approveOutcome(cur)
	}
	if err != nil {
		return nil, err
	}

	// The approval is recorded; execution must not be abandoned with it.
	out, err := o.execute(context.WithoutCancel(ctx), approved, tick)
	if errors.Is(err, ErrExecutionFailed) {
		return out, nil
	}
	return out, err
}

// approveOutcome answers an approve on an action that is no longer pending.
func (o *Orchestrator) approveOutcome(a *models.Action) (*models.Action, error) {
	switch a.Status {
	case models.StatusExecuted, models.StatusExecutionFailed:
		o.logger.Debug("approve replayed on finished action", "action_id", a.ActionID, "status", a.Status)
		return a, nil
	}
	return nil, &TransitionError{ActionID: a.ActionID, Op: "approve", Status: a.Status}
}

// Decline records a human rejection of a pending action.
func (o *Orchestrator) Decline(ctx context.Context, id, decidedBy string) (*models.Action, error) {
	if decidedBy == "" {
		return nil, ErrMissingDecider
	}
	unlock := o.actionLocks.Lock(id)
	defer unlock()

	a, err := o.store.GetAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != models.StatusPendingApproval {
		return nil, &TransitionError{ActionID: id, Op: "decline", Status: a.Status}
	}
	out, err := o.transition(ctx, a, models.StatusDeclined, database.Transition{Actor: decidedBy, DecidedBy: decidedBy, Tick: o.currentTick()})
	if errors.Is(err, database.ErrStatusConflict) {
		cur, gerr := o.store.GetAction(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, &TransitionError{ActionID: id, Op: "decline", Status: cur.Status}
	}
	return out, err
}

// Execute runs an approved action that has not been claimed yet. A handler
// failure is returned wrapped in ErrExecutionFailed along with the failed
// action.
func (o *Orchestrator) Execute(ctx context.Context, id string) (*models.Action, error) {
	unlock := o.actionLocks.Lock(id)
	defer unlock()

	a, err := o.store.GetAction(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, a, o.currentTick())
}

// execute claims the action and runs its handler once. Callers hold the
// action lock.
func (o *Orchestrator) execute(ctx context.Context, a *models.Action, tick int64) (*models.Action, error) {
	if a.Status != models.StatusApproved {
		return nil, &TransitionError{ActionID: a.ActionID, Op: "execute", Status: a.Status}
	}
	claimed, err := o.store.ClaimExecution(ctx, a.ActionID)
	if err != nil {
		if !errors.Is(err, database.ErrStatusConflict) {
			return nil, err
		}
		cur, gerr := o.store.GetAction(ctx, a.ActionID)
		if gerr != nil {
			return nil, gerr
		}
		if cur.Status == models.StatusApproved {
			return nil, fmt.Errorf("%w: action %s", ErrExecutionInProgress, a.ActionID)
		}
		return nil, &TransitionError{ActionID: a.ActionID, Op: "execute", Status: cur.Status}
	}

	start := o.now()
	effect, herr := o.executor.Execute(ctx, claimed)
	elapsed := o.now().Sub(start)

	// The outcome is recorded even when the caller has gone away: the claim
	// is held and any side effect has already happened.
	rctx := context.WithoutCancel(ctx)
	t := database.Transition{Actor: models.DecidedBySystem, Tick: tick}
	var out *models.Action
	if herr != nil {
		t.Error = herr.Error()
		out, err = o.transition(rctx, claimed, models.StatusExecutionFailed, t)
		if err == nil {
			o.logger.Warn("action execution failed",
				"action_id", a.ActionID, "action_type", a.ActionType, "error", herr, "tick", tick)
		}
	} else {
		t.OrderID = effect.OrderID
		t.Note = effect.Description
		out, err = o.transition(rctx, claimed, models.StatusExecuted, t)
		if err == nil {
			o.logger.Info("action executed",
				"action_id", a.ActionID, "action_type", a.ActionType, "effect", effect.Description, "tick", tick)
		}
	}
	if err != nil {
		// The side effect may have happened; the claim stays set so the
		// action is never run again.
		o.logger.Error("failed to record execution outcome", "action_id", a.ActionID, "error", err)
		return nil, err
	}
	for _, obs := range o.observers {
		obs.ExecutionFinished(out, elapsed)
	}
	if herr != nil {
		return out, fmt.Errorf("%w: %v", ErrExecutionFailed, herr)
	}
	return out, nil
}

func (o *Orchestrator) transition(ctx context.Context, a *models.Action, to models.ActionStatus, t database.Transition) (*models.Action, error) {
	from := a.Status
	out, err := o.store.TransitionAction(ctx, a.ActionID, from, to, t)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("action transitioned", "action_id", a.ActionID, "from", from, "to", to, "actor", t.Actor)
	for _, obs := range o.observers {
		obs.ActionTransitioned(out, from)
	}
	return out, nil
}

func (o *Orchestrator) notifyProposalFailed(agent models.Agent, reason string) {
	for _, obs := range o.observers {
		obs.ProposalFailed(agent, reason)
	}
}

func (o *Orchestrator) markActivated(tick int64, agentID string) bool {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	seen, ok := o.activated[tick]
	if !ok {
		seen = make(map[string]struct{})
		o.activated[tick] = seen
	}
	if _, dup := seen[agentID]; dup {
		return false
	}
	seen[agentID] = struct{}{}
	return true
}

func (o *Orchestrator) pruneCache(tick int64) {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	for t := range o.activated {
		if t < tick {
			delete(o.activated, t)
		}
	}
}

// ResetCaches forgets which agents ran on which tick. The clock calls it
// on reset so tick numbers can be reused.
func (o *Orchestrator) ResetCaches() {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	o.activated = make(map[int64]map[string]struct{})
	o.logger.Info("activation cache cleared")
}
