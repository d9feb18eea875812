// Package agents holds the agent registry and the proposers that turn a
// simulation snapshot into a proposed action.
package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"waypoint/internal/models"
)

// ErrUnknownAgent is returned for an agent id the registry does not hold.
var ErrUnknownAgent = errors.New("agents: unknown agent")

// AgentStore persists agent records.
type AgentStore interface {
	ListAgents(ctx context.Context) ([]models.Agent, error)
	SaveAgent(ctx context.Context, a models.Agent) error
	SetAgentActive(ctx context.Context, agentID string, active bool) error
	TouchAgent(ctx context.Context, agentID string, at time.Time) error
}

type entry struct {
	// run serializes activations of one agent
	run   sync.Mutex
	agent models.Agent
}

// Registry is the in-memory view of every agent, backed by an AgentStore.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*entry
	store  AgentStore
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(store AgentStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		agents: make(map[string]*entry),
		store:  store,
		logger: logger,
	}
}

// DefaultAgents is one active agent of every type.
func DefaultAgents() []models.Agent {
	return []models.Agent{
		{AgentID: "restock-1", AgentType: models.AgentTypeRestock, Name: "Restock Planner", IsActive: true},
		{AgentID: "forecast-1", AgentType: models.AgentTypeForecasting, Name: "Demand Forecaster", IsActive: true},
		{AgentID: "pricing-1", AgentType: models.AgentTypePricing, Name: "Pricing Analyst", IsActive: true},
		{AgentID: "route-1", AgentType: models.AgentTypeRoute, Name: "Route Planner", IsActive: true},
		{AgentID: "dispatch-1", AgentType: models.AgentTypeDispatch, Name: "Fleet Dispatcher", IsActive: true},
	}
}

// Load reads persisted agents and saves any of defaults that are missing.
// Persisted start/stop state wins over defaults.
func (r *Registry) Load(ctx context.Context, defaults []models.Agent) error {
	persisted, err := r.store.ListAgents(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range persisted {
		if !a.AgentType.Valid() {
			r.logger.Warn("skipping agent with unknown type", "agent_id", a.AgentID, "agent_type", a.AgentType)
			continue
		}
		r.agents[a.AgentID] = &entry{agent: a}
	}
	for _, a := range defaults {
		if _, ok := r.agents[a.AgentID]; ok {
			continue
		}
		if !a.AgentType.Valid() {
			return fmt.Errorf("agents: agent %s has unknown type %q", a.AgentID, a.AgentType)
		}
		if err := r.store.SaveAgent(ctx, a); err != nil {
			return err
		}
		r.agents[a.AgentID] = &entry{agent: a}
	}
	r.logger.Info("agent registry loaded", "agents", len(r.agents), "persisted", len(persisted))
	return nil
}

// Get returns a copy of one agent.
func (r *Registry) Get(id string) (models.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[id]
	if !ok {
		return models.Agent{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return e.agent, nil
}

// List returns every agent ordered by id.
func (r *Registry) List() []models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Agent, 0, len(r.agents))
	for _, e := range r.agents {
		out = append(out, e.agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Active returns the running agents ordered by id.
func (r *Registry) Active() []models.Agent {
	all := r.List()
	out := all[:0]
	for _, a := range all {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out
}

// SetActive starts or stops an agent and persists the change.
func (r *Registry) SetActive(ctx context.Context, id string, active bool) (models.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[id]
	if !ok {
		return models.Agent{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	if err := r.store.SetAgentActive(ctx, id, active); err != nil {
		return models.Agent{}, err
	}
	e.agent.IsActive = active
	r.logger.Info("agent state changed", "agent_id", id, "active", active)
	return e.agent, nil
}

// MarkActed records that an agent produced an action at the given time.
func (r *Registry) MarkActed(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	e, ok := r.agents[id]
	if ok {
		t := at
		e.agent.LastActionTime = &t
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return r.store.TouchAgent(ctx, id, at)
}

// Lock takes the per-agent activation lock. The returned func releases it.
func (r *Registry) Lock(id string) (func(), error) {
	r.mu.RLock()
	e, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	e.run.Lock()
	return e.run.Unlock, nil
}
