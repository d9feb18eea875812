package agents

import (
	"context"
	"errors"
	"fmt"

	"waypoint/internal/models"
)

// ErrNoProposal means the agent looked at the snapshot and had nothing to do.
var ErrNoProposal = errors.New("agents: nothing to propose")

// Proposal is what a reasoning step returns for one activation.
type Proposal struct {
	ActionType      models.ActionType `json:"action_type"`
	Payload         models.Payload    `json:"payload"`
	Rationale       string            `json:"rationale"`
	EstimatedImpact models.Impact     `json:"estimated_impact"`
}

// Validate checks that an agent of type t may make this proposal.
func (p Proposal) Validate(t models.AgentType) error {
	if !p.ActionType.Valid() {
		return fmt.Errorf("agents: proposal has unknown action type %q", p.ActionType)
	}
	if !t.Allows(p.ActionType) {
		return fmt.Errorf("agents: %s agent may not propose %s", t, p.ActionType)
	}
	return nil
}

// ToPayload folds the rationale and impact estimate into the stored payload.
func (p Proposal) ToPayload() models.Payload {
	out := p.Payload
	if p.Rationale != "" {
		out.Rationale = p.Rationale
	}
	if p.EstimatedImpact != (models.Impact{}) {
		out.EstimatedImpact = p.EstimatedImpact
	}
	return out
}

// Snapshot is the view of the world handed to a proposer.
type Snapshot struct {
	Tick        int64                  `json:"tick"`
	Agent       models.Agent           `json:"agent"`
	Inventory   []models.InventoryItem `json:"inventory"`
	Shipments   []models.Shipment      `json:"shipments"`
	Vehicles    []models.Vehicle       `json:"vehicles"`
	OpenActions []models.Action        `json:"open_actions"`
}

// HasOpen reports whether the agent already has an open action of type t
// on target.
func (s Snapshot) HasOpen(t models.ActionType, target string) bool {
	for _, a := range s.OpenActions {
		if a.ActionType == t && a.Payload.Target() == target {
			return true
		}
	}
	return false
}

// Proposer produces at most one proposal per activation. Implementations
// must honour ctx cancellation.
type Proposer interface {
	Propose(ctx context.Context, agentType models.AgentType, snap Snapshot) (Proposal, error)
}

// ProposerFunc adapts a function to Proposer.
type ProposerFunc func(ctx context.Context, agentType models.AgentType, snap Snapshot) (Proposal, error)

// Propose calls f.
func (f ProposerFunc) Propose(ctx context.Context, agentType models.AgentType, snap Snapshot) (Proposal, error) {
	return f(ctx, agentType, snap)
}
