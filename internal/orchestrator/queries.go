package orchestrator

import (
	"context"

	"waypoint/internal/database"
	"waypoint/internal/models"
)

// ActionDetail is an action together with its audit trail.
type ActionDetail struct {
	Action *models.Action       `json:"action"`
	Audit  []models.AuditEntry `json:"audit"`
}

// Pending lists actions awaiting a human decision, oldest first.
func (o *Orchestrator) Pending(ctx context.Context) ([]models.Action, error) {
	return o.store.ListActions(ctx, database.ActionFilter{Status: models.StatusPendingApproval, Oldest: true})
}

// History lists the most recent actions in any state, newest first.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]models.Action, error) {
	if limit <= 0 {
		limit = 50
	}
	return o.store.ListActions(ctx, database.ActionFilter{Limit: limit})
}

// AgentHistory lists every action one agent has produced.
func (o *Orchestrator) AgentHistory(ctx context.Context, agentID string) ([]models.Action, error) {
	return o.store.ListActions(ctx, database.ActionFilter{AgentID: agentID})
}

// Action returns one action and its audit trail.
func (o *Orchestrator) Action(ctx context.Context, id string) (*ActionDetail, error) {
	a, err := o.store.GetAction(ctx, id)
	if err != nil {
		return nil, err
	}
	audit, err := o.store.ListAudit(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ActionDetail{Action: a, Audit: audit}, nil
}
