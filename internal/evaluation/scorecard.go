// Package evaluation scores agents from the actions they produced.
package evaluation

import (
	"sort"
	"time"

	"waypoint/internal/models"
)

// Scorecard summarises one agent's track record.
type Scorecard struct {
	AgentID   string           `json:"agent_id"`
	AgentType models.AgentType `json:"agent_type"`

	Proposed int `json:"proposed"`
	Auto     int `json:"auto"`
	Manual   int `json:"manual"`

	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Declined int `json:"declined"`
	Executed int `json:"executed"`
	Failed   int `json:"failed"`

	// AutoRate is the share of proposals that skipped human review.
	AutoRate float64 `json:"auto_rate"`
	// ApprovalRate is human approvals over human decisions.
	ApprovalRate float64 `json:"approval_rate"`
	// SuccessRate is executed over finished executions.
	SuccessRate float64 `json:"success_rate"`

	LastActionAt *time.Time `json:"last_action_at,omitempty"`
}

// Score builds a scorecard for agent from its actions. Actions belonging to
// other agents are ignored.
func Score(agent models.Agent, actions []models.Action) Scorecard {
	sc := Scorecard{AgentID: agent.AgentID, AgentType: agent.AgentType}
	humanApproved := 0

	for i := range actions {
		a := &actions[i]
		if a.AgentID != agent.AgentID {
			continue
		}
		sc.Proposed++
		if a.Risk == models.RiskAuto {
			sc.Auto++
		} else {
			sc.Manual++
		}

		switch a.Status {
		case models.StatusPendingApproval:
			sc.Pending++
		case models.StatusDeclined:
			sc.Declined++
		case models.StatusApproved:
			sc.Approved++
		case models.StatusExecuted:
			sc.Executed++
		case models.StatusExecutionFailed:
			sc.Failed++
		}
		if a.DecidedBy != "" && a.DecidedBy != models.DecidedBySystem && a.Status != models.StatusDeclined {
			humanApproved++
		}

		if sc.LastActionAt == nil || a.CreatedAt.After(*sc.LastActionAt) {
			at := a.CreatedAt
			sc.LastActionAt = &at
		}
	}

	sc.AutoRate = ratio(sc.Auto, sc.Proposed)
	sc.ApprovalRate = ratio(humanApproved, humanApproved+sc.Declined)
	sc.SuccessRate = ratio(sc.Executed, sc.Executed+sc.Failed)
	return sc
}

// ScoreAll scores every agent, ordered by agent id.
func ScoreAll(agents []models.Agent, actions []models.Action) []Scorecard {
	byAgent := make(map[string][]models.Action, len(agents))
	for _, a := range actions {
		byAgent[a.AgentID] = append(byAgent[a.AgentID], a)
	}
	out := make([]Scorecard, 0, len(agents))
	for _, ag := range agents {
		out = append(out, Score(ag, byAgent[ag.AgentID]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
