package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"waypoint/internal/models"
)

const systemPrompt = `You are an operations agent for a warehouse and delivery fleet.
You receive the current simulation state and propose exactly one action.
Reply with a single JSON object and nothing else:
{"action_type": "...", "payload": {...}, "rationale": "...", "estimated_impact": {"value": 0, "quantity": 0}}
Payload fields: sku, quantity, price, location, vehicle_id, shipment_id, route.
If nothing needs doing reply {"action_type": "none"}.`

// LLMProposer asks a language model for a proposal. Replies that cannot be
// parsed or validated are handed to the fallback proposer.
type LLMProposer struct {
	completer Completer
	fallback  Proposer
	logger    *slog.Logger
}

// NewLLMProposer wraps completer. fallback may be nil.
func NewLLMProposer(completer Completer, fallback Proposer, logger *slog.Logger) *LLMProposer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMProposer{completer: completer, fallback: fallback, logger: logger}
}

// Propose implements Proposer.
func (p *LLMProposer) Propose(ctx context.Context, agentType models.AgentType, snap Snapshot) (Proposal, error) {
	prompt, err := buildPrompt(agentType, snap)
	if err != nil {
		return Proposal{}, err
	}

	reply, err := p.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return Proposal{}, fmt.Errorf("agents: completion for %s: %w", snap.Agent.AgentID, err)
	}

	proposal, err := parseProposal(reply)
	if err == nil {
		if proposal.ActionType == "none" {
			return Proposal{}, ErrNoProposal
		}
		err = proposal.Validate(agentType)
	}
	if err != nil {
		if p.fallback == nil {
			return Proposal{}, err
		}
		p.logger.Warn("unusable model reply, falling back to heuristic",
			"agent_id", snap.Agent.AgentID, "error", err)
		return p.fallback.Propose(ctx, agentType, snap)
	}
	return proposal, nil
}

type promptState struct {
	Tick           int64                  `json:"tick"`
	AgentType      models.AgentType       `json:"agent_type"`
	AllowedActions []models.ActionType    `json:"allowed_actions"`
	Inventory      []models.InventoryItem `json:"inventory,omitempty"`
	Shipments      []models.Shipment      `json:"shipments,omitempty"`
	Vehicles       []models.Vehicle       `json:"vehicles,omitempty"`
	OpenActions    []openAction           `json:"open_actions,omitempty"`
}

type openAction struct {
	ActionType models.ActionType   `json:"action_type"`
	Status     models.ActionStatus `json:"status"`
	Target     string              `json:"target"`
}

func buildPrompt(agentType models.AgentType, snap Snapshot) (string, error) {
	state := promptState{
		Tick:           snap.Tick,
		AgentType:      agentType,
		AllowedActions: agentType.AllowedActions(),
	}
	switch agentType {
	case models.AgentTypeRoute, models.AgentTypeDispatch:
		state.Shipments = snap.Shipments
		state.Vehicles = snap.Vehicles
	default:
		state.Inventory = snap.Inventory
	}
	for _, a := range snap.OpenActions {
		state.OpenActions = append(state.OpenActions, openAction{ActionType: a.ActionType, Status: a.Status, Target: a.Payload.Target()})
	}

	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("agents: encode snapshot: %w", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the %s agent. Do not repeat an open action on the same target.\n", agentType)
	sb.WriteString("Current state:\n")
	sb.Write(b)
	return sb.String(), nil
}

// parseProposal extracts the first JSON object from a model reply.
func parseProposal(reply string) (Proposal, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Proposal{}, fmt.Errorf("agents: no JSON object in reply %q", truncate(reply, 80))
	}
	var p Proposal
	if err := json.Unmarshal([]byte(reply[start:end+1]), &p); err != nil {
		return Proposal{}, fmt.Errorf("agents: decode reply: %w", err)
	}
	return p, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
