package models

import (
	"fmt"
	"time"
)

// AgentType identifies what an agent is responsible for
type AgentType string

const (
	AgentTypeRestock     AgentType = "restock"
	AgentTypeRoute       AgentType = "route"
	AgentTypePricing     AgentType = "pricing"
	AgentTypeDispatch    AgentType = "dispatch"
	AgentTypeForecasting AgentType = "forecasting"
)

// agentActions lists the action types each agent type may propose.
var agentActions = map[AgentType][]ActionType{
	AgentTypeRestock:     {ActionRestock, ActionClearance},
	AgentTypeForecasting: {ActionRestock, ActionDiscontinue},
	AgentTypePricing:     {ActionReprice, ActionClearance, ActionDiscontinue},
	AgentTypeRoute:       {ActionReroute},
	AgentTypeDispatch:    {ActionDispatch},
}

// Valid reports whether t is one of the known agent types
func (t AgentType) Valid() bool {
	_, ok := agentActions[t]
	return ok
}

// Allows reports whether an agent of this type may propose the given action type
func (t AgentType) Allows(a ActionType) bool {
	for _, allowed := range agentActions[t] {
		if allowed == a {
			return true
		}
	}
	return false
}

// AllowedActions returns the action types an agent of this type may propose
func (t AgentType) AllowedActions() []ActionType {
	out := make([]ActionType, len(agentActions[t]))
	copy(out, agentActions[t])
	return out
}

// ParseAgentType converts a configured string into an AgentType
func ParseAgentType(s string) (AgentType, error) {
	t := AgentType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown agent type %q", s)
	}
	return t, nil
}

// Agent is the runtime record of a configured agent. Agents are never
// deleted, only deactivated.
type Agent struct {
	AgentID        string     `gorm:"primary_key" json:"agent_id"`
	AgentType      AgentType  `gorm:"not null" json:"agent_type"`
	Name           string     `json:"name"`
	IsActive       bool       `json:"is_active"`
	LastActionTime *time.Time `json:"last_action_time,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName sets the table name for Agent
func (Agent) TableName() string {
	return "agents"
}
