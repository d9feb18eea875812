package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ActionType is the kind of operation an agent proposes
type ActionType string

const (
	ActionRestock     ActionType = "restock"
	ActionClearance   ActionType = "clearance"
	ActionDiscontinue ActionType = "discontinue"
	ActionReprice     ActionType = "reprice"
	ActionReroute     ActionType = "reroute"
	ActionDispatch    ActionType = "dispatch"
)

// ActionTypes lists every known action type in a stable order
var ActionTypes = []ActionType{
	ActionRestock,
	ActionClearance,
	ActionDiscontinue,
	ActionReprice,
	ActionReroute,
	ActionDispatch,
}

// Valid reports whether t is a known action type
func (t ActionType) Valid() bool {
	for _, known := range ActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseActionType converts a string into an ActionType
func ParseActionType(s string) (ActionType, error) {
	t := ActionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown action type %q", s)
	}
	return t, nil
}

// ActionStatus is the lifecycle state of an Action
type ActionStatus string

const (
	StatusProposed        ActionStatus = "proposed"
	StatusAutoApproved    ActionStatus = "auto_approved"
	StatusPendingApproval ActionStatus = "pending_approval"
	StatusApproved        ActionStatus = "approved"
	StatusDeclined        ActionStatus = "declined"
	StatusExecuted        ActionStatus = "executed"
	StatusExecutionFailed ActionStatus = "execution_failed"
)

// transitions is the only set of edges an Action may follow.
var transitions = map[ActionStatus][]ActionStatus{
	StatusProposed:        {StatusAutoApproved, StatusPendingApproval},
	StatusAutoApproved:    {StatusApproved},
	StatusPendingApproval: {StatusApproved, StatusDeclined},
	StatusApproved:        {StatusExecuted, StatusExecutionFailed},
}

// Valid reports whether s is a known status
func (s ActionStatus) Valid() bool {
	switch s {
	case StatusProposed, StatusAutoApproved, StatusPendingApproval, StatusApproved,
		StatusDeclined, StatusExecuted, StatusExecutionFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s
func (s ActionStatus) CanTransitionTo(next ActionStatus) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s
func (s ActionStatus) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// ParseActionStatus converts a string into an ActionStatus
func ParseActionStatus(s string) (ActionStatus, error) {
	st := ActionStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown action status %q", s)
	}
	return st, nil
}

// RiskClass is the classifier's verdict for an Action
type RiskClass string

const (
	RiskAuto   RiskClass = "auto"
	RiskManual RiskClass = "manual"
)

// Impact is the proposer's estimate of what an action moves
type Impact struct {
	Value    float64 `json:"value"`
	Quantity int     `json:"quantity"`
}

// Payload carries the action-specific parameters of an Action. It is
// stored as a JSON column.
type Payload struct {
	SKU             string  `json:"sku,omitempty"`
	Quantity        int     `json:"quantity,omitempty"`
	Price           float64 `json:"price,omitempty"`
	Location        string  `json:"location,omitempty"`
	VehicleID       string  `json:"vehicle_id,omitempty"`
	ShipmentID      string  `json:"shipment_id,omitempty"`
	Route           string  `json:"route,omitempty"`
	Rationale       string  `json:"rationale,omitempty"`
	EstimatedImpact Impact  `json:"estimated_impact"`
}

// Target names the entity an action operates on, used to detect
// duplicate proposals.
func (p Payload) Target() string {
	switch {
	case p.ShipmentID != "":
		return "shipment:" + p.ShipmentID
	case p.SKU != "":
		return "sku:" + p.SKU
	case p.VehicleID != "":
		return "vehicle:" + p.VehicleID
	}
	return ""
}

// Value converts the payload to a JSON string for storage
func (p Payload) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan converts the database value back to a payload
func (p *Payload) Scan(value interface{}) error {
	if value == nil {
		*p = Payload{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return errors.New("unsupported type for Payload")
	}
}

// Action is a single proposed or decided agent operation
type Action struct {
	ActionID   string       `gorm:"primary_key" json:"action_id"`
	AgentID    string       `gorm:"index;not null" json:"agent_id"`
	ActionType ActionType   `gorm:"not null" json:"action_type"`
	Payload    Payload      `gorm:"type:text" json:"payload"`
	Risk       RiskClass    `json:"risk_classification"`
	Status     ActionStatus `gorm:"index;not null" json:"status"`
	Tick       int64        `gorm:"index" json:"tick"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	DecidedAt  *time.Time   `json:"decided_at,omitempty"`
	DecidedBy  string       `json:"decided_by,omitempty"`
	ClaimedAt  *time.Time   `json:"-"`
	ExecutedAt *time.Time   `json:"executed_at,omitempty"`
	Error      string       `gorm:"type:text" json:"error,omitempty"`
	OrderID    string       `json:"order_id,omitempty"`
}

// TableName sets the table name for Action
func (Action) TableName() string {
	return "actions"
}

// DecidedBySystem is the actor recorded for auto-approved actions
const DecidedBySystem = "system"
