// Package risk decides whether a proposed action may run without a human.
package risk

import (
	"fmt"
	"log/slog"
	"math"

	"waypoint/internal/models"
)

// Metric selects which part of a payload is compared against a threshold.
type Metric string

const (
	MetricQuantity Metric = "quantity"
	MetricValue    Metric = "value"
)

// Threshold is the auto-approval limit for one action type.
type Threshold struct {
	Metric Metric  `yaml:"metric" json:"metric"`
	Limit  float64 `yaml:"limit" json:"limit"`
}

// Config maps action types to thresholds. Types in AlwaysManual are never
// auto-approved whatever their impact.
type Config struct {
	Thresholds   map[models.ActionType]Threshold `yaml:"thresholds" json:"thresholds"`
	AlwaysManual []models.ActionType             `yaml:"always_manual" json:"always_manual"`
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		Thresholds: map[models.ActionType]Threshold{
			models.ActionRestock:   {Metric: MetricQuantity, Limit: 50},
			models.ActionClearance: {Metric: MetricQuantity, Limit: 20},
			models.ActionReprice:   {Metric: MetricValue, Limit: 100},
			models.ActionReroute:   {Metric: MetricValue, Limit: 500},
			models.ActionDispatch:  {Metric: MetricValue, Limit: 1000},
		},
		AlwaysManual: []models.ActionType{models.ActionDiscontinue},
	}
}

// Validate checks that every threshold names a known action type and metric.
func (c Config) Validate() error {
	for t, th := range c.Thresholds {
		if !t.Valid() {
			return fmt.Errorf("risk: threshold for unknown action type %q", t)
		}
		switch th.Metric {
		case MetricQuantity, MetricValue:
		default:
			return fmt.Errorf("risk: threshold for %s has unknown metric %q", t, th.Metric)
		}
		if th.Limit < 0 || math.IsNaN(th.Limit) {
			return fmt.Errorf("risk: threshold for %s must be non-negative, got %v", t, th.Limit)
		}
	}
	for _, t := range c.AlwaysManual {
		if !t.Valid() {
			return fmt.Errorf("risk: always-manual entry %q is not an action type", t)
		}
	}
	return nil
}

// Decision is the outcome of classifying one action.
type Decision struct {
	Class  models.RiskClass `json:"class"`
	Impact float64          `json:"impact"`
	Limit  float64          `json:"limit"`
	Reason string           `json:"reason"`
}

// Auto reports whether the action may skip human review.
func (d Decision) Auto() bool {
	return d.Class == models.RiskAuto
}

// Classifier is safe for concurrent use; its configuration is fixed at
// construction.
type Classifier struct {
	thresholds map[models.ActionType]Threshold
	manual     map[models.ActionType]bool
	logger     *slog.Logger
}

// New builds a Classifier from cfg.
func New(cfg Config, logger *slog.Logger) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{
		thresholds: make(map[models.ActionType]Threshold, len(cfg.Thresholds)),
		manual:     make(map[models.ActionType]bool, len(cfg.AlwaysManual)),
		logger:     logger,
	}
	for t, th := range cfg.Thresholds {
		c.thresholds[t] = th
	}
	for _, t := range cfg.AlwaysManual {
		c.manual[t] = true
	}
	return c, nil
}

// Classify labels an action auto or manual. Impact equal to the limit is
// manual. Types without a threshold are manual, and so are payloads with
// no measurable impact.
func (c *Classifier) Classify(actionType models.ActionType, p models.Payload) Decision {
	if c.manual[actionType] {
		return Decision{Class: models.RiskManual, Impact: Impact(MetricQuantity, p), Reason: "always manual"}
	}
	th, ok := c.thresholds[actionType]
	if !ok {
		c.logger.Warn("no risk threshold configured, defaulting to manual", "action_type", actionType)
		return Decision{Class: models.RiskManual, Reason: "no threshold configured"}
	}

	impact := Impact(th.Metric, p)
	d := Decision{Impact: impact, Limit: th.Limit}
	switch {
	case impact == 0:
		d.Class = models.RiskManual
		d.Reason = fmt.Sprintf("no %s impact estimate", th.Metric)
	case impact < th.Limit:
		d.Class = models.RiskAuto
		d.Reason = fmt.Sprintf("%s %v below limit %v", th.Metric, impact, th.Limit)
	default:
		d.Class = models.RiskManual
		d.Reason = fmt.Sprintf("%s %v at or above limit %v", th.Metric, impact, th.Limit)
	}
	return d
}

// Impact measures a payload along metric. Quantity prefers the payload's
// own quantity and falls back to the estimate. Both are absolute values.
func Impact(metric Metric, p models.Payload) float64 {
	switch metric {
	case MetricQuantity:
		q := p.Quantity
		if q == 0 {
			q = p.EstimatedImpact.Quantity
		}
		return math.Abs(float64(q))
	case MetricValue:
		return math.Abs(p.EstimatedImpact.Value)
	}
	return math.Inf(1)
}
