package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"waypoint/internal/clock"
	"waypoint/internal/models"
	"waypoint/internal/risk"
)

// Metrics exports the action lifecycle to Prometheus. It owns its own
// registry so tests and multiple servers never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	ticks          prometheus.Counter
	tickFailures   prometheus.Counter
	currentTick    prometheus.Gauge
	actions        *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	proposalFailed *prometheus.CounterVec
	execution      *prometheus.HistogramVec
	pending        prometheus.Gauge
}

// NewMetrics creates and registers every collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waypoint_ticks_total",
			Help: "Simulation ticks completed",
		}),
		tickFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waypoint_tick_failures_total",
			Help: "Simulation ticks that reported an error",
		}),
		currentTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "waypoint_current_tick",
			Help: "Most recent simulation tick",
		}),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypoint_actions_total",
				Help: "Actions proposed by agents",
			},
			[]string{"action_type", "risk"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypoint_action_transitions_total",
				Help: "Action status transitions",
			},
			[]string{"from", "to"},
		),
		proposalFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypoint_proposal_failures_total",
				Help: "Agent activations that produced no action",
			},
			[]string{"agent_type", "reason"},
		),
		execution: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "waypoint_execution_seconds",
				Help:    "Time spent in execution handlers",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"action_type"},
		),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "waypoint_pending_actions",
			Help: "Actions waiting for a human decision",
		}),
	}

	m.registry.MustRegister(
		m.ticks, m.tickFailures, m.currentTick,
		m.actions, m.transitions, m.proposalFailed,
		m.execution, m.pending,
	)
	return m
}

// Registry returns the registry to expose over HTTP.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetPending seeds the pending gauge, typically from the store at startup.
func (m *Metrics) SetPending(n int) {
	m.pending.Set(float64(n))
}

// ObserveTick is a clock tick hook.
func (m *Metrics) ObserveTick(res clock.TickResult) {
	m.ticks.Inc()
	m.currentTick.Set(float64(res.Tick))
	if res.Err != nil {
		m.tickFailures.Inc()
	}
}

// ActionProposed implements the orchestrator observer.
func (m *Metrics) ActionProposed(a *models.Action, d risk.Decision) {
	m.actions.WithLabelValues(string(a.ActionType), string(d.Class)).Inc()
}

// ActionTransitioned implements the orchestrator observer.
func (m *Metrics) ActionTransitioned(a *models.Action, from models.ActionStatus) {
	m.transitions.WithLabelValues(string(from), string(a.Status)).Inc()
	switch {
	case a.Status == models.StatusPendingApproval:
		m.pending.Inc()
	case from == models.StatusPendingApproval:
		m.pending.Dec()
	}
}

// ProposalFailed implements the orchestrator observer.
func (m *Metrics) ProposalFailed(agent models.Agent, reason string) {
	m.proposalFailed.WithLabelValues(string(agent.AgentType), reason).Inc()
}

// ExecutionFinished implements the orchestrator observer.
func (m *Metrics) ExecutionFinished(a *models.Action, elapsed time.Duration) {
	m.execution.WithLabelValues(string(a.ActionType)).Observe(elapsed.Seconds())
}
