package monitoring

import (
	"sync"
	"time"

	"waypoint/internal/clock"
	"waypoint/internal/models"
	"waypoint/internal/risk"
)

// Monitor keeps a small in-process summary of what the orchestrator has
// been doing, served as JSON next to the Prometheus endpoint.
type Monitor struct {
	metrics      map[string]interface{}
	metricsMutex sync.RWMutex
	startTime    time.Time
	now          func() time.Time
}

// NewMonitor creates a new monitoring instance
func NewMonitor() *Monitor {
	return &Monitor{
		metrics:   make(map[string]interface{}),
		startTime: time.Now(),
		now:       time.Now,
	}
}

// RecordMetric records a metric value
func (m *Monitor) RecordMetric(name string, value interface{}) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics[name] = value
}

// GetMetric returns a specific metric value
func (m *Monitor) GetMetric(name string) (interface{}, bool) {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()
	value, exists := m.metrics[name]
	return value, exists
}

// GetMetrics returns all current metrics
func (m *Monitor) GetMetrics() map[string]interface{} {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()

	metrics := make(map[string]interface{}, len(m.metrics)+1)
	for k, v := range m.metrics {
		metrics[k] = v
	}
	metrics["uptime_seconds"] = m.now().Sub(m.startTime).Seconds()

	return metrics
}

// Reset clears all metrics
func (m *Monitor) Reset() {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics = make(map[string]interface{})
}

// RecordTick is a clock tick hook.
func (m *Monitor) RecordTick(res clock.TickResult) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()

	m.metrics["last_tick"] = res.Tick
	m.metrics["last_tick_at"] = m.now().UTC().Format(time.RFC3339)
	m.metrics["last_tick_duration_ms"] = res.Duration.Milliseconds()
	m.increment("ticks_total")
	if res.Err != nil {
		m.metrics["last_tick_error"] = res.Err.Error()
		m.increment("tick_failures_total")
	} else {
		delete(m.metrics, "last_tick_error")
	}
}

// ActionProposed counts proposals by risk class.
func (m *Monitor) ActionProposed(a *models.Action, d risk.Decision) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.increment("actions_proposed_total")
	m.increment("actions_" + string(d.Class) + "_total")
}

// ActionTransitioned counts arrivals in each status.
func (m *Monitor) ActionTransitioned(a *models.Action, from models.ActionStatus) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.increment("actions_" + string(a.Status) + "_total")
}

// ProposalFailed counts skipped activations.
func (m *Monitor) ProposalFailed(agent models.Agent, reason string) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.increment("proposal_" + reason + "_total")
}

// ExecutionFinished remembers the latest execution.
func (m *Monitor) ExecutionFinished(a *models.Action, elapsed time.Duration) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics["last_execution_ms"] = elapsed.Milliseconds()
	m.metrics["last_execution_action"] = a.ActionID
}

// increment bumps an integer counter. Callers hold the write lock.
func (m *Monitor) increment(name string) {
	n, _ := m.metrics[name].(int64)
	m.metrics[name] = n + 1
}
