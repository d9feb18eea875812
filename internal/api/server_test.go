package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waypoint/internal/agents"
	"waypoint/internal/clock"
	"waypoint/internal/database"
	"waypoint/internal/execution"
	"waypoint/internal/models"
	"waypoint/internal/monitoring"
	"waypoint/internal/orchestrator"
	"waypoint/internal/risk"
)

type testEnv struct {
	server *Server
	store  *database.Store
	clock  *clock.SimulationClock
	hub    *Hub
}

// newTestEnv wires the real stack over an in-memory database. The
// forecaster always proposes discontinuing SKU-2001, which needs a human.
func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	store, err := database.Open(database.DriverSQLite, ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Seed(ctx))

	registry := agents.NewRegistry(store, logger)
	require.NoError(t, registry.Load(ctx, agents.DefaultAgents()))

	classifier, err := risk.New(risk.DefaultConfig(), logger)
	require.NoError(t, err)

	proposer := agents.ProposerFunc(func(ctx context.Context, _ models.AgentType, snap agents.Snapshot) (agents.Proposal, error) {
		if snap.Agent.AgentID != "forecast-1" {
			return agents.Proposal{}, agents.ErrNoProposal
		}
		return agents.Proposal{
			ActionType: models.ActionDiscontinue,
			Payload:    models.Payload{SKU: "SKU-2001"},
			Rationale:  "dead stock",
		}, nil
	})

	metrics := monitoring.NewMetrics()
	monitor := monitoring.NewMonitor()
	hub := NewHub(logger)

	orch, err := orchestrator.New(orchestrator.Config{}, orchestrator.Deps{
		Store:      store,
		Registry:   registry,
		Proposer:   proposer,
		Classifier: classifier,
		Executor:   execution.NewDefaultRegistry(store),
		Observers:  []orchestrator.Observer{metrics, monitor, hub},
		Logger:     logger,
	})
	require.NoError(t, err)

	clk := clock.New(time.Hour, logger)
	clk.SetTicker(orch)
	clk.OnReset(orch.ResetCaches)
	clk.OnTick(metrics.ObserveTick)
	clk.OnTick(monitor.RecordTick)
	clk.OnTick(hub.RecordTick)
	orch.SetTickSource(clk)
	t.Cleanup(clk.Stop)

	server := NewServer(Deps{
		Lifecycle: orch,
		Clock:     clk,
		Agents:    registry,
		Domain:    store,
		Summary:   monitor,
		Metrics:   metrics.Registry(),
		Hub:       hub,
		Logger:    logger,
		JWTSecret: secret,
	})
	return &testEnv{server: server, store: store, clock: clk, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

// stepToPending runs one tick and returns the pending discontinue action.
func (e *testEnv) stepToPending(t *testing.T) models.Action {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/clock/step", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/v1/actions/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Actions []models.Action `json:"actions"`
		Count   int             `json:"count"`
	}
	decode(t, w, &resp)
	require.Equal(t, 1, resp.Count)
	return resp.Actions[0]
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	decode(t, w, &resp)
	assert.Equal(t, "ok", resp["status"])
}

func TestClockStepAndStatus(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/api/v1/clock/step", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st clock.Status
	decode(t, w, &st)
	assert.Equal(t, int64(1), st.CurrentTick)
	assert.False(t, st.IsRunning)

	w = env.do(t, http.MethodGet, "/api/v1/clock/status", nil)
	decode(t, w, &st)
	assert.Equal(t, int64(1), st.TotalTicks)
}

func TestClockResetWhileRunningConflicts(t *testing.T) {
	env := newTestEnv(t, "")

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/clock/start", nil).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/v1/clock/start", nil).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/v1/clock/reset", nil).Code)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/clock/stop", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/clock/reset", nil).Code)
}

func TestApproveFlow(t *testing.T) {
	env := newTestEnv(t, "")
	pending := env.stepToPending(t)
	assert.Equal(t, models.RiskManual, pending.Risk)
	path := "/api/v1/actions/" + pending.ActionID

	w := env.do(t, http.MethodPost, path+"/approve", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodPost, path+"/approve", map[string]string{"decided_by": "alice"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var approved models.Action
	decode(t, w, &approved)
	assert.Equal(t, models.StatusExecuted, approved.Status)
	assert.Equal(t, "alice", approved.DecidedBy)

	// Replayed approval returns the same outcome.
	w = env.do(t, http.MethodPost, path+"/approve", map[string]string{"decided_by": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	var again models.Action
	decode(t, w, &again)
	assert.Equal(t, approved.OrderID, again.OrderID)

	w = env.do(t, http.MethodPost, path+"/decline", map[string]string{"decided_by": "bob"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail orchestrator.ActionDetail
	decode(t, w, &detail)
	require.Len(t, detail.Audit, 4)
	assert.Equal(t, models.StatusExecuted, detail.Audit[3].ToStatus)

	item, err := env.store.GetItem(context.Background(), "SKU-2001")
	require.NoError(t, err)
	assert.True(t, item.Discontinued)
	assert.Zero(t, item.Quantity)
}

func TestDeclineFlow(t *testing.T) {
	env := newTestEnv(t, "")
	pending := env.stepToPending(t)

	w := env.do(t, http.MethodPost, "/api/v1/actions/"+pending.ActionID+"/decline", map[string]string{"decided_by": "ops_user"})
	require.Equal(t, http.StatusOK, w.Code)
	var declined models.Action
	decode(t, w, &declined)
	assert.Equal(t, models.StatusDeclined, declined.Status)

	w = env.do(t, http.MethodPost, "/api/v1/actions/"+pending.ActionID+"/approve", map[string]string{"decided_by": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/orders", nil)
	var orders struct {
		Disposals []models.DisposalOrder `json:"disposal_orders"`
	}
	decode(t, w, &orders)
	assert.Empty(t, orders.Disposals)
}

func TestUnknownActionIsNotFound(t *testing.T) {
	env := newTestEnv(t, "")

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/actions/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodPost, "/api/v1/actions/nope/approve", map[string]string{"decided_by": "alice"}).Code)
}

func TestHistoryLimit(t *testing.T) {
	env := newTestEnv(t, "")
	env.stepToPending(t)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/actions/history?limit=zero", nil).Code)

	w := env.do(t, http.MethodGet, "/api/v1/actions/history?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count int `json:"count"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.Count)
}

func TestJWTDecider(t *testing.T) {
	const secret = "test-secret"
	env := newTestEnv(t, secret)
	pending := env.stepToPending(t)
	path := "/api/v1/actions/" + pending.ActionID + "/approve"

	w := env.do(t, http.MethodPost, path, map[string]string{"decided_by": "mallory"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "mallory"}).SignedString([]byte("wrong"))
	require.NoError(t, err)
	w = env.do(t, http.MethodPost, path, nil, "Authorization", "Bearer "+bad)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	// The body cannot override the token subject.
	w = env.do(t, http.MethodPost, path, map[string]string{"decided_by": "mallory"}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var approved models.Action
	decode(t, w, &approved)
	assert.Equal(t, "alice", approved.DecidedBy)
}

func TestAgents(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/api/v1/agents/forecast-1/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var agent models.Agent
	decode(t, w, &agent)
	assert.False(t, agent.IsActive)

	// A stopped forecaster proposes nothing.
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/clock/step", nil).Code)
	w = env.do(t, http.MethodGet, "/api/v1/actions/pending", nil)
	var resp struct {
		Count int `json:"count"`
	}
	decode(t, w, &resp)
	assert.Zero(t, resp.Count)

	w = env.do(t, http.MethodPost, "/api/v1/agents/forecast-1/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &agent)
	assert.True(t, agent.IsActive)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/agents/ghost/start", nil).Code)

	w = env.do(t, http.MethodGet, "/api/v1/agents", nil)
	var list []models.Agent
	decode(t, w, &list)
	assert.Len(t, list, len(agents.DefaultAgents()))
}

func TestScorecard(t *testing.T) {
	env := newTestEnv(t, "")
	pending := env.stepToPending(t)
	env.do(t, http.MethodPost, "/api/v1/actions/"+pending.ActionID+"/approve", map[string]string{"decided_by": "alice"})

	w := env.do(t, http.MethodGet, "/api/v1/agents/forecast-1/scorecard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var card map[string]interface{}
	decode(t, w, &card)
	assert.Equal(t, float64(1), card["proposed"])
	assert.Equal(t, float64(1), card["executed"])
	assert.Equal(t, float64(1), card["approval_rate"])

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/agents/ghost/scorecard", nil).Code)
}

func TestOperationalData(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/api/v1/inventory", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []map[string]interface{}
	decode(t, w, &items)
	require.NotEmpty(t, items)
	for _, it := range items {
		assert.Contains(t, it, "sku")
		assert.Contains(t, it, "status")
	}

	w = env.do(t, http.MethodGet, "/api/v1/shipments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fleet map[string][]map[string]interface{}
	decode(t, w, &fleet)
	assert.NotEmpty(t, fleet["shipments"])
	assert.NotEmpty(t, fleet["vehicles"])
}

func TestMetricsEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	env.stepToPending(t)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "waypoint_ticks_total 1")
	assert.Contains(t, body, `waypoint_actions_total{action_type="discontinue",risk="manual"} 1`)
	assert.Contains(t, body, "waypoint_pending_actions 1")

	w = env.do(t, http.MethodGet, "/api/v1/metrics/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary map[string]interface{}
	decode(t, w, &summary)
	assert.Contains(t, summary, "uptime_seconds")
	assert.Equal(t, float64(1), summary["last_tick"])
	counts, ok := summary["actions_by_status"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), counts["pending_approval"])
}

func TestWebSocketFeed(t *testing.T) {
	env := newTestEnv(t, "")
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	_, err = env.clock.Step(context.Background())
	require.NoError(t, err)

	seen := map[string]bool{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for !seen[EventTick] {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		seen[ev.Type] = true
	}
	assert.True(t, seen[EventProposed])
	assert.True(t, seen[EventTransition])
}
