// Package api exposes the orchestrator over HTTP and a websocket event feed.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"waypoint/internal/clock"
	"waypoint/internal/models"
	"waypoint/internal/orchestrator"
)

// Lifecycle is the orchestrator surface the API drives.
type Lifecycle interface {
	Pending(ctx context.Context) ([]models.Action, error)
	History(ctx context.Context, limit int) ([]models.Action, error)
	AgentHistory(ctx context.Context, agentID string) ([]models.Action, error)
	Action(ctx context.Context, id string) (*orchestrator.ActionDetail, error)
	Approve(ctx context.Context, id, decidedBy string) (*models.Action, error)
	Decline(ctx context.Context, id, decidedBy string) (*models.Action, error)
	Execute(ctx context.Context, id string) (*models.Action, error)
}

// Clock is the tick driver.
type Clock interface {
	Start(ctx context.Context) error
	Stop()
	Step(ctx context.Context) (int64, error)
	Reset() error
	Status() clock.Status
}

// Agents is the agent registry.
type Agents interface {
	List() []models.Agent
	Get(id string) (models.Agent, error)
	SetActive(ctx context.Context, id string, active bool) (models.Agent, error)
}

// Domain is the read side of the operational data.
type Domain interface {
	ListInventory(ctx context.Context) ([]models.InventoryItem, error)
	ListPurchaseOrders(ctx context.Context) ([]models.PurchaseOrder, error)
	ListDisposalOrders(ctx context.Context) ([]models.DisposalOrder, error)
	ListShipments(ctx context.Context) ([]models.Shipment, error)
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	CountActionsByStatus(ctx context.Context) (map[models.ActionStatus]int, error)
	Ping(ctx context.Context) error
}

// Summary supplies the JSON metrics summary.
type Summary interface {
	GetMetrics() map[string]interface{}
}

// Deps are what a Server is built from. Metrics, Summary and Hub are
// optional.
type Deps struct {
	Lifecycle Lifecycle
	Clock     Clock
	Agents    Agents
	Domain    Domain
	Summary   Summary
	Metrics   *prometheus.Registry
	Hub       *Hub
	Logger    *slog.Logger

	// MetricsPath defaults to /metrics.
	MetricsPath string
	// JWTSecret turns on bearer-token auth for decision endpoints.
	JWTSecret string
	// BaseContext outlives requests; the clock loop runs under it.
	BaseContext context.Context
}

// Server handles the waypoint HTTP API.
type Server struct {
	router    *gin.Engine
	lifecycle Lifecycle
	clock     Clock
	agents    Agents
	domain    Domain
	summary   Summary
	hub       *Hub
	logger    *slog.Logger
	baseCtx   context.Context
	jwtSecret []byte
}

// NewServer creates a new server instance and registers its routes.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Logger))

	s := &Server{
		router:    router,
		lifecycle: deps.Lifecycle,
		clock:     deps.Clock,
		agents:    deps.Agents,
		domain:    deps.Domain,
		summary:   deps.Summary,
		hub:       deps.Hub,
		logger:    deps.Logger,
		baseCtx:   deps.BaseContext,
	}
	if deps.JWTSecret != "" {
		s.jwtSecret = []byte(deps.JWTSecret)
	}

	if deps.Metrics != nil {
		router.GET(deps.MetricsPath, gin.WrapH(promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})))
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.hub != nil {
		s.router.GET("/ws", s.hub.ServeWS)
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/clock/status", s.handleClockStatus)
		v1.POST("/clock/start", s.handleClockStart)
		v1.POST("/clock/stop", s.handleClockStop)
		v1.POST("/clock/step", s.handleClockStep)
		v1.POST("/clock/reset", s.handleClockReset)

		v1.GET("/actions/pending", s.handlePending)
		v1.GET("/actions/history", s.handleHistory)
		v1.GET("/actions/:id", s.handleAction)

		decisions := v1.Group("/actions/:id", s.decider())
		decisions.POST("/approve", s.handleApprove)
		decisions.POST("/decline", s.handleDecline)
		decisions.POST("/execute", s.handleExecute)

		v1.GET("/agents", s.handleListAgents)
		v1.POST("/agents/:id/start", s.handleAgentActive(true))
		v1.POST("/agents/:id/stop", s.handleAgentActive(false))
		v1.GET("/agents/:id/history", s.handleAgentHistory)
		v1.GET("/agents/:id/scorecard", s.handleScorecard)

		v1.GET("/inventory", s.handleInventory)
		v1.GET("/orders", s.handleOrders)
		v1.GET("/shipments", s.handleShipments)
		v1.GET("/metrics/summary", s.handleSummary)
	}
}

// Router returns the Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.domain.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "tick": s.clock.Status().CurrentTick})
}
