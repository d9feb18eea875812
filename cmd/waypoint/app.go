package main

import (
	"context"
	"fmt"
	"log/slog"

	"waypoint/internal/agents"
	"waypoint/internal/api"
	"waypoint/internal/clock"
	"waypoint/internal/config"
	"waypoint/internal/database"
	"waypoint/internal/execution"
	"waypoint/internal/models"
	"waypoint/internal/monitoring"
	"waypoint/internal/orchestrator"
	"waypoint/internal/risk"
)

// app is the fully wired service shared by serve and the CLI subcommands.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *database.Store
	registry *agents.Registry
	orch     *orchestrator.Orchestrator
	clock    *clock.SimulationClock
	metrics  *monitoring.Metrics
	monitor  *monitoring.Monitor
	hub      *api.Hub
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := database.Open(cfg.Database.Driver, cfg.Database.DSN, logger.With("component", "database"))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, store: store}
	if err := a.wire(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	if err := a.store.Seed(ctx); err != nil {
		return err
	}

	a.registry = agents.NewRegistry(a.store, logger.With("component", "agents"))
	if err := a.registry.Load(ctx, cfg.AgentRoster()); err != nil {
		return err
	}

	classifier, err := risk.New(cfg.Risk, logger.With("component", "risk"))
	if err != nil {
		return err
	}

	proposer, err := buildProposer(cfg, logger)
	if err != nil {
		return err
	}

	a.metrics = monitoring.NewMetrics()
	a.monitor = monitoring.NewMonitor()
	a.hub = api.NewHub(logger.With("component", "ws"))

	a.orch, err = orchestrator.New(cfg.Orchestrator(), orchestrator.Deps{
		Store:      a.store,
		Registry:   a.registry,
		Proposer:   proposer,
		Classifier: classifier,
		Executor:   execution.NewDefaultRegistry(a.store),
		Observers:  []orchestrator.Observer{a.metrics, a.monitor, a.hub},
		Logger:     logger.With("component", "orchestrator"),
	})
	if err != nil {
		return err
	}

	a.clock = clock.New(cfg.Clock.TickInterval, logger.With("component", "clock"), clock.WithSimStep(cfg.Clock.SimStep))
	a.clock.SetTicker(a.orch)
	a.clock.OnReset(a.orch.ResetCaches)
	a.clock.OnTick(a.metrics.ObserveTick)
	a.clock.OnTick(a.monitor.RecordTick)
	a.clock.OnTick(a.hub.RecordTick)
	a.orch.SetTickSource(a.clock)

	counts, err := a.store.CountActionsByStatus(ctx)
	if err != nil {
		return err
	}
	a.metrics.SetPending(counts[models.StatusPendingApproval])
	return nil
}

// buildProposer picks the LLM proposer when a provider is configured, with
// the heuristics as its fallback, and the heuristics alone otherwise.
func buildProposer(cfg config.Config, logger *slog.Logger) (agents.Proposer, error) {
	heuristic := agents.NewHeuristic()
	completer, err := agents.NewCompleter(cfg.LLMSettings())
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	if completer == nil {
		logger.Info("no llm provider configured, using heuristic proposer")
		return heuristic, nil
	}
	logger.Info("using llm proposer", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	return agents.NewLLMProposer(completer, heuristic, logger.With("component", "llm")), nil
}

func (a *app) Close() error {
	a.clock.Stop()
	a.hub.Close()
	return a.store.Close()
}
