package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"waypoint/internal/api"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().Bool("start", false, "start the clock immediately")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the simulation clock",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if start, _ := cmd.Flags().GetBool("start"); start {
		cfg.Clock.AutoStart = true
	}
	logger := setupLogging(cfg, true)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.orch.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover unfinished actions: %w", err)
	}
	if rep.Interrupted > 0 {
		logger.Warn("actions were interrupted by the previous shutdown", "count", rep.Interrupted)
	}

	deps := api.Deps{
		Lifecycle:   a.orch,
		Clock:       a.clock,
		Agents:      a.registry,
		Domain:      a.store,
		Summary:     a.monitor,
		Hub:         a.hub,
		Logger:      logger.With("component", "api"),
		JWTSecret:   cfg.Auth.JWTSecret,
		BaseContext: ctx,
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = a.metrics.Registry()
		deps.MetricsPath = cfg.Metrics.Path
	}
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewServer(deps).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Clock.AutoStart {
		if err := a.clock.Start(ctx); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("waypoint started",
			"addr", cfg.Server.Addr,
			"db_driver", cfg.Database.Driver,
			"tick_interval", cfg.Clock.TickInterval,
			"llm_provider", cfg.LLM.Provider,
			"agents", len(a.registry.List()),
			"auth", cfg.Auth.JWTSecret != "",
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	a.clock.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("waypoint stopped", slog.Int64("tick", a.clock.CurrentTick()))
	return nil
}
