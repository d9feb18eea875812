// Package config loads waypoint configuration from a YAML file, then
// applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"waypoint/internal/agents"
	"waypoint/internal/database"
	"waypoint/internal/models"
	"waypoint/internal/orchestrator"
	"waypoint/internal/risk"
)

// DefaultPath is where the CLI looks for a config file when none is given.
const DefaultPath = "configs/waypoint.yaml"

// Config holds all application configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Clock    ClockConfig    `yaml:"clock"`
	Agents   AgentsConfig   `yaml:"agents"`
	Risk     risk.Config    `yaml:"risk"`
	LLM      LLMConfig      `yaml:"llm"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the gorm dialect and connection string.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ClockConfig configures the simulation clock.
type ClockConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	SimStep      time.Duration `yaml:"sim_step"`
	AutoStart    bool          `yaml:"auto_start"`
}

// AgentsConfig configures agent activation.
type AgentsConfig struct {
	ProposalTimeout       time.Duration `yaml:"proposal_timeout"`
	ActivationConcurrency int           `yaml:"activation_concurrency"`
	Roster                []AgentConfig `yaml:"roster"`
}

// AgentConfig declares one agent. Active defaults to true.
type AgentConfig struct {
	ID     string `yaml:"id"`
	Type   string `yaml:"type"`
	Name   string `yaml:"name"`
	Active *bool  `yaml:"active"`
}

// LLMConfig selects the model behind agent proposals. An empty provider
// uses the built-in heuristics.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Endpoint    string  `yaml:"endpoint"`
	Deployment  string  `yaml:"deployment"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AuthConfig enables bearer-token auth on decision endpoints when the
// secret is set.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: database.DriverSQLite,
			DSN:    "waypoint.db",
		},
		Clock: ClockConfig{
			TickInterval: 5 * time.Second,
			SimStep:      time.Hour,
		},
		Agents: AgentsConfig{
			ProposalTimeout:       30 * time.Second,
			ActivationConcurrency: 1,
		},
		Risk: risk.DefaultConfig(),
		LLM: LLMConfig{
			Temperature: 0.2,
			MaxTokens:   512,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result. A missing file at DefaultPath is not
// an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = envStr("WAYPOINT_LOG_LEVEL", c.LogLevel)
	c.Server.Addr = envStr("WAYPOINT_ADDR", c.Server.Addr)

	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.Driver = database.DriverPostgres
		c.Database.DSN = url
	}
	c.Database.Driver = envStr("WAYPOINT_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = envStr("WAYPOINT_DB_DSN", c.Database.DSN)

	c.Clock.TickInterval = envDuration("WAYPOINT_TICK_INTERVAL", c.Clock.TickInterval)
	c.Clock.AutoStart = envBool("WAYPOINT_AUTO_START", c.Clock.AutoStart)
	c.Agents.ProposalTimeout = envDuration("WAYPOINT_PROPOSAL_TIMEOUT", c.Agents.ProposalTimeout)
	c.Agents.ActivationConcurrency = envInt("WAYPOINT_ACTIVATION_CONCURRENCY", c.Agents.ActivationConcurrency)

	c.LLM.Provider = envStr("WAYPOINT_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = envStr("WAYPOINT_LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = envStr("WAYPOINT_LLM_BASE_URL", c.LLM.BaseURL)
	switch c.LLM.Provider {
	case agents.ProviderAzureOpenAI:
		c.LLM.APIKey = envStr("AZURE_OPENAI_API_KEY", c.LLM.APIKey)
		c.LLM.Endpoint = envStr("AZURE_OPENAI_ENDPOINT", c.LLM.Endpoint)
		c.LLM.Deployment = envStr("AZURE_OPENAI_DEPLOYMENT", c.LLM.Deployment)
	case agents.ProviderGitHubModels:
		c.LLM.APIKey = envStr("GITHUB_TOKEN", c.LLM.APIKey)
	default:
		c.LLM.APIKey = envStr("OPENAI_API_KEY", c.LLM.APIKey)
	}

	c.Metrics.Enabled = envBool("WAYPOINT_METRICS_ENABLED", c.Metrics.Enabled)
	c.Auth.JWTSecret = envStr("WAYPOINT_JWT_SECRET", c.Auth.JWTSecret)
}

// Validate checks that the configuration can be used to start the service.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Database.Driver {
	case database.DriverSQLite, database.DriverPostgres:
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("config: database dsn is required")
	}
	if c.Clock.TickInterval <= 0 {
		return fmt.Errorf("config: clock.tick_interval must be positive")
	}
	if c.Clock.SimStep <= 0 {
		return fmt.Errorf("config: clock.sim_step must be positive")
	}
	if c.Agents.ProposalTimeout <= 0 {
		return fmt.Errorf("config: agents.proposal_timeout must be positive")
	}
	if c.Agents.ActivationConcurrency <= 0 {
		return fmt.Errorf("config: agents.activation_concurrency must be positive")
	}
	seen := make(map[string]bool, len(c.Agents.Roster))
	for _, a := range c.Agents.Roster {
		if a.ID == "" {
			return fmt.Errorf("config: agent roster entry without id")
		}
		if seen[a.ID] {
			return fmt.Errorf("config: duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
		if _, err := models.ParseAgentType(a.Type); err != nil {
			return fmt.Errorf("config: agent %s: %w", a.ID, err)
		}
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.LLM.Provider {
	case agents.ProviderNone, agents.ProviderOpenAI, agents.ProviderGitHubModels, agents.ProviderAzureOpenAI:
	default:
		return fmt.Errorf("config: unsupported llm provider %q", c.LLM.Provider)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("config: metrics.path must start with /")
	}
	return nil
}

// AgentRoster returns the configured agents, or the built-in roster when
// none are configured.
func (c Config) AgentRoster() []models.Agent {
	if len(c.Agents.Roster) == 0 {
		return agents.DefaultAgents()
	}
	out := make([]models.Agent, 0, len(c.Agents.Roster))
	for _, a := range c.Agents.Roster {
		active := true
		if a.Active != nil {
			active = *a.Active
		}
		name := a.Name
		if name == "" {
			name = a.ID
		}
		out = append(out, models.Agent{
			AgentID:   a.ID,
			AgentType: models.AgentType(a.Type),
			Name:      name,
			IsActive:  active,
		})
	}
	return out
}

// Orchestrator returns the orchestrator settings.
func (c Config) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		ProposalTimeout:       c.Agents.ProposalTimeout,
		ActivationConcurrency: c.Agents.ActivationConcurrency,
	}
}

// LLMSettings returns the provider settings in the form the agents
// package consumes.
func (c Config) LLMSettings() agents.LLMConfig {
	return agents.LLMConfig{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Endpoint:    c.LLM.Endpoint,
		Deployment:  c.LLM.Deployment,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
	}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	if out.LLM.APIKey != "" {
		out.LLM.APIKey = "***"
	}
	if out.Auth.JWTSecret != "" {
		out.Auth.JWTSecret = "***"
	}
	if out.Database.Driver == database.DriverPostgres && out.Database.DSN != "" {
		out.Database.DSN = "***"
	}
	return out
}

// ParseLevel maps a configured log level to slog.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", s)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
