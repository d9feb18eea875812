// Package clock drives the simulation in discrete ticks.
package clock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrTickInProgress is returned when a step or reset is attempted while
	// another tick is running.
	ErrTickInProgress = errors.New("clock: tick in progress")

	// ErrAlreadyRunning is returned by Start on a running clock.
	ErrAlreadyRunning = errors.New("clock: already running")

	// ErrRunning is returned by Reset while the clock is running.
	ErrRunning = errors.New("clock: stop the clock before resetting")
)

// Ticker is the work performed on every tick.
type Ticker interface {
	RunTick(ctx context.Context, tick int64) error
}

// TickerFunc adapts a function to Ticker.
type TickerFunc func(ctx context.Context, tick int64) error

// RunTick calls f.
func (f TickerFunc) RunTick(ctx context.Context, tick int64) error {
	return f(ctx, tick)
}

// TickResult is passed to tick hooks after each step.
type TickResult struct {
	Tick     int64
	Duration time.Duration
	Err      error
}

// Status is a point-in-time view of the clock.
type Status struct {
	IsRunning      bool       `json:"is_running"`
	Stepping       bool       `json:"stepping"`
	CurrentTick    int64      `json:"current_tick"`
	TotalTicks     int64      `json:"total_ticks"`
	TickIntervalMS int64      `json:"tick_interval_ms"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	SimTime        time.Time  `json:"sim_time"`
	LastTickAt     *time.Time `json:"last_tick_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// Option configures a SimulationClock.
type Option func(*SimulationClock)

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *SimulationClock) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEpoch sets the simulated time at tick zero.
func WithEpoch(epoch time.Time) Option {
	return func(c *SimulationClock) {
		c.epoch = epoch
	}
}

// WithSimStep sets how much simulated time one tick represents.
func WithSimStep(d time.Duration) Option {
	return func(c *SimulationClock) {
		if d > 0 {
			c.simStep = d
		}
	}
}

// SimulationClock owns the tick counter. At most one tick runs at a time;
// a concurrent Step fails fast with ErrTickInProgress instead of queueing.
type SimulationClock struct {
	interval time.Duration
	simStep  time.Duration
	epoch    time.Time
	now      func() time.Time
	logger   *slog.Logger

	stepping atomic.Bool

	mu         sync.Mutex
	ticker     Ticker
	tick       int64
	total      int64
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	startedAt  *time.Time
	lastTickAt *time.Time
	lastError  string
	onReset    []func()
	onTick     []func(TickResult)
}

// New creates a stopped clock at tick zero. interval is the wall time
// between automatic ticks.
func New(interval time.Duration, logger *slog.Logger, opts ...Option) *SimulationClock {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	c := &SimulationClock{
		interval: interval,
		simStep:  time.Hour,
		epoch:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// SetTicker installs the work run on each tick.
func (c *SimulationClock) SetTicker(t Ticker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticker = t
}

// OnReset registers a hook run after every successful Reset.
func (c *SimulationClock) OnReset(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReset = append(c.onReset, fn)
}

// OnTick registers a hook run after every completed tick.
func (c *SimulationClock) OnTick(fn func(TickResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = append(c.onTick, fn)
}

// Start begins ticking every interval until Stop or until ctx is done.
func (c *SimulationClock) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	now := c.now().UTC()
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.startedAt = &now

	go c.loop(loopCtx, c.done)
	c.logger.Info("simulation clock started", "interval", c.interval, "tick", c.tick)
	return nil
}

func (c *SimulationClock) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.running = false
			c.startedAt = nil
			c.mu.Unlock()
			return
		case <-ticker.C:
			if _, err := c.Step(ctx); err != nil {
				c.logger.Debug("skipped scheduled tick", "error", err)
			}
		}
	}
}

// Stop halts automatic ticking and waits for an in-flight tick to return.
// Stopping a stopped clock is a no-op.
func (c *SimulationClock) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	c.running = false
	c.startedAt = nil
	c.mu.Unlock()
	c.logger.Info("simulation clock stopped", "tick", c.CurrentTick())
}

// Step advances the clock by one tick and runs the ticker. A ticker error
// is recorded in Status and handed to tick hooks; it is not returned.
func (c *SimulationClock) Step(ctx context.Context) (int64, error) {
	if !c.stepping.CompareAndSwap(false, true) {
		return 0, ErrTickInProgress
	}
	defer c.stepping.Store(false)

	c.mu.Lock()
	c.tick++
	tick := c.tick
	ticker := c.ticker
	c.mu.Unlock()

	start := c.now()
	var err error
	if ticker != nil {
		err = ticker.RunTick(ctx, tick)
	}
	elapsed := c.now().Sub(start)

	c.mu.Lock()
	at := c.now().UTC()
	c.lastTickAt = &at
	c.total++
	if err != nil {
		c.lastError = err.Error()
	} else {
		c.lastError = ""
	}
	hooks := append([]func(TickResult){}, c.onTick...)
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("tick failed", "tick", tick, "error", err)
	} else {
		c.logger.Debug("tick completed", "tick", tick, "duration", elapsed)
	}
	res := TickResult{Tick: tick, Duration: elapsed, Err: err}
	for _, fn := range hooks {
		fn(res)
	}
	return tick, nil
}

// Reset returns a stopped, idle clock to tick zero and runs reset hooks.
func (c *SimulationClock) Reset() error {
	if !c.stepping.CompareAndSwap(false, true) {
		return ErrTickInProgress
	}
	defer c.stepping.Store(false)

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrRunning
	}
	c.tick = 0
	c.lastTickAt = nil
	c.lastError = ""
	hooks := append([]func(){}, c.onReset...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	c.logger.Info("simulation clock reset")
	return nil
}

// CurrentTick returns the last tick started.
func (c *SimulationClock) CurrentTick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// SimTime returns the simulated time of the current tick.
func (c *SimulationClock) SimTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.simTimeLocked()
}

func (c *SimulationClock) simTimeLocked() time.Time {
	return c.epoch.Add(time.Duration(c.tick) * c.simStep)
}

// Status never waits for a running tick.
func (c *SimulationClock) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		IsRunning:      c.running,
		Stepping:       c.stepping.Load(),
		CurrentTick:    c.tick,
		TotalTicks:     c.total,
		TickIntervalMS: c.interval.Milliseconds(),
		StartedAt:      c.startedAt,
		SimTime:        c.simTimeLocked(),
		LastTickAt:     c.lastTickAt,
		LastError:      c.lastError,
	}
}
