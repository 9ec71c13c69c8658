// Package telemetry runs the low-risk metric drift loop. It never touches
// the activity gate: its mutations cannot conflict with agent work.
package telemetry

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"sentientgrid/internal/config"
)

// Trend indicates the direction of the last revenue tick.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendStable Trend = "stable"

	// TrendDown completes the wire vocabulary; the drift itself is
	// upward-only, so no tick currently produces it.
	TrendDown Trend = "down"
)

// Snapshot is a point-in-time view of the telemetry counters.
type Snapshot struct {
	Revenue      float64
	Nodes        int
	RevenueTrend Trend
}

const (
	seedRevenue   = 812.45
	seedNodes     = 16384
	driftChance   = 0.15
	driftIncrease = 0.01
)

// Loop applies a small probabilistic upward drift to the revenue counter on
// a fixed period. Start and Stop are idempotent; a stopped loop fires no
// further ticks and restarting never stacks a duplicate timer.
type Loop struct {
	mu       sync.Mutex
	revenue  float64
	nodes    int
	trend    Trend
	ticks    int64
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration
	rng      func() float64

	cfg    *config.Store
	logger *zap.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithInterval overrides the tick period.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) { l.interval = d }
}

// WithRand overrides the drift randomness source for deterministic tests.
func WithRand(fn func() float64) Option {
	return func(l *Loop) { l.rng = fn }
}

// New creates a telemetry loop seeded with the session baseline.
func New(cfg *config.Store, logger *zap.Logger, opts ...Option) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		revenue:  seedRevenue,
		nodes:    seedNodes,
		trend:    TrendStable,
		interval: 2500 * time.Millisecond,
		rng:      rand.Float64,
		cfg:      cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the drift loop. No-op if already running.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	stopCh, doneCh := l.stopCh, l.doneCh
	l.mu.Unlock()

	l.logger.Debug("telemetry loop started", zap.Duration("interval", l.interval))

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				l.tick()
			}
		}
	}()
}

// Stop cancels the pending timer cleanly. No further ticks occur after
// Stop returns. No-op if not running.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	doneCh := l.doneCh
	l.mu.Unlock()

	<-doneCh
	l.logger.Debug("telemetry loop stopped")
}

func (l *Loop) tick() {
	if l.cfg != nil && !l.cfg.AutoSyncEnabled() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks++
	if l.rng() > 1-driftChance {
		l.revenue += driftIncrease
		l.trend = TrendUp
	} else {
		l.trend = TrendStable
	}
}

// Running reports whether the loop is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Ticks returns the number of ticks fired since creation.
func (l *Loop) Ticks() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}

// Snapshot returns the current counters.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{Revenue: l.revenue, Nodes: l.nodes, RevenueTrend: l.trend}
}
