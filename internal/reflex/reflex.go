// Package reflex runs the autonomous corrective loop. Each tick it scans
// for critical sectors and, only when the activity gate is idle, repairs
// exactly one. Throttling to a single sector per tick keeps autonomous
// intervention observable one step at a time; remaining criticals are
// picked up by subsequent ticks.
package reflex

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"sentientgrid/internal/config"
	"sentientgrid/internal/eventlog"
	"sentientgrid/internal/gate"
	"sentientgrid/internal/registry"
)

// Loop is the autonomous healing reflex.
type Loop struct {
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticks   int64

	interval time.Duration
	cfg      *config.Store
	gate     *gate.Gate
	registry *registry.Registry
	elog     *eventlog.Log
	logger   *zap.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithInterval overrides the reflex period.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) { l.interval = d }
}

// New creates a reflex loop.
func New(cfg *config.Store, g *gate.Gate, reg *registry.Registry, elog *eventlog.Log, logger *zap.Logger, opts ...Option) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		interval: 15 * time.Second,
		cfg:      cfg,
		gate:     g,
		registry: reg,
		elog:     elog,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the reflex loop. No-op if already running.
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

	l.logger.Debug("reflex loop started", zap.Duration("interval", l.interval))

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

// Stop cancels the pending timer cleanly. An already-started heal is not
// aborted; only future ticks are suppressed.
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
	l.logger.Debug("reflex loop stopped")
}

func (l *Loop) tick() {
	l.mu.Lock()
	l.ticks++
	l.mu.Unlock()

	if l.cfg != nil && !l.cfg.AutoSyncEnabled() {
		return
	}

	criticals := l.registry.ListCritical()
	if len(criticals) == 0 || !l.gate.Idle() {
		return
	}

	target := criticals[0]
	l.elog.Appendf(eventlog.LevelThought, eventlog.SourceBrain, "[Reflex] Autonomous healing triggered for sector %s.", target.Name)
	if err := l.registry.Heal(target.Name); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			// The target came from a live snapshot; this cannot happen
			// unless the registry invariant is broken.
			l.elog.Appendf(eventlog.LevelError, eventlog.SourceSystem, "Reflex heal failed, registry invariant violated: %v", err)
		}
		l.logger.Error("reflex heal failed", zap.String("sector", target.Name), zap.Error(err))
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
