// Package registry holds the health records for the monitored asset fleet
// and implements sector repair. Healing is two observably distinct phases:
// the transition to healing is synchronous, restoration happens after a
// fixed repair latency. The healing status itself is the guard that keeps a
// concurrent reflex scan from double-triggering repair on an asset already
// mid-repair; no cross-asset lock exists.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"go.uber.org/zap"

	"sentientgrid/internal/eventlog"
	"sentientgrid/internal/types"
)

// ErrNotFound is returned when a heal target name is unknown.
var ErrNotFound = errors.New("sector not found")

const repairMargin = 2

// Registry is the in-memory asset fleet. Assets are created at startup (or
// ingested by the archive patrol) and never deleted during a session.
type Registry struct {
	mu     sync.Mutex
	assets map[string]*types.Asset
	order  []string

	repairLatency time.Duration
	inflight      sync.WaitGroup

	elog   *eventlog.Log
	logger *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithRepairLatency overrides the fixed repair latency. Tests use
// millisecond latencies.
func WithRepairLatency(d time.Duration) Option {
	return func(r *Registry) { r.repairLatency = d }
}

// New creates an empty registry.
func New(elog *eventlog.Log, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		assets:        make(map[string]*types.Asset),
		repairLatency: 2 * time.Second,
		elog:          elog,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SeedAssets returns the default fleet.
func SeedAssets() []types.Asset {
	return []types.Asset{
		{Name: "Neural Link", ReplicationFactor: 6, Threshold: 5},
		{Name: "Core Processor", ReplicationFactor: 2, Threshold: 5},
		{Name: "Teal Reactor", ReplicationFactor: 8, Threshold: 5},
		{Name: "Bio-Shield", ReplicationFactor: 4, Threshold: 5},
	}
}

// Seed loads assets into the registry, deriving each status from its
// replication factor. Existing entries with the same name are replaced.
func (r *Registry) Seed(assets []types.Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range assets {
		a := a
		a.Status = a.DeriveStatus()
		if _, exists := r.assets[a.Name]; !exists {
			r.order = append(r.order, a.Name)
		}
		r.assets[a.Name] = &a
	}
}

// Heal repairs a sector. Healing a sector that is not critical is a no-op
// that still succeeds and emits no repair narration. A critical sector
// transitions to healing immediately; after the repair latency it is
// restored to threshold+margin replication and marked healthy.
func (r *Registry) Heal(name string) error {
	r.mu.Lock()
	a, ok := r.assets[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if a.Status != types.AssetCritical {
		r.mu.Unlock()
		return nil
	}
	a.Status = types.AssetHealing
	r.mu.Unlock()

	r.elog.Appendf(eventlog.LevelWarning, eventlog.SourceLimbs, "Repairing sector %s...", name)

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		time.Sleep(r.repairLatency)

		r.mu.Lock()
		if a, ok := r.assets[name]; ok {
			a.ReplicationFactor = a.Threshold + repairMargin
			a.Status = types.AssetHealthy
		}
		r.mu.Unlock()

		r.elog.Appendf(eventlog.LevelSuccess, eventlog.SourceLimbs, "Sector %s integrity restored to 100%%.", name)
	}()
	return nil
}

// HealAllCritical snapshots the critical sectors and starts a heal on each
// concurrently. It returns the number of heals started; sectors that turn
// critical afterward are not included.
func (r *Registry) HealAllCritical() int {
	criticals := r.ListCritical()
	if len(criticals) == 0 {
		r.elog.Append(eventlog.LevelInfo, eventlog.SourceSystem, "Scan complete: No critical sectors detected.")
		return 0
	}

	var g errgroup.Group
	for _, c := range criticals {
		name := c.Name
		g.Go(func() error { return r.Heal(name) })
	}
	if err := g.Wait(); err != nil {
		// Targets come from a live snapshot; a miss here is a logic error.
		r.logger.Error("heal-all hit unknown sector", zap.Error(err))
	}
	return len(criticals)
}

// ListCritical returns the critical assets in fleet order. Snapshot
// semantics: the result does not track later mutations.
func (r *Registry) ListCritical() []types.Asset {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Asset
	for _, name := range r.order {
		if a := r.assets[name]; a.Status == types.AssetCritical {
			out = append(out, *a)
		}
	}
	return out
}

// List returns all assets in fleet order.
func (r *Registry) List() []types.Asset {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Asset, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.assets[name])
	}
	return out
}

// Get returns a copy of the named asset.
func (r *Registry) Get(name string) (types.Asset, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[name]
	if !ok {
		return types.Asset{}, false
	}
	return *a, true
}

// MarkDegraded records a total replication loss observed by the archive
// patrol. A sector mid-repair is left alone; the repair completion will
// re-derive its health.
func (r *Registry) MarkDegraded(name string) error {
	r.mu.Lock()
	a, ok := r.assets[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if a.Status == types.AssetHealing {
		r.mu.Unlock()
		return nil
	}
	a.ReplicationFactor = 0
	a.Status = types.AssetCritical
	r.mu.Unlock()

	r.elog.Appendf(eventlog.LevelWarning, eventlog.SourceSystem, "Replication gap detected in sector %s.", name)
	return nil
}

// Wait blocks until all in-flight repairs complete. Used by shutdown and
// tests; a started repair is never aborted.
func (r *Registry) Wait() {
	r.inflight.Wait()
}
