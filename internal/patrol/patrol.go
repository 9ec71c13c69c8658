// Package patrol implements the archive patrol: it loads the external
// inventory (asset name + content id), probes the public gateways for each
// item, and reports total replication failures to the registry so the
// reflex loop can repair them. The inventory file is watched and a change
// triggers a fresh patrol.
package patrol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sentientgrid/internal/eventlog"
	"sentientgrid/internal/registry"
)

// DefaultGateways are the public IPFS gateways probed in order; the first
// success wins.
var DefaultGateways = []string{
	"https://gateway.pinata.cloud/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://ipfs.io/ipfs/",
}

const probeConcurrency = 4

// Item is one archived asset in the inventory file.
type Item struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

// inventory is the on-disk metadata format.
type inventory struct {
	Items []Item `json:"items"`
}

// Patrol probes gateway availability for the archived inventory.
type Patrol struct {
	path     string
	gateways []string
	client   *http.Client

	registry *registry.Registry
	elog     *eventlog.Log
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a Patrol.
type Option func(*Patrol)

// WithGateways overrides the gateway list.
func WithGateways(gateways []string) Option {
	return func(p *Patrol) { p.gateways = gateways }
}

// WithProbeTimeout overrides the per-probe timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(p *Patrol) { p.client.Timeout = d }
}

// New creates a patrol over the given inventory file.
func New(path string, reg *registry.Registry, elog *eventlog.Log, logger *zap.Logger, opts ...Option) *Patrol {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Patrol{
		path:     path,
		gateways: DefaultGateways,
		client:   &http.Client{Timeout: 5 * time.Second},
		registry: reg,
		elog:     elog,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunOnce loads the inventory and probes every item. Items that fail on
// every gateway are reported to the registry as degraded; inventory names
// unknown to the registry only produce an alert entry.
func (p *Patrol) RunOnce(ctx context.Context) error {
	items, err := p.loadInventory()
	if err != nil {
		return err
	}

	p.elog.Append(eventlog.LevelInfo, eventlog.SourceSystem, "Starting archive patrol...")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for _, item := range items {
		item := item
		g.Go(func() error {
			p.probeItem(gctx, item)
			return nil
		})
	}
	return g.Wait()
}

func (p *Patrol) loadInventory() ([]Item, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	var inv inventory
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}
	return inv.Items, nil
}

func (p *Patrol) probeItem(ctx context.Context, item Item) {
	for _, gw := range p.gateways {
		if p.probe(ctx, gw+item.CID) {
			p.logger.Debug("archive item online", zap.String("item", item.Name), zap.String("gateway", gw))
			return
		}
	}

	p.elog.Appendf(eventlog.LevelWarning, eventlog.SourceSystem, "Archive gap detected: %s unreachable on all gateways.", item.Name)
	if _, ok := p.registry.Get(item.Name); ok {
		if err := p.registry.MarkDegraded(item.Name); err != nil {
			p.logger.Error("failed to mark degraded sector", zap.String("sector", item.Name), zap.Error(err))
		}
	}
}

func (p *Patrol) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Start watches the inventory file and re-patrols on change. Non-blocking;
// no-op if already running.
func (p *Patrol) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if err := watcher.Add(p.path); err != nil {
		watcher.Close()
		p.mu.Unlock()
		return fmt.Errorf("failed to watch inventory: %w", err)
	}

	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go func() {
		defer close(doneCh)
		defer watcher.Close()
		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := p.RunOnce(ctx); err != nil {
					p.logger.Warn("patrol run failed", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warn("inventory watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// Stop halts the watcher. No-op if not running.
func (p *Patrol) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	doneCh := p.doneCh
	p.mu.Unlock()

	<-doneCh
}

// Running reports whether the watcher is active.
func (p *Patrol) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
