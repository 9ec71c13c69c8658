// Package scout implements the multi-phase acquisition pipeline. A cycle
// discovers a market trend through the grounded search uplink, renders a
// preview artifact (a single image, or a long-running video job awaited
// through a bounded poll loop), and catalogues exactly one new deal. At
// most one cycle is ever in flight; the activity gate is the sole
// concurrency control.
package scout

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"sentientgrid/internal/catalog"
	"sentientgrid/internal/config"
	"sentientgrid/internal/eventlog"
	"sentientgrid/internal/gate"
	"sentientgrid/internal/types"
)

// ErrTimeout is returned when a video job does not complete within the
// configured poll budget.
var ErrTimeout = errors.New("holo generation timed out")

// DefaultTrendPrompt is used when no operator focus is supplied.
const DefaultTrendPrompt = "Identify top 2025 game asset trends for neon-cyberpunk visuals."

const defaultTrend = "Neon Artifact"

// TrendResolver discovers a short trend label via the grounded search uplink.
type TrendResolver interface {
	DiscoverTrend(ctx context.Context, prompt string) (string, error)
}

// ImageGenerator produces a preview artifact reference synchronously.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// VideoJob is a long-running generation job awaited by polling.
type VideoJob interface {
	Poll(ctx context.Context) (done bool, resultRef string, err error)
}

// VideoGenerator submits a long-running video generation job.
type VideoGenerator interface {
	SubmitVideo(ctx context.Context, prompt string) (VideoJob, error)
}

const (
	phaseStarted   = 5
	phaseSearching = 20
	phaseResolved  = 45
	pollCap        = 90
	pollStep       = 5
)

// Orchestrator runs scouting cycles.
type Orchestrator struct {
	gate    *gate.Gate
	cfg     *config.Store
	catalog *catalog.Catalog
	elog    *eventlog.Log
	logger  *zap.Logger

	trends TrendResolver
	images ImageGenerator
	videos VideoGenerator

	pollInterval    time.Duration
	maxPollAttempts int
	rng             func() float64

	mu       sync.Mutex
	progress int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPollInterval overrides the video poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

// WithMaxPollAttempts overrides the poll budget.
func WithMaxPollAttempts(n int) Option {
	return func(o *Orchestrator) { o.maxPollAttempts = n }
}

// WithRand overrides the price jitter source for deterministic tests.
func WithRand(fn func() float64) Option {
	return func(o *Orchestrator) { o.rng = fn }
}

// New creates a scouting orchestrator.
func New(g *gate.Gate, cfg *config.Store, cat *catalog.Catalog, elog *eventlog.Log, logger *zap.Logger,
	trends TrendResolver, images ImageGenerator, videos VideoGenerator, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		gate:            g,
		cfg:             cfg,
		catalog:         cat,
		elog:            elog,
		logger:          logger,
		trends:          trends,
		images:          images,
		videos:          videos,
		pollInterval:    8 * time.Second,
		maxPollAttempts: 22,
		rng:             rand.Float64,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Progress returns the current cycle progress percentage (0 when no cycle
// is active or a finished cycle has been acknowledged).
func (o *Orchestrator) Progress() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// ResetProgress clears a finished cycle's progress. A new cycle also clears
// it at acquire time, so stale progress can never leak into the next run.
func (o *Orchestrator) ResetProgress() {
	o.setProgress(0)
}

func (o *Orchestrator) setProgress(p int) {
	o.mu.Lock()
	o.progress = p
	o.mu.Unlock()
}

func (o *Orchestrator) bumpProgress(step, cap int) {
	o.mu.Lock()
	if o.progress+step <= cap {
		o.progress += step
	} else {
		o.progress = cap
	}
	o.mu.Unlock()
}

// Run executes one scouting cycle. The optional focus text overrides the
// trend-discovery prompt. It returns gate.ErrBusy without side effects if
// any agent operation is already in flight, and the created deal on success.
func (o *Orchestrator) Run(ctx context.Context, focus string) (types.Deal, error) {
	if err := o.gate.Acquire(types.StateThinking); err != nil {
		return types.Deal{}, err
	}
	o.setProgress(phaseStarted)
	o.elog.Append(eventlog.LevelInfo, eventlog.SourceSystem, "Initiating autonomous scout cycle...")

	deal, err := o.run(ctx, focus)
	if err != nil {
		o.gate.Fail()
		o.elog.Appendf(eventlog.LevelError, eventlog.SourceSystem, "Cycle failed: %v", err)
		o.gate.Release()
		o.setProgress(0)
		return types.Deal{}, err
	}

	o.setProgress(100)
	o.gate.Release()
	o.elog.Append(eventlog.LevelSuccess, eventlog.SourceSystem, "Scout cycle successful. Asset logged to catalog.")
	return deal, nil
}

func (o *Orchestrator) run(ctx context.Context, focus string) (types.Deal, error) {
	o.setProgress(phaseSearching)
	o.elog.Append(eventlog.LevelSearch, eventlog.SourceSearch, "Deep-scanning market vectors...")

	prompt := strings.TrimSpace(focus)
	if prompt == "" {
		prompt = DefaultTrendPrompt
	}
	trend, err := o.trends.DiscoverTrend(ctx, prompt)
	if err != nil {
		return types.Deal{}, fmt.Errorf("trend discovery: %w", err)
	}
	trend = strings.TrimSpace(trend)
	if trend == "" {
		trend = defaultTrend
	}
	o.setProgress(phaseResolved)

	if o.cfg.HoloScoutEnabled() {
		return o.runHolo(ctx, trend)
	}
	return o.runImage(ctx, trend)
}

func (o *Orchestrator) runImage(ctx context.Context, trend string) (types.Deal, error) {
	o.elog.Append(eventlog.LevelInfo, eventlog.SourceLimbs, "Drafting high-fidelity static mesh...")

	ref, err := o.images.GenerateImage(ctx, fmt.Sprintf("A futuristic 3D %s asset, neon teal and emerald colors.", trend))
	if err != nil {
		return types.Deal{}, fmt.Errorf("image generation: %w", err)
	}

	deal := o.catalog.Prepend(types.Deal{
		Title:       fmt.Sprintf("CORE UNIT %d", o.catalog.Len()+1),
		AssetLabel:  firstWord(trend) + " MK-I",
		Price:       0.45 + o.rng()*0.2,
		Status:      types.DealPending,
		PreviewRef:  ref,
		MarketTrend: trend,
	})
	return deal, nil
}

func (o *Orchestrator) runHolo(ctx context.Context, trend string) (types.Deal, error) {
	o.elog.Append(eventlog.LevelInfo, eventlog.SourceLimbs, "Compiling holographic motion data...")
	if err := o.gate.Advance(types.StateThinking, types.StateExecuting); err != nil {
		return types.Deal{}, err
	}

	job, err := o.videos.SubmitVideo(ctx, fmt.Sprintf("A 3D hologram of a %s game item, teal energy glowing, dark cyberpunk background.", trend))
	if err != nil {
		return types.Deal{}, fmt.Errorf("holo submission: %w", err)
	}

	ref, err := o.awaitVideo(ctx, job)
	if err != nil {
		return types.Deal{}, err
	}

	deal := o.catalog.Prepend(types.Deal{
		Title:       fmt.Sprintf("HOLO-SYNC %d", o.catalog.Len()+1),
		AssetLabel:  firstWord(trend) + " VOID",
		Price:       1.50 + o.rng()*0.5,
		Status:      types.DealPending,
		PreviewRef:  ref,
		MarketTrend: trend,
	})
	return deal, nil
}

// awaitVideo polls the job on a fixed interval, advancing progress by a
// bounded step each iteration and never past the poll cap. Exceeding the
// attempt budget is a Timeout failure.
func (o *Orchestrator) awaitVideo(ctx context.Context, job VideoJob) (string, error) {
	for attempt := 0; attempt < o.maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("holo poll: %w", ctx.Err())
		case <-time.After(o.pollInterval):
		}

		done, ref, err := job.Poll(ctx)
		if err != nil {
			return "", fmt.Errorf("holo poll: %w", err)
		}
		o.bumpProgress(pollStep, pollCap)
		if done {
			return ref, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrTimeout, o.maxPollAttempts)
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	return fields[0]
}
