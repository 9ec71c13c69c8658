package scout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sentientgrid/internal/catalog"
	"sentientgrid/internal/config"
	"sentientgrid/internal/eventlog"
	"sentientgrid/internal/gate"
	"sentientgrid/internal/types"
)

type mockUplink struct {
	mu           sync.Mutex
	trendFn      func(ctx context.Context, prompt string) (string, error)
	imageFn      func(ctx context.Context, prompt string) (string, error)
	videoFn      func(ctx context.Context, prompt string) (VideoJob, error)
	trendPrompts []string
}

func (m *mockUplink) DiscoverTrend(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.trendPrompts = append(m.trendPrompts, prompt)
	m.mu.Unlock()
	if m.trendFn != nil {
		return m.trendFn(ctx, prompt)
	}
	return "Quantum Mesh", nil
}

func (m *mockUplink) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if m.imageFn != nil {
		return m.imageFn(ctx, prompt)
	}
	return "data:image/png;base64,stub", nil
}

func (m *mockUplink) SubmitVideo(ctx context.Context, prompt string) (VideoJob, error) {
	if m.videoFn != nil {
		return m.videoFn(ctx, prompt)
	}
	return &mockJob{doneAfter: 1}, nil
}

type mockJob struct {
	mu        sync.Mutex
	polls     int
	doneAfter int
	err       error
}

func (j *mockJob) Poll(ctx context.Context) (bool, string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.polls++
	if j.err != nil {
		return false, "", j.err
	}
	if j.doneAfter > 0 && j.polls >= j.doneAfter {
		return true, "https://holo.example/video.mp4", nil
	}
	return false, "", nil
}

type fixture struct {
	gate    *gate.Gate
	cfg     *config.Store
	catalog *catalog.Catalog
	elog    *eventlog.Log
	uplink  *mockUplink
	scout   *Orchestrator
}

func newFixture(t *testing.T, holo bool, opts ...Option) *fixture {
	t.Helper()
	rc := config.DefaultConfig().Runtime
	rc.HoloScout = holo
	cfg := config.NewStore(rc)

	g := gate.New()
	cat := catalog.New()
	cat.Seed(catalog.SeedDeals())
	elog := eventlog.New(nil)
	up := &mockUplink{}

	base := []Option{
		WithPollInterval(time.Millisecond),
		WithRand(func() float64 { return 0.5 }),
	}
	return &fixture{
		gate:    g,
		cfg:     cfg,
		catalog: cat,
		elog:    elog,
		uplink:  up,
		scout:   New(g, cfg, cat, elog, nil, up, up, up, append(base, opts...)...),
	}
}

func messages(elog *eventlog.Log) []string {
	var out []string
	for _, e := range elog.Snapshot() {
		out = append(out, e.Message)
	}
	return out
}

func TestImageCycle(t *testing.T) {
	f := newFixture(t, false)

	deal, err := f.scout.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if deal.Title != "CORE UNIT 4" {
		t.Errorf("title = %s, want CORE UNIT 4", deal.Title)
	}
	if deal.AssetLabel != "Quantum MK-I" {
		t.Errorf("label = %s, want Quantum MK-I", deal.AssetLabel)
	}
	if deal.Status != types.DealPending {
		t.Errorf("status = %s, want Pending", deal.Status)
	}
	if deal.Price < 0.45 || deal.Price > 0.65 {
		t.Errorf("price = %v, want within [0.45, 0.65]", deal.Price)
	}
	if deal.MarketTrend != "Quantum Mesh" {
		t.Errorf("trend = %s", deal.MarketTrend)
	}

	// The new deal is the most recent catalog entry.
	if got := f.catalog.Snapshot()[0].ID; got != deal.ID {
		t.Errorf("catalog head = %s, want %s", got, deal.ID)
	}

	if !f.gate.Idle() {
		t.Error("gate should be idle after a successful cycle")
	}
	if got := f.scout.Progress(); got != 100 {
		t.Errorf("progress = %d, want 100", got)
	}

	msgs := messages(f.elog)
	want := []string{
		"Initiating autonomous scout cycle...",
		"Deep-scanning market vectors...",
		"Drafting high-fidelity static mesh...",
		"Scout cycle successful. Asset logged to catalog.",
	}
	if len(msgs) != len(want) {
		t.Fatalf("narration = %v, want %v", msgs, want)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("narration[%d] = %q, want %q", i, msgs[i], want[i])
		}
	}
}

func TestDefaultPromptWhenNoFocus(t *testing.T) {
	f := newFixture(t, false)

	if _, err := f.scout.Run(context.Background(), "  "); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := f.uplink.trendPrompts[0]; got != DefaultTrendPrompt {
		t.Errorf("prompt = %q, want the default trend prompt", got)
	}
}

func TestFocusOverridesPrompt(t *testing.T) {
	f := newFixture(t, false)

	if _, err := f.scout.Run(context.Background(), "retro synthwave props"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := f.uplink.trendPrompts[0]; got != "retro synthwave props" {
		t.Errorf("prompt = %q, want the operator focus", got)
	}
}

func TestEmptyTrendFallsBack(t *testing.T) {
	f := newFixture(t, false)
	f.uplink.trendFn = func(context.Context, string) (string, error) { return "  ", nil }

	deal, err := f.scout.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if deal.MarketTrend != "Neon Artifact" {
		t.Errorf("trend = %s, want Neon Artifact fallback", deal.MarketTrend)
	}
	if deal.AssetLabel != "Neon MK-I" {
		t.Errorf("label = %s, want Neon MK-I", deal.AssetLabel)
	}
}

func TestSecondCycleRejectedWhileRunning(t *testing.T) {
	f := newFixture(t, false)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.uplink.imageFn = func(context.Context, string) (string, error) {
		close(entered)
		<-release
		return "ref", nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.scout.Run(context.Background(), "")
		done <- err
	}()
	<-entered

	_, err := f.scout.Run(context.Background(), "")
	if !errors.Is(err, gate.ErrBusy) {
		t.Errorf("second run error = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// Exactly one deal was added on top of the three seeded.
	if got := f.catalog.Len(); got != 4 {
		t.Errorf("catalog len = %d, want 4", got)
	}
}

func TestFailureReleasesGateAndResetsProgress(t *testing.T) {
	f := newFixture(t, false)
	f.uplink.trendFn = func(context.Context, string) (string, error) {
		return "", errors.New("uplink down")
	}

	_, err := f.scout.Run(context.Background(), "")
	if err == nil {
		t.Fatal("run should fail")
	}

	if !f.gate.Idle() {
		t.Error("gate should be idle after a failed cycle")
	}
	if got := f.scout.Progress(); got != 0 {
		t.Errorf("progress = %d, want 0", got)
	}
	if got := f.catalog.Len(); got != 3 {
		t.Errorf("catalog len = %d, want 3 (no deal on failure)", got)
	}

	failures := 0
	for _, m := range messages(f.elog) {
		if strings.HasPrefix(m, "Cycle failed:") {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("failure narrations = %d, want exactly 1", failures)
	}
}

func TestHoloCycle(t *testing.T) {
	f := newFixture(t, true)
	job := &mockJob{doneAfter: 3}
	f.uplink.videoFn = func(context.Context, string) (VideoJob, error) { return job, nil }

	deal, err := f.scout.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if deal.Title != "HOLO-SYNC 4" {
		t.Errorf("title = %s, want HOLO-SYNC 4", deal.Title)
	}
	if deal.AssetLabel != "Quantum VOID" {
		t.Errorf("label = %s, want Quantum VOID", deal.AssetLabel)
	}
	if deal.Price < 1.50 || deal.Price > 2.00 {
		t.Errorf("price = %v, want within [1.50, 2.00]", deal.Price)
	}
	if deal.PreviewRef != "https://holo.example/video.mp4" {
		t.Errorf("preview = %s", deal.PreviewRef)
	}
	if job.polls != 3 {
		t.Errorf("polls = %d, want 3", job.polls)
	}
	if !f.gate.Idle() {
		t.Error("gate should be idle after the cycle")
	}
}

// samplingJob records the orchestrator progress at each poll. Polls happen
// synchronously on the cycle goroutine, so sampling here is race-free.
type samplingJob struct {
	scout     *Orchestrator
	polls     int
	doneAfter int
	samples   []int
}

func (j *samplingJob) Poll(ctx context.Context) (bool, string, error) {
	j.polls++
	j.samples = append(j.samples, j.scout.Progress())
	return j.polls >= j.doneAfter, "ref", nil
}

func TestHoloPollProgressNeverExceedsCap(t *testing.T) {
	// The poll phase starts from 45 and bumps by 5 per attempt, so 40
	// attempts would overshoot without the cap.
	f := newFixture(t, true, WithMaxPollAttempts(40))
	job := &samplingJob{scout: f.scout, doneAfter: 40}
	f.uplink.videoFn = func(context.Context, string) (VideoJob, error) { return job, nil }

	if _, err := f.scout.Run(context.Background(), ""); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if job.polls != 40 {
		t.Errorf("polls = %d, want 40", job.polls)
	}
	last := job.samples[len(job.samples)-1]
	if last != 90 {
		t.Errorf("progress at final poll = %d, want pinned at 90", last)
	}
	for i, p := range job.samples {
		if p > 90 {
			t.Errorf("poll %d saw progress %d, cap is 90", i, p)
		}
	}
}

func TestCycle_HoloPollTimeout(t *testing.T) {
	f := newFixture(t, true, WithMaxPollAttempts(4))
	job := &mockJob{} // never completes
	f.uplink.videoFn = func(context.Context, string) (VideoJob, error) { return job, nil }

	_, err := f.scout.Run(context.Background(), "")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if job.polls != 4 {
		t.Errorf("polls = %d, want the full budget of 4", job.polls)
	}
	if !f.gate.Idle() {
		t.Error("gate should be idle after timeout")
	}
	if got := f.catalog.Len(); got != 3 {
		t.Errorf("catalog len = %d, want 3", got)
	}
}

func TestHoloPollContextCancel(t *testing.T) {
	f := newFixture(t, true, WithPollInterval(50*time.Millisecond))
	job := &mockJob{}
	f.uplink.videoFn = func(context.Context, string) (VideoJob, error) { return job, nil }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := f.scout.Run(ctx, "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if !f.gate.Idle() {
		t.Error("gate should be idle after cancellation")
	}
}

func TestProgressResetAtNextAcquire(t *testing.T) {
	f := newFixture(t, false)

	if _, err := f.scout.Run(context.Background(), ""); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := f.scout.Progress(); got != 100 {
		t.Fatalf("progress = %d, want 100", got)
	}

	f.scout.ResetProgress()
	if got := f.scout.Progress(); got != 0 {
		t.Errorf("progress = %d, want 0 after reset", got)
	}
}
