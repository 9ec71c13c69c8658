package oracle

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sentientgrid/internal/eventlog"
	"sentientgrid/internal/types"
)

type mockConsultant struct {
	consultFn func(ctx context.Context, prompt string) (string, []types.GroundingSource, error)
	prompts   []string
}

func (m *mockConsultant) Consult(ctx context.Context, prompt string) (string, []types.GroundingSource, error) {
	m.prompts = append(m.prompts, prompt)
	if m.consultFn != nil {
		return m.consultFn(ctx, prompt)
	}
	return "Neon assets are trending up.", []types.GroundingSource{
		{Title: "Market Watch", URI: "https://example.com/market"},
	}, nil
}

func messages(elog *eventlog.Log) []string {
	var out []string
	for _, e := range elog.Snapshot() {
		out = append(out, e.Message)
	}
	return out
}

func TestConsultSuccess(t *testing.T) {
	elog := eventlog.New(nil)
	o := New(&mockConsultant{}, elog, nil)

	analysis, err := o.Consult(context.Background(), "what sells in 2025?")
	if err != nil {
		t.Fatalf("consult failed: %v", err)
	}
	if analysis != "Neon assets are trending up." {
		t.Errorf("analysis = %q", analysis)
	}

	sources := o.Sources()
	if len(sources) != 1 || sources[0].Title != "Market Watch" {
		t.Errorf("sources = %v", sources)
	}

	msgs := messages(elog)
	if len(msgs) != 2 {
		t.Fatalf("narration = %v, want 2 entries", msgs)
	}
	if !strings.Contains(msgs[0], "Strategic consult: what sells in 2025?") {
		t.Errorf("first entry = %q", msgs[0])
	}
	if msgs[1] != "Neon assets are trending up." {
		t.Errorf("second entry = %q", msgs[1])
	}
}

func TestConsultEmptyPrompt(t *testing.T) {
	o := New(&mockConsultant{}, eventlog.New(nil), nil)

	if _, err := o.Consult(context.Background(), "  "); err == nil {
		t.Error("empty prompt should fail")
	}
}

func TestConsultFailure(t *testing.T) {
	elog := eventlog.New(nil)
	c := &mockConsultant{consultFn: func(context.Context, string) (string, []types.GroundingSource, error) {
		return "", nil, errors.New("search backend down")
	}}
	o := New(c, elog, nil)

	if _, err := o.Consult(context.Background(), "anything?"); err == nil {
		t.Fatal("consult should fail")
	}
	found := false
	for _, m := range messages(elog) {
		if m == "Oracle connection unstable." {
			found = true
		}
	}
	if !found {
		t.Errorf("narration = %v, want the unstable-connection entry", messages(elog))
	}
	if o.Active() {
		t.Error("oracle should not stay active after a failure")
	}
}

func TestConsultEmptyAnalysisPlaceholder(t *testing.T) {
	c := &mockConsultant{consultFn: func(context.Context, string) (string, []types.GroundingSource, error) {
		return "  ", nil, nil
	}}
	o := New(c, eventlog.New(nil), nil)

	analysis, err := o.Consult(context.Background(), "quiet question")
	if err != nil {
		t.Fatalf("consult failed: %v", err)
	}
	if analysis != "Analysis synthesized." {
		t.Errorf("analysis = %q, want the placeholder", analysis)
	}
}

func TestSecondConsultRejectedWhileActive(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	c := &mockConsultant{consultFn: func(context.Context, string) (string, []types.GroundingSource, error) {
		close(entered)
		<-release
		return "done", nil, nil
	}}
	o := New(c, eventlog.New(nil), nil)

	done := make(chan error, 1)
	go func() {
		_, err := o.Consult(context.Background(), "slow question")
		done <- err
	}()
	<-entered

	if _, err := o.Consult(context.Background(), "impatient question"); !errors.Is(err, ErrConsultActive) {
		t.Errorf("error = %v, want ErrConsultActive", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first consult failed: %v", err)
	}
}

func TestSourcesKeptFromLastSuccess(t *testing.T) {
	c := &mockConsultant{}
	o := New(c, eventlog.New(nil), nil)

	if _, err := o.Consult(context.Background(), "first"); err != nil {
		t.Fatalf("consult failed: %v", err)
	}

	// A later failure leaves the previous sources intact.
	c.consultFn = func(context.Context, string) (string, []types.GroundingSource, error) {
		return "", nil, errors.New("flaky")
	}
	o.Consult(context.Background(), "second")

	if sources := o.Sources(); len(sources) != 1 {
		t.Errorf("sources = %v, want the first consult's source retained", sources)
	}
}
