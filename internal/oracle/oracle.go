// Package oracle provides the one-shot strategic consult: a grounded
// market question answered with web sources attached. Consults are advisory
// and do not touch the activity gate; they carry their own busy flag so a
// consult in flight simply refuses a second one.
package oracle

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"sentientgrid/internal/eventlog"
	"sentientgrid/internal/types"
)

// SystemInstruction steers the consult uplink.
const SystemInstruction = "You are the Strategic Oracle. Provide 2025 market insights grounded in search data."

// ErrConsultActive is returned when a consult is already in flight.
var ErrConsultActive = errors.New("consult already in flight")

// Consultant answers a grounded market question with its web sources.
type Consultant interface {
	Consult(ctx context.Context, prompt string) (analysis string, sources []types.GroundingSource, err error)
}

// Oracle runs strategic consults and retains the last set of sources.
type Oracle struct {
	mu      sync.Mutex
	active  bool
	sources []types.GroundingSource

	consultant Consultant
	elog       *eventlog.Log
	logger     *zap.Logger
}

// New creates an oracle.
func New(consultant Consultant, elog *eventlog.Log, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		consultant: consultant,
		elog:       elog,
		logger:     logger,
	}
}

// Consult runs one grounded consult and returns the analysis text.
func (o *Oracle) Consult(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("empty consult prompt")
	}

	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return "", ErrConsultActive
	}
	o.active = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.active = false
		o.mu.Unlock()
	}()

	o.elog.Appendf(eventlog.LevelInfo, eventlog.SourceSystem, "Strategic consult: %s", prompt)

	analysis, sources, err := o.consultant.Consult(ctx, prompt)
	if err != nil {
		o.elog.Append(eventlog.LevelError, eventlog.SourceSystem, "Oracle connection unstable.")
		return "", err
	}

	o.mu.Lock()
	o.sources = sources
	o.mu.Unlock()

	analysis = strings.TrimSpace(analysis)
	if analysis == "" {
		analysis = "Analysis synthesized."
	}
	o.elog.Append(eventlog.LevelSuccess, eventlog.SourceReflection, analysis)
	return analysis, nil
}

// Sources returns the grounding sources from the last successful consult.
func (o *Oracle) Sources() []types.GroundingSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]types.GroundingSource, len(o.sources))
	copy(out, o.sources)
	return out
}

// Active reports whether a consult is in flight.
func (o *Oracle) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}
