// Package dispatch turns free-text operator commands into safe, typed state
// mutations. Interpretation is delegated to the resolution uplink, which
// returns either narration or structured calls from a closed operation set;
// the dispatcher validates and executes the calls sequentially in the order
// received. Command processing is serialized by the activity gate and the
// gate always returns to idle afterward, success or failure.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sentientgrid/internal/config"
	"sentientgrid/internal/eventlog"
	"sentientgrid/internal/gate"
	"sentientgrid/internal/registry"
	"sentientgrid/internal/scout"
	"sentientgrid/internal/types"
)

// SystemInstruction steers the resolution uplink's interpretation of
// operator commands.
const SystemInstruction = "You are the Grid Agent Core. Parse user commands. If they want to change settings, repair things, or scout, use functions. Otherwise, respond concisely as a technical AI agent."

// Resolver interprets a free-text command into narration or structured calls.
// It must tolerate empty or missing text in the response.
type Resolver interface {
	Resolve(ctx context.Context, command string) (Resolution, error)
}

// Dispatcher routes resolved instructions to the registry, config store,
// and scouting orchestrator.
type Dispatcher struct {
	gate     *gate.Gate
	cfg      *config.Store
	registry *registry.Registry
	scout    *scout.Orchestrator
	resolver Resolver
	elog     *eventlog.Log
	logger   *zap.Logger
}

// New creates a dispatcher.
func New(g *gate.Gate, cfg *config.Store, reg *registry.Registry, sc *scout.Orchestrator,
	resolver Resolver, elog *eventlog.Log, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		gate:     g,
		cfg:      cfg,
		registry: reg,
		scout:    sc,
		resolver: resolver,
		elog:     elog,
		logger:   logger,
	}
}

// Execute processes one operator command. It returns gate.ErrBusy without
// side effects if the agent is not idle.
func (d *Dispatcher) Execute(ctx context.Context, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}

	if err := d.gate.Acquire(types.StateThinking); err != nil {
		return err
	}
	held := true
	release := func() {
		if held {
			d.gate.Release()
			held = false
		}
	}
	defer release()

	d.elog.Appendf(eventlog.LevelInfo, eventlog.SourceSystem, "> %s", command)

	res, err := d.resolver.Resolve(ctx, command)
	if err != nil {
		d.gate.Fail()
		d.elog.Append(eventlog.LevelError, eventlog.SourceSystem, "Neural uplink malfunction.")
		d.gate.Release()
		held = false
		return fmt.Errorf("command resolution: %w", err)
	}

	if len(res.Calls) == 0 {
		narration := strings.TrimSpace(res.Narration)
		if narration == "" {
			narration = "Command processed."
		}
		d.elog.Append(eventlog.LevelThought, eventlog.SourceBrain, narration)
		return nil
	}

	for _, call := range res.Calls {
		op, err := decodeCall(call)
		if err != nil {
			d.elog.Appendf(eventlog.LevelError, eventlog.SourceSystem, "Rejected instruction: %v", err)
			continue
		}
		d.executeOp(ctx, op, release)
		d.elog.Appendf(eventlog.LevelSuccess, eventlog.SourceReflection, "Function executed: %s", op.fnName())
	}
	return nil
}

// executeOp applies one validated operation. The scouting orchestrator owns
// the gate for its own cycle, so the dispatcher's hold is released before
// the cycle starts.
func (d *Dispatcher) executeOp(ctx context.Context, op Operation, release func()) {
	switch op := op.(type) {
	case UpdateConfigOp:
		applied := d.cfg.Apply(op.Update)
		if len(applied) > 0 {
			// Only the first supplied field is narrated; a multi-field
			// update still produces exactly one line.
			first := applied[0]
			d.elog.Appendf(eventlog.LevelSuccess, eventlog.SourceBrain,
				"System recalibrated: %s modified to %v", strings.ToUpper(first.Name), first.Value)
		}
	case TriggerScoutOp:
		release()
		if _, err := d.scout.Run(ctx, op.Focus); err != nil {
			if errors.Is(err, gate.ErrBusy) {
				d.elog.Append(eventlog.LevelWarning, eventlog.SourceSystem, "Scout rejected: agent busy.")
			}
			// Other failures are already narrated by the orchestrator.
			d.logger.Warn("dispatched scout cycle failed", zap.Error(err))
		}
	case HealSectorOp:
		if op.Sector == "" {
			d.registry.HealAllCritical()
			return
		}
		if err := d.registry.Heal(op.Sector); err != nil {
			// Non-fatal for a manual heal target.
			d.elog.Appendf(eventlog.LevelError, eventlog.SourceSystem, "Sector %s not found.", op.Sector)
			d.logger.Warn("manual heal failed", zap.String("sector", op.Sector), zap.Error(err))
		}
	}
}
