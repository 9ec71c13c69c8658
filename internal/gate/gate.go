// Package gate implements the single global activity gate that serializes
// agent-initiated work. Acquisition is a non-blocking test-and-set from
// Idle: an acquisition attempt while any operation is in flight is refused,
// never queued. Overlapping agent actions are a backpressure error by policy.
package gate

import (
	"errors"
	"fmt"
	"sync"

	"sentientgrid/internal/types"
)

// ErrBusy is returned when an exclusive operation is requested while the
// agent is not idle. The rejected operation never started and had no side
// effects.
var ErrBusy = errors.New("agent busy")

// Gate is the global agent activity state machine.
type Gate struct {
	mu    sync.Mutex
	state types.AgentState
}

// New returns a gate in the Idle state.
func New() *Gate {
	return &Gate{state: types.StateIdle}
}

// State returns the current agent state.
func (g *Gate) State() types.AgentState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Acquire attempts the Idle -> to transition. It returns ErrBusy if the gate
// is not idle; the check and the commit are a single atomic step, so two
// concurrent initiators can never both pass.
func (g *Gate) Acquire(to types.AgentState) error {
	if !to.IsBusy() {
		return fmt.Errorf("cannot acquire gate into %s", to)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != types.StateIdle {
		return fmt.Errorf("%w: agent is %s", ErrBusy, g.state)
	}
	g.state = to
	return nil
}

// Advance moves between busy states (e.g. Thinking -> Executing when a
// long-running generation begins). It is a no-op error if the gate is not
// in the expected state.
func (g *Gate) Advance(from, to types.AgentState) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != from {
		return fmt.Errorf("gate is %s, expected %s", g.state, from)
	}
	g.state = to
	return nil
}

// Release returns the gate to Idle from any state. The loop always comes
// back here; Error is not sticky.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = types.StateIdle
}

// Fail marks the last operation as failed. The caller logs the failure and
// then calls Release; the Error state is observable between the two.
func (g *Gate) Fail() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = types.StateError
}

// Idle reports whether the gate is currently idle.
func (g *Gate) Idle() bool {
	return g.State() == types.StateIdle
}
