package dispatch

import (
	"fmt"

	"sentientgrid/internal/config"
)

// Function names in the closed control set. These are the wire names the
// resolution uplink is declared with; anything else is rejected at decode.
const (
	FnUpdateConfig = "update_system_config"
	FnTriggerScout = "trigger_scout"
	FnHealSector   = "heal_sector"
)

// Call is one structured instruction returned by the resolution uplink.
type Call struct {
	Name string
	Args map[string]interface{}
}

// Resolution is the outcome of resolving a free-text command: either plain
// narration, or zero or more structured calls to execute in order.
type Resolution struct {
	Narration string
	Calls     []Call
}

// Operation is a validated, typed instruction. The variant set is closed.
type Operation interface {
	fnName() string
}

// UpdateConfigOp merges the supplied fields into the runtime config.
type UpdateConfigOp struct {
	Update config.Update
}

func (UpdateConfigOp) fnName() string { return FnUpdateConfig }

// TriggerScoutOp starts a scouting cycle with an optional focus override.
type TriggerScoutOp struct {
	Focus string
}

func (TriggerScoutOp) fnName() string { return FnTriggerScout }

// HealSectorOp repairs one named sector, or every critical sector when no
// name is supplied.
type HealSectorOp struct {
	Sector string
}

func (HealSectorOp) fnName() string { return FnHealSector }

// decodeCall validates a raw call against the closed operation set.
// Unknown function names and malformed arguments are decode errors, never
// silently ignored.
func decodeCall(c Call) (Operation, error) {
	switch c.Name {
	case FnUpdateConfig:
		return decodeUpdateConfig(c.Args)
	case FnTriggerScout:
		focus, err := optionalString(c.Args, "focus")
		if err != nil {
			return nil, err
		}
		return TriggerScoutOp{Focus: focus}, nil
	case FnHealSector:
		sector, err := optionalString(c.Args, "sectorName")
		if err != nil {
			return nil, err
		}
		return HealSectorOp{Sector: sector}, nil
	default:
		return nil, fmt.Errorf("unknown function %q", c.Name)
	}
}

func decodeUpdateConfig(args map[string]interface{}) (Operation, error) {
	var op UpdateConfigOp
	if raw, ok := args["risk"]; ok {
		v, err := asInt(raw, "risk")
		if err != nil {
			return nil, err
		}
		op.Update.RiskTolerance = &v
	}
	if raw, ok := args["depth"]; ok {
		v, err := asInt(raw, "depth")
		if err != nil {
			return nil, err
		}
		op.Update.SearchDepth = &v
	}
	if raw, ok := args["coreType"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("coreType: expected string, got %T", raw)
		}
		engine := config.CoreEngine(s)
		if engine != config.EngineStandard && engine != config.EngineTurbo {
			return nil, fmt.Errorf("coreType: unknown engine %q", s)
		}
		op.Update.CoreEngine = &engine
	}
	if raw, ok := args["autoSync"]; ok {
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("autoSync: expected bool, got %T", raw)
		}
		op.Update.AutoSync = &b
	}
	return op, nil
}

func asInt(raw interface{}, field string) (int, error) {
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("%s: expected number, got %T", field, raw)
	}
}

func optionalString(args map[string]interface{}, field string) (string, error) {
	raw, ok := args[field]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s: expected string, got %T", field, raw)
	}
	return s, nil
}
