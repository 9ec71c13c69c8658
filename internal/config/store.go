package config

import (
	"sync"
)

// CoreEngine selects the processing engine type.
type CoreEngine string

const (
	EngineStandard CoreEngine = "STANDARD"
	EngineTurbo    CoreEngine = "TURBO"
)

// Update is a partial runtime reconfiguration. Nil fields are left unchanged.
// Field identifiers mirror the wire names used by the command uplink.
type Update struct {
	RiskTolerance *int
	SearchDepth   *int
	CoreEngine    *CoreEngine
	AutoSync      *bool
	HoloScout     *bool
}

// Field is one applied update field, in announcement form.
type Field struct {
	Name  string
	Value interface{}
}

// Store holds the live runtime tunables shared by the loops and the
// orchestrator. All reads and writes are guarded; OnChange callbacks run
// outside the lock after an Apply commits.
type Store struct {
	mu        sync.RWMutex
	risk      int
	depth     int
	engine    CoreEngine
	autoSync  bool
	holoScout bool

	onChange []func(changed []Field)
}

// NewStore creates a live store seeded from the runtime file config.
func NewStore(rc RuntimeConfig) *Store {
	engine := CoreEngine(rc.CoreEngine)
	if engine != EngineStandard && engine != EngineTurbo {
		engine = EngineTurbo
	}
	return &Store{
		risk:      rc.RiskTolerance,
		depth:     rc.SearchDepth,
		engine:    engine,
		autoSync:  rc.AutoSync,
		holoScout: rc.HoloScout,
	}
}

// Apply merges the supplied fields into the store and returns the applied
// fields in declaration order. A field counts as applied when it was supplied,
// matching the announcement behavior of the command dispatcher (which narrates
// the first supplied field, changed or not).
func (s *Store) Apply(u Update) []Field {
	s.mu.Lock()
	var applied []Field
	if u.RiskTolerance != nil {
		s.risk = *u.RiskTolerance
		applied = append(applied, Field{Name: "risk", Value: *u.RiskTolerance})
	}
	if u.SearchDepth != nil {
		s.depth = *u.SearchDepth
		applied = append(applied, Field{Name: "depth", Value: *u.SearchDepth})
	}
	if u.CoreEngine != nil {
		s.engine = *u.CoreEngine
		applied = append(applied, Field{Name: "coreType", Value: string(*u.CoreEngine)})
	}
	if u.AutoSync != nil {
		s.autoSync = *u.AutoSync
		applied = append(applied, Field{Name: "autoSync", Value: *u.AutoSync})
	}
	if u.HoloScout != nil {
		s.holoScout = *u.HoloScout
		applied = append(applied, Field{Name: "useHoloScout", Value: *u.HoloScout})
	}
	callbacks := make([]func([]Field), len(s.onChange))
	copy(callbacks, s.onChange)
	s.mu.Unlock()

	if len(applied) > 0 {
		for _, fn := range callbacks {
			fn(applied)
		}
	}
	return applied
}

// OnChange registers a callback invoked after every non-empty Apply.
func (s *Store) OnChange(fn func(changed []Field)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// RiskTolerance returns the current risk tolerance percentage.
func (s *Store) RiskTolerance() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.risk
}

// SearchDepth returns the current search depth.
func (s *Store) SearchDepth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.depth
}

// Engine returns the current core engine type.
func (s *Store) Engine() CoreEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// AutoSyncEnabled reports whether the telemetry and reflex loops should run.
func (s *Store) AutoSyncEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoSync
}

// HoloScoutEnabled reports whether scouting uses the video pipeline.
func (s *Store) HoloScoutEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holoScout
}
