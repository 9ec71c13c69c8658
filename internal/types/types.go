// Package types provides shared type definitions used across Sentient Grid packages.
// This package exists to break import cycles between the registry, dispatcher, and
// scouting orchestrator. Types in this package should be foundational data
// structures with no complex dependencies.
package types

import "time"

// =============================================================================
// AGENT STATE
// =============================================================================

// AgentState is the global activity state of the agent. Exactly one value
// holds at any instant; gated operations may only begin from StateIdle.
type AgentState string

const (
	StateIdle       AgentState = "IDLE"
	StateThinking   AgentState = "THINKING"
	StateExecuting  AgentState = "EXECUTING"
	StateReflecting AgentState = "REFLECTING"
	StateError      AgentState = "ERROR"
)

// IsValid returns true if the state is a recognized canonical state.
func (s AgentState) IsValid() bool {
	switch s {
	case StateIdle, StateThinking, StateExecuting, StateReflecting, StateError:
		return true
	default:
		return false
	}
}

// IsBusy returns true if the state represents in-flight agent work.
func (s AgentState) IsBusy() bool {
	return s == StateThinking || s == StateExecuting || s == StateReflecting
}

// String returns the string representation of the state.
func (s AgentState) String() string {
	return string(s)
}

// =============================================================================
// ASSETS
// =============================================================================

// AssetStatus describes the health of a monitored asset.
type AssetStatus string

const (
	AssetHealthy  AssetStatus = "healthy"
	AssetCritical AssetStatus = "critical"
	AssetHealing  AssetStatus = "healing"
)

// Asset is a monitored unit on the grid. Status is derived from the
// replication factor and threshold except while a repair is in flight:
// critical iff ReplicationFactor < Threshold and not currently healing.
type Asset struct {
	Name              string
	ReplicationFactor int
	Threshold         int
	Status            AssetStatus
}

// DeriveStatus computes the status an asset should carry given its
// replication factor, unless it is mid-repair (healing is sticky until the
// repair completes).
func (a Asset) DeriveStatus() AssetStatus {
	if a.Status == AssetHealing {
		return AssetHealing
	}
	if a.ReplicationFactor < a.Threshold {
		return AssetCritical
	}
	return AssetHealthy
}

// =============================================================================
// DEALS
// =============================================================================

// DealStatus tracks a catalogued acquisition through the negotiation workflow.
type DealStatus string

const (
	DealPending     DealStatus = "Pending"
	DealNegotiating DealStatus = "Negotiating"
	DealSigned      DealStatus = "Signed"
	DealRejected    DealStatus = "Rejected"
)

// Deal is a catalogued acquisition outcome produced by a completed scouting
// cycle. Immutable once created except for Status.
type Deal struct {
	ID          string
	Title       string
	AssetLabel  string
	Price       float64
	Status      DealStatus
	PreviewRef  string
	MarketTrend string
	CreatedAt   time.Time
}

// =============================================================================
// GROUNDING
// =============================================================================

// GroundingSource is a web source used to ground an oracle consult.
type GroundingSource struct {
	Title string
	URI   string
}
