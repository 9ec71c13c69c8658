package registry

import (
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"sentientgrid/internal/eventlog"
	"sentientgrid/internal/types"
)

func newTestRegistry(t *testing.T) (*Registry, *eventlog.Log) {
	t.Helper()
	elog := eventlog.New(nil)
	r := New(elog, nil, WithRepairLatency(10*time.Millisecond))
	r.Seed(SeedAssets())
	return r, elog
}

func TestSeedDerivesStatus(t *testing.T) {
	r, _ := newTestRegistry(t)

	assets := r.List()
	if len(assets) != 4 {
		t.Fatalf("fleet size = %d, want 4", len(assets))
	}

	want := map[string]types.AssetStatus{
		"Neural Link":    types.AssetHealthy,
		"Core Processor": types.AssetCritical,
		"Teal Reactor":   types.AssetHealthy,
		"Bio-Shield":     types.AssetCritical,
	}
	for _, a := range assets {
		if a.Status != want[a.Name] {
			t.Errorf("%s status = %s, want %s", a.Name, a.Status, want[a.Name])
		}
	}
}

func TestListPreservesFleetOrder(t *testing.T) {
	r, _ := newTestRegistry(t)

	var names []string
	for _, a := range r.List() {
		names = append(names, a.Name)
	}
	want := []string{"Neural Link", "Core Processor", "Teal Reactor", "Bio-Shield"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order = %v, want %v", names, want)
		}
	}
}

func TestHealCriticalSector(t *testing.T) {
	defer goleak.VerifyNone(t)
	r, elog := newTestRegistry(t)

	if err := r.Heal("Core Processor"); err != nil {
		t.Fatalf("heal failed: %v", err)
	}

	// The transition to healing is synchronous.
	a, _ := r.Get("Core Processor")
	if a.Status != types.AssetHealing {
		t.Errorf("status = %s, want %s immediately after heal", a.Status, types.AssetHealing)
	}

	r.Wait()

	a, _ = r.Get("Core Processor")
	if a.Status != types.AssetHealthy {
		t.Errorf("status = %s, want %s after repair", a.Status, types.AssetHealthy)
	}
	if a.ReplicationFactor != a.Threshold+2 {
		t.Errorf("rf = %d, want %d", a.ReplicationFactor, a.Threshold+2)
	}

	var messages []string
	for _, e := range elog.Snapshot() {
		messages = append(messages, e.Message)
	}
	if len(messages) != 2 {
		t.Fatalf("narration entries = %d, want 2: %v", len(messages), messages)
	}
	if !strings.Contains(messages[0], "Repairing sector Core Processor") {
		t.Errorf("first entry = %q", messages[0])
	}
	if !strings.Contains(messages[1], "restored to 100%") {
		t.Errorf("second entry = %q", messages[1])
	}
}

func TestHealHealthySectorIsSilentNoOp(t *testing.T) {
	r, elog := newTestRegistry(t)

	if err := r.Heal("Neural Link"); err != nil {
		t.Fatalf("heal returned error: %v", err)
	}
	r.Wait()

	a, _ := r.Get("Neural Link")
	if a.ReplicationFactor != 6 {
		t.Errorf("rf = %d, want unchanged 6", a.ReplicationFactor)
	}
	if elog.Len() != 0 {
		t.Errorf("narration entries = %d, want 0", elog.Len())
	}
}

func TestHealHealingSectorIsIdempotent(t *testing.T) {
	r, elog := newTestRegistry(t)

	if err := r.Heal("Core Processor"); err != nil {
		t.Fatalf("first heal failed: %v", err)
	}
	// Second heal while the repair is in flight must not start another.
	if err := r.Heal("Core Processor"); err != nil {
		t.Fatalf("second heal failed: %v", err)
	}
	r.Wait()

	count := 0
	for _, e := range elog.Snapshot() {
		if strings.Contains(e.Message, "Repairing") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("repair narrations = %d, want 1", count)
	}
}

func TestHealUnknownSector(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.Heal("Phantom Sector")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestHealAllCritical(t *testing.T) {
	defer goleak.VerifyNone(t)
	r, _ := newTestRegistry(t)

	if n := r.HealAllCritical(); n != 2 {
		t.Errorf("heals started = %d, want 2", n)
	}
	r.Wait()

	if criticals := r.ListCritical(); len(criticals) != 0 {
		t.Errorf("criticals after sweep = %d, want 0", len(criticals))
	}
}

func TestHealAllCriticalEmptyFleet(t *testing.T) {
	elog := eventlog.New(nil)
	r := New(elog, nil, WithRepairLatency(time.Millisecond))
	r.Seed([]types.Asset{{Name: "Solo", ReplicationFactor: 9, Threshold: 5}})

	if n := r.HealAllCritical(); n != 0 {
		t.Errorf("heals started = %d, want 0", n)
	}
	snap := elog.Snapshot()
	if len(snap) != 1 || !strings.Contains(snap[0].Message, "No critical sectors") {
		t.Errorf("narration = %v, want scan-complete entry", snap)
	}
}

func TestListCriticalSnapshotSemantics(t *testing.T) {
	r, _ := newTestRegistry(t)

	criticals := r.ListCritical()
	if len(criticals) != 2 {
		t.Fatalf("criticals = %d, want 2", len(criticals))
	}

	// Healing a sector must not mutate the previously taken snapshot.
	if err := r.Heal(criticals[0].Name); err != nil {
		t.Fatalf("heal failed: %v", err)
	}
	if criticals[0].Status != types.AssetCritical {
		t.Error("snapshot entry mutated by a later heal")
	}
	r.Wait()
}

func TestMarkDegraded(t *testing.T) {
	r, elog := newTestRegistry(t)

	if err := r.MarkDegraded("Teal Reactor"); err != nil {
		t.Fatalf("mark degraded failed: %v", err)
	}
	a, _ := r.Get("Teal Reactor")
	if a.Status != types.AssetCritical || a.ReplicationFactor != 0 {
		t.Errorf("asset = %+v, want critical with rf 0", a)
	}
	snap := elog.Snapshot()
	if len(snap) != 1 || !strings.Contains(snap[0].Message, "Replication gap detected") {
		t.Errorf("narration = %v", snap)
	}
}

func TestMarkDegradedLeavesHealingAlone(t *testing.T) {
	r, _ := newTestRegistry(t)

	if err := r.Heal("Core Processor"); err != nil {
		t.Fatalf("heal failed: %v", err)
	}
	if err := r.MarkDegraded("Core Processor"); err != nil {
		t.Fatalf("mark degraded failed: %v", err)
	}

	a, _ := r.Get("Core Processor")
	if a.Status != types.AssetHealing {
		t.Errorf("status = %s, want healing preserved", a.Status)
	}
	r.Wait()

	a, _ = r.Get("Core Processor")
	if a.Status != types.AssetHealthy {
		t.Errorf("status = %s, want healthy after repair", a.Status)
	}

	if err := r.MarkDegraded("Phantom"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
