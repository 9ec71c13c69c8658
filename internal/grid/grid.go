// Package grid wires the agent core together: configuration, event log,
// activity gate, asset registry, deal catalog, background loops, the Gemini
// uplink, and the command surfaces built on top of them.
package grid

import (
	"context"

	"go.uber.org/zap"

	"sentientgrid/internal/assistant"
	"sentientgrid/internal/catalog"
	"sentientgrid/internal/config"
	"sentientgrid/internal/dispatch"
	"sentientgrid/internal/eventlog"
	"sentientgrid/internal/gate"
	"sentientgrid/internal/oracle"
	"sentientgrid/internal/patrol"
	"sentientgrid/internal/reflex"
	"sentientgrid/internal/registry"
	"sentientgrid/internal/scout"
	"sentientgrid/internal/telemetry"
	"sentientgrid/internal/uplink"
)

// System is the assembled agent core.
type System struct {
	Config    *config.Config
	Runtime   *config.Store
	Events    *eventlog.Log
	Gate      *gate.Gate
	Registry  *registry.Registry
	Catalog   *catalog.Catalog
	Telemetry *telemetry.Loop
	Reflex    *reflex.Loop
	Scout     *scout.Orchestrator
	Dispatch  *dispatch.Dispatcher
	Assistant *assistant.Assistant
	Oracle    *oracle.Oracle
	Patrol    *patrol.Patrol

	uplink *uplink.Client
	logger *zap.Logger
}

// New assembles a system from the given configuration. Nothing is started;
// call Start to bring the background loops up.
func New(cfg *config.Config, logger *zap.Logger) *System {
	if logger == nil {
		logger = zap.NewNop()
	}

	runtime := config.NewStore(cfg.Runtime)
	events := eventlog.New(logger.Named("events"))
	g := gate.New()

	reg := registry.New(events, logger.Named("registry"),
		registry.WithRepairLatency(cfg.GetRepairLatency()))
	reg.Seed(registry.SeedAssets())

	cat := catalog.New()
	cat.Seed(catalog.SeedDeals())

	client := uplink.New(cfg.Gemini, logger.Named("uplink"))

	tele := telemetry.New(runtime, logger.Named("telemetry"),
		telemetry.WithInterval(cfg.GetTelemetryInterval()))
	rfx := reflex.New(runtime, g, reg, events, logger.Named("reflex"),
		reflex.WithInterval(cfg.GetReflexInterval()))

	scoutOpts := []scout.Option{scout.WithPollInterval(cfg.GetPollInterval())}
	if cfg.Runtime.MaxPollAttempts > 0 {
		scoutOpts = append(scoutOpts, scout.WithMaxPollAttempts(cfg.Runtime.MaxPollAttempts))
	}
	sc := scout.New(g, runtime, cat, events, logger.Named("scout"),
		client, client, client, scoutOpts...)

	disp := dispatch.New(g, runtime, reg, sc, client, events, logger.Named("dispatch"))
	asst := assistant.New(client, logger.Named("assistant"))
	orc := oracle.New(client, events, logger.Named("oracle"))

	patrolOpts := []patrol.Option{patrol.WithProbeTimeout(cfg.GetProbeTimeout())}
	if len(cfg.Patrol.Gateways) > 0 {
		patrolOpts = append(patrolOpts, patrol.WithGateways(cfg.Patrol.Gateways))
	}
	pat := patrol.New(cfg.Patrol.InventoryPath, reg, events, logger.Named("patrol"), patrolOpts...)

	s := &System{
		Config:    cfg,
		Runtime:   runtime,
		Events:    events,
		Gate:      g,
		Registry:  reg,
		Catalog:   cat,
		Telemetry: tele,
		Reflex:    rfx,
		Scout:     sc,
		Dispatch:  disp,
		Assistant: asst,
		Oracle:    orc,
		Patrol:    pat,
		uplink:    client,
		logger:    logger,
	}

	// Toggling auto-sync starts or stops the background loops so that a
	// disabled agent holds no timers at all.
	runtime.OnChange(func(changed []config.Field) {
		for _, f := range changed {
			if f.Name != "autoSync" {
				continue
			}
			if enabled, ok := f.Value.(bool); ok {
				s.setLoops(enabled)
			}
		}
	})

	return s
}

// Start brings up the background loops and, when configured, the archive
// patrol watcher. Idempotent.
func (s *System) Start(ctx context.Context) error {
	s.setLoops(s.Runtime.AutoSyncEnabled())

	if s.Config.Patrol.Enabled {
		if err := s.Patrol.Start(ctx); err != nil {
			return err
		}
	}
	s.logger.Info("grid online",
		zap.String("name", s.Config.Name),
		zap.String("version", s.Config.Version))
	return nil
}

// Stop halts the loops and waits for any in-flight repairs to settle.
func (s *System) Stop() {
	s.Telemetry.Stop()
	s.Reflex.Stop()
	s.Patrol.Stop()
	s.Registry.Wait()
	s.logger.Info("grid offline")
}

func (s *System) setLoops(enabled bool) {
	if enabled {
		s.Telemetry.Start()
		s.Reflex.Start()
		return
	}
	s.Telemetry.Stop()
	s.Reflex.Stop()
}
