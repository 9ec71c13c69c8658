package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sentientgrid/internal/assistant"
	"sentientgrid/internal/config"
	"sentientgrid/internal/eventlog"
	"sentientgrid/internal/gate"
	"sentientgrid/internal/grid"
	"sentientgrid/internal/scout"
	"sentientgrid/internal/types"
)

var (
	// Global flags
	verbose    bool
	apiKey     string
	configPath string
	timeout    time.Duration

	logger *zap.Logger
)

// rootCmd launches the interactive console when run without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "grid",
	Short: "Sentient Grid - autonomous asset agent console",
	Long: `Sentient Grid is an autonomous agent that manages a fleet of replicated
assets, scouts the market for new acquisitions via the Gemini uplink, and
self-heals replication gaps.

Run without arguments to start the interactive console.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole()
	},
}

// runCmd dispatches a single natural language command.
var runCmd = &cobra.Command{
	Use:   "run [command]",
	Short: "Dispatch a single command through the neural core",
	Long: `Resolves a natural language command into typed control operations via
the Gemini uplink and executes them against the live system.

Example:
  grid run "set risk tolerance to 90 and enable holo scout"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

// scoutCmd triggers one scouting cycle directly.
var scoutCmd = &cobra.Command{
	Use:   "scout [focus]",
	Short: "Run one autonomous scouting cycle",
	Long: `Runs the multi-phase scouting cycle: trend discovery, asset generation
(static mesh or holographic, per configuration), and catalog entry.

An optional focus overrides the default trend discovery prompt.`,
	Args: cobra.ArbitraryArgs,
	RunE: runScout,
}

// healCmd repairs sectors.
var healCmd = &cobra.Command{
	Use:   "heal [sector]",
	Short: "Repair a sector, or sweep all critical sectors",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHeal,
}

// statusCmd prints the fleet and catalog state.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show fleet, catalog, and agent state",
	RunE:  showStatus,
}

// consultCmd asks the strategic oracle.
var consultCmd = &cobra.Command{
	Use:   "consult [prompt]",
	Short: "Request a grounded strategic analysis",
	Long: `Sends the prompt to the strategic oracle, which answers with live web
grounding and cites its sources.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConsult,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY env)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scoutCmd)
	rootCmd.AddCommand(healCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(consultCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildSystem loads configuration and assembles the agent core.
func buildSystem() (*grid.System, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		cfg.Gemini.APIKey = apiKey
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return grid.New(cfg, logger), nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// assistantLine formats an assistant reply for the console.
func assistantLine(m assistant.Message) string {
	return fmt.Sprintf("assistant: %s", m.Content)
}

// printEntries echoes event log entries until the channel closes.
func printEntries(entries <-chan eventlog.Entry, done chan<- struct{}) {
	for e := range entries {
		fmt.Printf("[%s] %-10s %-7s %s\n",
			e.Timestamp.Format("15:04:05"), e.Source, e.Level, e.Message)
	}
	close(done)
}

func runConsole() error {
	sys, err := buildSystem()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	if err := sys.Start(ctx); err != nil {
		return err
	}
	defer sys.Stop()

	entries, unsubscribe := sys.Events.Subscribe()
	printerDone := make(chan struct{})
	go printEntries(entries, printerDone)

	fmt.Println("Sentient Grid console. Commands are dispatched to the neural core.")
	fmt.Println("Prefix with /chat to talk to the assistant, /consult for the oracle.")
	fmt.Println("Type /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}
		if ctx.Err() != nil {
			break
		}

		switch {
		case strings.HasPrefix(line, "/chat "):
			msg := sys.Assistant.Send(ctx, strings.TrimPrefix(line, "/chat "))
			fmt.Println(assistantLine(msg))
		case strings.HasPrefix(line, "/consult "):
			if _, err := sys.Oracle.Consult(ctx, strings.TrimPrefix(line, "/consult ")); err != nil {
				logger.Warn("consult failed", zap.Error(err))
			}
		default:
			if err := sys.Dispatch.Execute(ctx, line); err != nil {
				if errors.Is(err, gate.ErrBusy) {
					fmt.Println("Agent is busy; try again shortly.")
					continue
				}
				logger.Warn("command failed", zap.Error(err))
			}
		}
	}

	unsubscribe()
	<-printerDone
	return scanner.Err()
}

func runCommand(cmd *cobra.Command, args []string) error {
	sys, err := buildSystem()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx, stop := signalContext(ctx)
	defer stop()

	command := strings.Join(args, " ")
	if err := sys.Dispatch.Execute(ctx, command); err != nil {
		return err
	}
	sys.Registry.Wait()

	for _, e := range sys.Events.Snapshot() {
		fmt.Printf("[%s] %-10s %s\n", e.Level, e.Source, e.Message)
	}
	return nil
}

func runScout(cmd *cobra.Command, args []string) error {
	sys, err := buildSystem()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx, stop := signalContext(ctx)
	defer stop()

	deal, err := sys.Scout.Run(ctx, strings.Join(args, " "))
	for _, e := range sys.Events.Snapshot() {
		fmt.Printf("[%s] %-10s %s\n", e.Level, e.Source, e.Message)
	}
	if err != nil {
		if errors.Is(err, scout.ErrTimeout) {
			return fmt.Errorf("scout cycle: %w", err)
		}
		return err
	}

	fmt.Printf("\nAcquired: %s (%s) at %.2f ETH [%s]\n",
		deal.Title, deal.AssetLabel, deal.Price, deal.MarketTrend)
	return nil
}

func runHeal(cmd *cobra.Command, args []string) error {
	sys, err := buildSystem()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		if err := sys.Registry.Heal(args[0]); err != nil {
			return err
		}
	} else {
		n := sys.Registry.HealAllCritical()
		fmt.Printf("Healing %d critical sector(s).\n", n)
	}
	sys.Registry.Wait()

	for _, e := range sys.Events.Snapshot() {
		fmt.Printf("[%s] %-10s %s\n", e.Level, e.Source, e.Message)
	}
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	sys, err := buildSystem()
	if err != nil {
		return err
	}

	fmt.Printf("Sentient Grid %s\n\n", sys.Config.Version)
	fmt.Printf("Agent state: %s\n", sys.Gate.State())
	fmt.Printf("Core engine: %s  risk=%d  depth=%d ly  autoSync=%v  holoScout=%v\n\n",
		sys.Runtime.Engine(), sys.Runtime.RiskTolerance(), sys.Runtime.SearchDepth(),
		sys.Runtime.AutoSyncEnabled(), sys.Runtime.HoloScoutEnabled())

	fmt.Println("Fleet:")
	for _, a := range sys.Registry.List() {
		marker := " "
		if a.Status == types.AssetCritical {
			marker = "!"
		}
		fmt.Printf("  %s %-16s rf=%d/%d %s\n", marker, a.Name, a.ReplicationFactor, a.Threshold, a.Status)
	}

	fmt.Println("\nCatalog:")
	for _, d := range sys.Catalog.Snapshot() {
		fmt.Printf("  #%-3s %-16s %-14s %.2f ETH  %s\n", d.ID, d.Title, d.AssetLabel, d.Price, d.Status)
	}

	snap := sys.Telemetry.Snapshot()
	fmt.Printf("\nTelemetry: revenue %.2f ETH (%s), %d active nodes\n",
		snap.Revenue, snap.RevenueTrend, snap.Nodes)
	return nil
}

func runConsult(cmd *cobra.Command, args []string) error {
	sys, err := buildSystem()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx, stop := signalContext(ctx)
	defer stop()

	analysis, err := sys.Oracle.Consult(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	fmt.Println(analysis)
	if sources := sys.Oracle.Sources(); len(sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range sources {
			fmt.Printf("  - %s (%s)\n", s.Title, s.URI)
		}
	}
	return nil
}
