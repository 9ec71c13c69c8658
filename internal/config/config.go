package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Sentient Grid configuration loaded from grid.yaml.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Gemini uplink configuration
	Gemini GeminiConfig `yaml:"gemini"`

	// Runtime tunables (seed values for the live store)
	Runtime RuntimeConfig `yaml:"runtime"`

	// Archive patrol
	Patrol PatrolConfig `yaml:"patrol"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// GeminiConfig configures the Gemini uplink.
type GeminiConfig struct {
	APIKey     string `yaml:"api_key"`
	FlashModel string `yaml:"flash_model"`
	ProModel   string `yaml:"pro_model"`
	ImageModel string `yaml:"image_model"`
	VideoModel string `yaml:"video_model"`
	Timeout    string `yaml:"timeout"`
}

// RuntimeConfig seeds the live runtime store and the loop schedules.
type RuntimeConfig struct {
	RiskTolerance int    `yaml:"risk_tolerance"` // 0-100
	SearchDepth   int    `yaml:"search_depth"`   // 10-100 light years
	CoreEngine    string `yaml:"core_engine"`    // STANDARD or TURBO
	AutoSync      bool   `yaml:"auto_sync"`
	HoloScout     bool   `yaml:"holo_scout"`

	TelemetryInterval string `yaml:"telemetry_interval"`
	ReflexInterval    string `yaml:"reflex_interval"`
	RepairLatency     string `yaml:"repair_latency"`
	PollInterval      string `yaml:"poll_interval"`
	MaxPollAttempts   int    `yaml:"max_poll_attempts"`
}

// PatrolConfig configures the archive patrol.
type PatrolConfig struct {
	Enabled       bool     `yaml:"enabled"`
	InventoryPath string   `yaml:"inventory_path"`
	Gateways      []string `yaml:"gateways"`
	ProbeTimeout  string   `yaml:"probe_timeout"`
}

// LoggingConfig configures operational logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "Sentient Grid",
		Version: "1.2.0",

		Gemini: GeminiConfig{
			FlashModel: "gemini-3-flash-preview",
			ProModel:   "gemini-3-pro-preview",
			ImageModel: "gemini-2.5-flash-image",
			VideoModel: "veo-3.1-fast-generate-preview",
			Timeout:    "120s",
		},

		Runtime: RuntimeConfig{
			RiskTolerance: 75,
			SearchDepth:   40,
			CoreEngine:    "TURBO",
			AutoSync:      true,
			HoloScout:     false,

			TelemetryInterval: "2500ms",
			ReflexInterval:    "15s",
			RepairLatency:     "2s",
			PollInterval:      "8s",
			MaxPollAttempts:   22,
		},

		Patrol: PatrolConfig{
			Enabled:       false,
			InventoryPath: "metadata.json",
			Gateways: []string{
				"https://gateway.pinata.cloud/ipfs/",
				"https://cloudflare-ipfs.com/ipfs/",
				"https://ipfs.io/ipfs/",
			},
			ProbeTimeout: "5s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, returning defaults if the file
// does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}
	if key := os.Getenv("API_KEY"); key != "" && c.Gemini.APIKey == "" {
		c.Gemini.APIKey = key
	}
	if path := os.Getenv("GRID_INVENTORY"); path != "" {
		c.Patrol.InventoryPath = path
		c.Patrol.Enabled = true
	}
}

func (c *Config) duration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// GetUplinkTimeout returns the Gemini request timeout as a duration.
func (c *Config) GetUplinkTimeout() time.Duration {
	return c.duration(c.Gemini.Timeout, 120*time.Second)
}

// GetTelemetryInterval returns the telemetry tick period.
func (c *Config) GetTelemetryInterval() time.Duration {
	return c.duration(c.Runtime.TelemetryInterval, 2500*time.Millisecond)
}

// GetReflexInterval returns the reflex tick period.
func (c *Config) GetReflexInterval() time.Duration {
	return c.duration(c.Runtime.ReflexInterval, 15*time.Second)
}

// GetRepairLatency returns the fixed sector repair latency.
func (c *Config) GetRepairLatency() time.Duration {
	return c.duration(c.Runtime.RepairLatency, 2*time.Second)
}

// GetPollInterval returns the video job poll interval.
func (c *Config) GetPollInterval() time.Duration {
	return c.duration(c.Runtime.PollInterval, 8*time.Second)
}

// GetProbeTimeout returns the patrol gateway probe timeout.
func (c *Config) GetProbeTimeout() time.Duration {
	return c.duration(c.Patrol.ProbeTimeout, 5*time.Second)
}

// Validate validates the configuration. A missing API key is deliberately
// not an error here: its absence surfaces as a request-time failure on the
// uplink, not a startup crash.
func (c *Config) Validate() error {
	switch c.Runtime.CoreEngine {
	case "STANDARD", "TURBO":
	default:
		return fmt.Errorf("invalid core engine: %s (valid: STANDARD, TURBO)", c.Runtime.CoreEngine)
	}
	if c.Runtime.RiskTolerance < 0 || c.Runtime.RiskTolerance > 100 {
		return fmt.Errorf("risk tolerance out of range: %d", c.Runtime.RiskTolerance)
	}
	if c.Runtime.MaxPollAttempts <= 0 {
		return fmt.Errorf("max poll attempts must be positive: %d", c.Runtime.MaxPollAttempts)
	}
	return nil
}
