package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the process configuration: a JSON file with env overrides.
type Config struct {
	Debug        bool   `json:"debug"`
	UniverseFile string `json:"universe_file"`

	// Trading parameters
	BorrowAmount string `json:"borrow_amount"` // base units of the route asset
	MinProfit    string `json:"min_profit"`    // base units of the route asset
	SlippageBps  uint16 `json:"slippage_bps"`
	DeadlineSecs uint64 `json:"deadline_secs"`
	GasCharge    string `json:"gas_charge"`

	// Submission pacing
	ScanInterval time.Duration `json:"scan_interval"`
	SubmitPerSec float64       `json:"submit_per_sec"`
	SubmitBurst  int           `json:"submit_burst"`

	// Observability
	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsAddr    string `json:"metrics_addr"`
}

// DefaultConfig returns a config with workable defaults.
func DefaultConfig() *Config {
	return &Config{
		UniverseFile: "universe.yaml",
		BorrowAmount: "100000000",
		MinProfit:    "500000",
		SlippageBps:  50,
		DeadlineSecs: 120,
		GasCharge:    "10000",
		ScanInterval: 2 * time.Second,
		SubmitPerSec: 1,
		SubmitBurst:  2,
		MetricsAddr:  ":9090",
	}
}

// LoadConfig reads the config file at path (or the default location) and
// applies environment overrides. A missing file is not an error; defaults
// apply.
func LoadConfig(path string) (*Config, error) {
	_ = LoadEnv()

	cfg := DefaultConfig()

	if path == "" {
		path = GetEnvWithDefault(EnvConfigFile, "config.json")
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if v := os.Getenv(EnvUniverseFile); v != "" {
		cfg.UniverseFile = v
	}
	if v := os.Getenv(EnvDebug); v == "1" || v == "true" {
		cfg.Debug = true
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.MetricsEnabled = true
		cfg.MetricsAddr = v
	}

	return cfg, nil
}
