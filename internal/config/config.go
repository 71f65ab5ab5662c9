// Package config loads and validates miner configuration, combining a YAML
// file (optional) with CLI flag overrides, in the style of
// coopmine/config.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full miner configuration assembled from defaults, an
// optional YAML file, and CLI flags, per spec.md §6.3.
type Config struct {
	RPC     RPCConfig     `yaml:"rpc"`
	Mining  MiningConfig  `yaml:"mining"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// RPCConfig holds node connection settings.
type RPCConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	ZMQURL   string `yaml:"zmq_url"`
}

// MiningConfig holds mining-loop tuning.
type MiningConfig struct {
	Threads        int           `yaml:"threads"` // 0 = auto-detect
	UpdateInterval time.Duration `yaml:"update_interval"`
	BlockCheck     time.Duration `yaml:"block_check"`
	FastMode       bool          `yaml:"fast_mode"`
	NoBalance      bool          `yaml:"no_balance"`
}

// LoggingConfig holds logger output settings.
type LoggingConfig struct {
	Debug      bool   `yaml:"debug"`
	LogFile    string `yaml:"log_file"`
	LogConsole bool   `yaml:"log_console"`
}

// MetricsConfig holds the Prometheus exporter's bind address.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the exporter
}

// Default returns the configuration the miner uses before any file or flag
// overrides are applied.
func Default() *Config {
	return &Config{
		RPC: RPCConfig{
			URL: "http://127.0.0.1:8232",
		},
		Mining: MiningConfig{
			Threads:        0,
			UpdateInterval: 30 * time.Second,
			BlockCheck:     5 * time.Second,
		},
	}
}

// LoadFile reads and parses a YAML config file on top of Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// FlagSet holds the two flags that are not Config fields: --config and
// --help. Every other flag is bound straight onto a Config by BindFlags,
// with cfg's current values as defaults, so a YAML file loaded first is
// only overridden by flags the user actually passed.
type FlagSet struct {
	ConfigFile string
	Help       bool
}

// BindFlags registers every flag from spec.md §6.3 (plus --metrics-addr and
// --config) on fs, defaulted from cfg, and returns the FlagSet holding the
// two flags the caller acts on itself (--config, --help).
func BindFlags(fs *flag.FlagSet, cfg *Config) *FlagSet {
	fset := &FlagSet{}

	fs.StringVar(&fset.ConfigFile, "config", "", "path to a YAML config file")
	fs.BoolVar(&fset.Help, "help", false, "print usage and exit")

	fs.StringVar(&cfg.RPC.URL, "rpc-url", cfg.RPC.URL, "node JSON-RPC URL")
	fs.StringVar(&cfg.RPC.User, "rpc-user", cfg.RPC.User, "node JSON-RPC username")
	fs.StringVar(&cfg.RPC.Password, "rpc-password", cfg.RPC.Password, "node JSON-RPC password")
	fs.StringVar(&cfg.RPC.ZMQURL, "zmq-url", cfg.RPC.ZMQURL, "optional ZMQ tip-notification URL")

	fs.IntVar(&cfg.Mining.Threads, "threads", cfg.Mining.Threads, "worker thread count (0 = auto-detect)")
	fs.DurationVar(&cfg.Mining.UpdateInterval, "update-interval", cfg.Mining.UpdateInterval, "template refetch interval")
	fs.DurationVar(&cfg.Mining.BlockCheck, "block-check", cfg.Mining.BlockCheck, "tip poll interval")
	fs.BoolVar(&cfg.Mining.FastMode, "fast-mode", cfg.Mining.FastMode, "use RandomX full-memory (dataset) mode")
	fs.BoolVar(&cfg.Mining.NoBalance, "no-balance", cfg.Mining.NoBalance, "suppress wallet balance polling/display")

	fs.BoolVar(&cfg.Logging.Debug, "debug", cfg.Logging.Debug, "enable debug-level logging")
	fs.StringVar(&cfg.Logging.LogFile, "log-file", cfg.Logging.LogFile, "write JSON logs to this file")
	fs.BoolVar(&cfg.Logging.LogConsole, "log-console", cfg.Logging.LogConsole, "also log to stderr as text")

	fs.StringVar(&cfg.Metrics.Addr, "metrics-addr", cfg.Metrics.Addr, "Prometheus exporter bind address (empty disables it)")

	return fset
}

// Validate checks the invariants the mining engine and RPC client depend
// on, in the style of coopmine/config's Validate methods.
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required")
	}
	if c.Mining.Threads < 0 {
		return fmt.Errorf("mining.threads must be >= 0")
	}
	if c.Mining.UpdateInterval <= 0 {
		return fmt.Errorf("mining.update_interval must be > 0")
	}
	if c.Mining.BlockCheck <= 0 {
		return fmt.Errorf("mining.block_check must be > 0")
	}
	return nil
}
