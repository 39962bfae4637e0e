// Package config loads the gateway's process-level TOML configuration
// behind a LoadFromPath/LoadOrDefault shape.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level process configuration read from the TOML file
// named on the command line.
type Config struct {
	// ExecutorPath is the directory used to cache compiled guest modules.
	ExecutorPath string `toml:"executor_path"`

	// AppPath is the directory for pre-deployed agents (demo stub only).
	AppPath string `toml:"app_path"`

	// Listening is the bind address for the HTTP server.
	Listening string `toml:"listening"`

	Enclave  EnclaveConfig  `toml:"enclave"`
	Executor ExecutorConfig `toml:"executor"`
	Payment  PaymentConfig  `toml:"payment"`
	Session  SessionConfig  `toml:"session"`
	Debug    bool           `toml:"debug"`
}

// EnclaveConfig selects the attestation provider variant.
type EnclaveConfig struct {
	EnclaveID string `toml:"enclave_id"`
	Hardware  bool   `toml:"hardware"`
}

// ExecutorConfig bounds guest resource usage and concurrency.
// FuelTimeout is the CPU-bound execution sub-budget scoped to the
// guest's own run, distinct from WallClockTimeout's wider per-request
// envelope — see internal/wasmexec and internal/policyexec's Limits
// doc comments for why a time-based proxy stands in for true fuel
// metering.
type ExecutorConfig struct {
	MemoryMaxBytes    int64         `toml:"memory_max_bytes"`
	WallClockTimeout  time.Duration `toml:"wall_clock_timeout"`
	FuelTimeout       time.Duration `toml:"fuel_timeout"`
	MaxConcurrentRuns int           `toml:"max_concurrent_runs"`
}

// PaymentConfig configures the X402 accepts clause for paid endpoints.
type PaymentConfig struct {
	FacilitatorURL      string `toml:"facilitator_url"`
	Network             string `toml:"network"`
	Asset               string `toml:"asset"`
	PayTo               string `toml:"pay_to"`
	MaxAmountRequired   string `toml:"max_amount_required"`
	SettleRetryAttempts int    `toml:"settle_retry_attempts"`
}

// SessionConfig bounds the in-memory session store's LRU capacity.
type SessionConfig struct {
	MaxSessions int `toml:"max_sessions"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		ExecutorPath: "./var/executor-cache",
		AppPath:      "./var/apps",
		Listening:    "127.0.0.1:8089",
		Enclave: EnclaveConfig{
			EnclaveID: "hypervisor-dev",
			Hardware:  false,
		},
		Executor: ExecutorConfig{
			MemoryMaxBytes:    256 * 1024 * 1024,
			WallClockTimeout:  30 * time.Second,
			FuelTimeout:       10 * time.Second,
			MaxConcurrentRuns: 100,
		},
		Payment: PaymentConfig{
			FacilitatorURL:      "https://x402.org/facilitator/",
			Network:             "base-sepolia",
			Asset:               "USDC",
			PayTo:               "",
			MaxAmountRequired:   "1",
			SettleRetryAttempts: 3,
		},
		Session: SessionConfig{
			MaxSessions: 10_000,
		},
	}
}

// LoadFromPath reads and parses a TOML config file at path.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads the config at path if non-empty, otherwise returns
// the Default configuration.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFromPath(path)
}

func (c *Config) validate() error {
	if c.Listening == "" {
		return fmt.Errorf("listening address is required")
	}
	if c.Enclave.EnclaveID == "" {
		return fmt.Errorf("enclave.enclave_id is required")
	}
	if c.Executor.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("executor.max_concurrent_runs must be positive")
	}
	return nil
}
