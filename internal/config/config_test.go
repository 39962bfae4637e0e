package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hypervisor.toml")

	contents := `
executor_path = "/var/lib/hypervisor/cache"
app_path = "/var/lib/hypervisor/apps"
listening = "0.0.0.0:9090"

[enclave]
enclave_id = "hv-prod-1"
hardware = true

[executor]
memory_max_bytes = 134217728
wall_clock_timeout = "15s"
fuel_timeout = "5s"
max_concurrent_runs = 50

[payment]
facilitator_url = "https://facilitator.example/"
network = "base"
asset = "USDC"
pay_to = "0xabc"
max_amount_required = "2"
settle_retry_attempts = 2
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Listening != "0.0.0.0:9090" {
		t.Errorf("listening = %q", cfg.Listening)
	}
	if cfg.Executor.WallClockTimeout != 15*time.Second {
		t.Errorf("wall_clock_timeout = %v", cfg.Executor.WallClockTimeout)
	}
	if cfg.Executor.FuelTimeout != 5*time.Second {
		t.Errorf("fuel_timeout = %v", cfg.Executor.FuelTimeout)
	}
	if cfg.Executor.MaxConcurrentRuns != 50 {
		t.Errorf("max_concurrent_runs = %d", cfg.Executor.MaxConcurrentRuns)
	}
	if !cfg.Enclave.Hardware {
		t.Error("expected hardware mode true")
	}
	if cfg.Payment.SettleRetryAttempts != 2 {
		t.Errorf("settle_retry_attempts = %d", cfg.Payment.SettleRetryAttempts)
	}
}

func TestLoadOrDefaultEmptyPath(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Listening != Default().Listening {
		t.Errorf("expected default listening address")
	}
}

func TestLoadFromPathMissingListening(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte(`executor_path = "x"`+"\n"+`listening = ""`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	_ = cfg
	if err == nil {
		t.Fatal("expected validation error for missing listening address")
	}
}
