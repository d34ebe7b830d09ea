package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Contracts.Dir != "contracts" {
		t.Errorf("Expected default contracts dir, got %q", cfg.Contracts.Dir)
	}
	if cfg.Signals.Dir != "signals" {
		t.Errorf("Expected default signals dir, got %q", cfg.Signals.Dir)
	}
	if cfg.Run.Workers != 8 {
		t.Errorf("Expected default 8 workers, got %d", cfg.Run.Workers)
	}
	if cfg.Run.MethodTimeout != 30*time.Second {
		t.Errorf("Expected default 30s timeout, got %s", cfg.Run.MethodTimeout)
	}
	if cfg.Run.StrictWeights {
		t.Error("Strict weights should default off")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SISAS_CONTRACTS_DIR", "/data/contracts")
	t.Setenv("SISAS_SIGNALS_DIR", "/data/signals")
	t.Setenv("SISAS_MEMBERSHIP_FILE", "/data/settings.xlsx")
	t.Setenv("SISAS_WORKERS", "16")
	t.Setenv("SISAS_METHOD_TIMEOUT", "5s")
	t.Setenv("SISAS_STRICT_WEIGHTS", "true")
	t.Setenv("SISAS_OUTPUT_DIR", "/data/out")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Contracts.Dir != "/data/contracts" {
		t.Errorf("Contracts dir not read: %q", cfg.Contracts.Dir)
	}
	if cfg.Signals.MembershipFile != "/data/settings.xlsx" {
		t.Errorf("Membership file not read: %q", cfg.Signals.MembershipFile)
	}
	if cfg.Run.Workers != 16 {
		t.Errorf("Workers not read: %d", cfg.Run.Workers)
	}
	if cfg.Run.MethodTimeout != 5*time.Second {
		t.Errorf("Timeout not read: %s", cfg.Run.MethodTimeout)
	}
	if !cfg.Run.StrictWeights {
		t.Error("Strict weights not read")
	}
	if cfg.Output.Dir != "/data/out" {
		t.Errorf("Output dir not read: %q", cfg.Output.Dir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty contracts dir", func(c *Config) { c.Contracts.Dir = "" }, true},
		{"zero workers", func(c *Config) { c.Run.Workers = 0 }, true},
		{"zero timeout", func(c *Config) { c.Run.MethodTimeout = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Contracts: ContractConfig{Dir: "contracts"},
				Run:       RunConfig{Workers: 4, MethodTimeout: time.Second},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}
