package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"sisas/internal/errors"
)

// Config represents the complete engine configuration
type Config struct {
	Contracts ContractConfig
	Signals   SignalConfig
	Run       RunConfig
	Output    OutputConfig
}

// ContractConfig holds contract loading settings
type ContractConfig struct {
	Dir string
}

// SignalConfig holds signal pack settings
type SignalConfig struct {
	Dir            string
	MembershipFile string // optional xlsx workbook with cluster membership + level weights
}

// RunConfig holds execution settings
type RunConfig struct {
	Workers       int
	MethodTimeout time.Duration
	StrictWeights bool // hard-fail on missing aggregation weight packs
}

// OutputConfig holds result sink settings
type OutputConfig struct {
	Dir         string // JSON record sink; empty disables it
	DatabaseURL string // Postgres sink; empty disables it
}

// Load reads configuration from environment variables and validates it.
// A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	cfg := &Config{
		Contracts: ContractConfig{
			Dir: getEnv("SISAS_CONTRACTS_DIR", "contracts"),
		},
		Signals: SignalConfig{
			Dir:            getEnv("SISAS_SIGNALS_DIR", "signals"),
			MembershipFile: os.Getenv("SISAS_MEMBERSHIP_FILE"),
		},
		Run: RunConfig{
			Workers:       getEnvInt("SISAS_WORKERS", 8),
			MethodTimeout: getEnvDuration("SISAS_METHOD_TIMEOUT", 30*time.Second),
			StrictWeights: getEnvBool("SISAS_STRICT_WEIGHTS", false),
		},
		Output: OutputConfig{
			Dir:         os.Getenv("SISAS_OUTPUT_DIR"),
			DatabaseURL: os.Getenv("SISAS_DATABASE_URL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Contracts.Dir == "" {
		return errors.ConfigInvalid("contracts dir cannot be empty")
	}
	if c.Run.Workers < 1 {
		return errors.ConfigInvalid("worker count must be at least 1")
	}
	if c.Run.MethodTimeout <= 0 {
		return errors.ConfigInvalid("method timeout must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
