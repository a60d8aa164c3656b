package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all wallet-process configuration loaded from environment variables.
type Config struct {
	MnemonicFile string `envconfig:"RGBWALLET_MNEMONIC_FILE"`
	DataDir      string `envconfig:"RGBWALLET_DATA_DIR" default:"./data"`
	LogLevel     string `envconfig:"RGBWALLET_LOG_LEVEL" default:"info"`
	LogDir       string `envconfig:"RGBWALLET_LOG_DIR" default:"./logs"`
	Network      string `envconfig:"RGBWALLET_NETWORK" default:"testnet"`

	IndexerURL    string `envconfig:"RGBWALLET_INDEXER_URL"`
	RelayURL      string `envconfig:"RGBWALLET_RELAY_URL"`
	DefaultFeeRate float64 `envconfig:"RGBWALLET_FEE_RATE" default:"10"`

	MaxAllocationsPerUtxo int `envconfig:"RGBWALLET_MAX_ALLOCATIONS_PER_UTXO" default:"5"`
	MinConfirmations      int `envconfig:"RGBWALLET_MIN_CONFIRMATIONS" default:"1"`
}

// Load reads configuration from a .env file (if present) then from environment
// variables. Environment variables override .env values.
func Load() (*Config, error) {
	envFiles := []string{".env"}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				slog.Warn("failed to load .env file", "file", f, "error", err)
			} else {
				slog.Info("loaded .env file", "file", f)
			}
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.Network != "mainnet" && c.Network != "testnet" {
		return fmt.Errorf("%w: network must be \"mainnet\" or \"testnet\", got %q", ErrInvalidConfig, c.Network)
	}
	if c.MaxAllocationsPerUtxo < 1 {
		return fmt.Errorf("%w: max allocations per utxo must be >= 1, got %d", ErrInvalidConfig, c.MaxAllocationsPerUtxo)
	}
	if c.DefaultFeeRate < MinFeeRate || c.DefaultFeeRate > MaxFeeRate {
		return fmt.Errorf("%w: fee rate must be in [%v, %v], got %v", ErrInvalidConfig, MinFeeRate, MaxFeeRate, c.DefaultFeeRate)
	}
	return nil
}

// IsMainnet reports whether the configured network is Bitcoin mainnet.
func (c *Config) IsMainnet() bool {
	return c.Network == "mainnet"
}
