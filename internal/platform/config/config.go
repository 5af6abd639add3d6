package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders; per-distribution
// overrides (pool, threshold, batch size) travel on the calculate request.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"jubilee"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogVerbose  bool   `env:"LOG_VERBOSE" envDefault:"false"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	// Holder index ingestion (snapshot-service).
	TokenAddress        string  `env:"TOKEN_ADDRESS"`
	HolderIndexBaseURL  string  `env:"HOLDER_INDEX_BASE_URL"`
	HolderIndexAPIKey   string  `env:"HOLDER_INDEX_API_KEY"`
	HolderIndexPageSize int     `env:"HOLDER_INDEX_PAGE_SIZE" envDefault:"1000"`
	HolderIndexRPS      float64 `env:"HOLDER_INDEX_RPS" envDefault:"4"`

	// Treasury gateway (batch transfer execution).
	TreasuryBaseURL     string        `env:"TREASURY_BASE_URL"`
	TreasuryAPIKey      string        `env:"TREASURY_API_KEY"`
	TreasuryConfirmWait time.Duration `env:"TREASURY_CONFIRM_WAIT" envDefault:"2m"`

	// Fee-price gate.
	FeeOracleRPCURL string        `env:"FEE_ORACLE_RPC_URL"`
	MaxFeePriceGwei string        `env:"MAX_FEE_PRICE_GWEI" envDefault:"60"`
	PriceCacheTTL   time.Duration `env:"PRICE_CACHE_TTL" envDefault:"30s"`

	// Reward calculation defaults.
	RewardPoolAmount string   `env:"REWARD_POOL_AMOUNT"`
	MinHolding       string   `env:"MIN_HOLDING" envDefault:"0"`
	BatchSize        int      `env:"BATCH_SIZE" envDefault:"100"`
	BatchMaxRetries  int      `env:"BATCH_MAX_RETRIES" envDefault:"3"`
	PolicyExcluded   []string `env:"POLICY_EXCLUDED_ADDRESSES" envSeparator:","`
	Restricted       []string `env:"RESTRICTED_ADDRESSES" envSeparator:","`

	// Orchestration pacing.
	BatchCooldown      time.Duration `env:"BATCH_COOLDOWN" envDefault:"10s"`
	ProcessingLeaseTTL time.Duration `env:"PROCESSING_LEASE_TTL" envDefault:"10m"`
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"30s"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
