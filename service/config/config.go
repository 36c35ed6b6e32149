package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// DefaultRPCURL is the public mainnet endpoint used when none is configured.
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Solana configuration. One RPC URL is picked at random per process.
	SolanaRPCURLs  []string
	PumpProgramIDs []string

	// Scan pacing
	MaxSignatures     int
	BatchSize         int
	BatchDelay        time.Duration
	RateLimitCapacity int
	RateLimitRefill   float64
	RateLimitCooldown time.Duration
	RPCMaxRetries     int
	RPCTimeout        time.Duration
	DustThresholdSOL  decimal.Decimal

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Cache configuration
	CacheTTL                   time.Duration
	LeaderboardRefreshInterval time.Duration
}

// Defaults returns a Config with every optional field at its default.
// DatabaseURL is left empty.
func Defaults() *Config {
	return &Config{
		ServerAddr:                 ":8080",
		LogLevel:                   "info",
		NATSURL:                    "nats://localhost:4222",
		SolanaRPCURLs:              []string{DefaultRPCURL},
		PumpProgramIDs:             []string{"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P", "pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA"},
		MaxSignatures:              1000,
		BatchSize:                  3,
		BatchDelay:                 time.Second,
		RateLimitCapacity:          2,
		RateLimitRefill:            0.3,
		RateLimitCooldown:          5 * time.Second,
		RPCMaxRetries:              3,
		RPCTimeout:                 10 * time.Second,
		DustThresholdSOL:           decimal.New(1, -3),
		TemporalHost:               "localhost:7233",
		TemporalNamespace:          "default",
		TemporalTaskQueue:          "pumpscan",
		CacheTTL:                   time.Hour,
		LeaderboardRefreshInterval: 15 * time.Minute,
	}
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg, errs := loadFromEnv()

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// LoadScan is Load for processes that only talk to Solana, such as a
// one-off CLI scan. DATABASE_URL is optional.
func LoadScan() (*Config, error) {
	cfg, errs := loadFromEnv()
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	if err := cfg.validateScan(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromEnv() (*Config, []error) {
	cfg := Defaults()
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", cfg.ServerAddr)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", cfg.NATSURL)

	// Solana configuration
	if urls := parseList("SOLANA_RPC_URLS"); len(urls) > 0 {
		cfg.SolanaRPCURLs = urls
	}
	if ids := parseList("PUMP_PROGRAM_IDS"); len(ids) > 0 {
		cfg.PumpProgramIDs = ids
	}

	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.MaxSignatures, err = parseInt("MAX_SIGNATURES", cfg.MaxSignatures)
	collect(err)
	cfg.BatchSize, err = parseInt("BATCH_SIZE", cfg.BatchSize)
	collect(err)
	cfg.BatchDelay, err = parseDuration("BATCH_DELAY", cfg.BatchDelay.String())
	collect(err)
	cfg.RateLimitCapacity, err = parseInt("RATE_LIMIT_CAPACITY", cfg.RateLimitCapacity)
	collect(err)
	cfg.RateLimitRefill, err = parseFloat("RATE_LIMIT_REFILL", cfg.RateLimitRefill)
	collect(err)
	cfg.RateLimitCooldown, err = parseDuration("RATE_LIMIT_COOLDOWN", cfg.RateLimitCooldown.String())
	collect(err)
	cfg.RPCMaxRetries, err = parseInt("RPC_MAX_RETRIES", cfg.RPCMaxRetries)
	collect(err)
	cfg.RPCTimeout, err = parseDuration("RPC_TIMEOUT", cfg.RPCTimeout.String())
	collect(err)
	cfg.DustThresholdSOL, err = parseDecimal("DUST_THRESHOLD_SOL", cfg.DustThresholdSOL)
	collect(err)

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", cfg.TemporalHost)
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", cfg.TemporalNamespace)
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", cfg.TemporalTaskQueue)

	// Cache configuration
	cfg.CacheTTL, err = parseDuration("CACHE_TTL", cfg.CacheTTL.String())
	collect(err)
	cfg.LeaderboardRefreshInterval, err = parseDuration("LEADERBOARD_REFRESH_INTERVAL", cfg.LeaderboardRefreshInterval.String())
	collect(err)

	return cfg, errs
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.LeaderboardRefreshInterval < time.Minute {
		errs = append(errs, fmt.Errorf("LeaderboardRefreshInterval must be at least 1 minute"))
	}

	if err := c.validateScan(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// validateScan checks only the settings a scan depends on.
func (c *Config) validateScan() error {
	var errs []error

	if len(c.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("at least one Solana RPC URL is required"))
	}

	if len(c.PumpProgramIDs) == 0 {
		errs = append(errs, fmt.Errorf("at least one pump program id is required"))
	}
	for _, id := range c.PumpProgramIDs {
		if !isPublicKey(id) {
			errs = append(errs, fmt.Errorf("program id %q is not a base58 public key", id))
		}
	}

	if c.MaxSignatures < 1 {
		errs = append(errs, fmt.Errorf("MaxSignatures must be positive"))
	}

	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("BatchSize must be positive"))
	}

	if c.BatchDelay < 0 {
		errs = append(errs, fmt.Errorf("BatchDelay cannot be negative"))
	}

	if c.RateLimitCapacity < 1 {
		errs = append(errs, fmt.Errorf("RateLimitCapacity must be positive"))
	}

	if c.RateLimitRefill <= 0 {
		errs = append(errs, fmt.Errorf("RateLimitRefill must be positive"))
	}

	if c.RPCMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("RPCMaxRetries cannot be negative"))
	}

	if c.RPCTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RPCTimeout must be positive"))
	}

	if c.DustThresholdSOL.IsNegative() {
		errs = append(errs, fmt.Errorf("DustThresholdSOL cannot be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// isPublicKey reports whether s decodes to a 32-byte ed25519 key.
func isPublicKey(s string) bool {
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 32
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseList splits a comma separated environment variable, dropping blanks.
func parseList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

func parseDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q: %w", key, value, err)
	}
	return result, nil
}
