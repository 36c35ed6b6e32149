package config

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cleanupEnv()
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, []string{DefaultRPCURL}, cfg.SolanaRPCURLs)
	assert.Len(t, cfg.PumpProgramIDs, 2)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1000, cfg.MaxSignatures)
	assert.Equal(t, 3, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchDelay)
	assert.Equal(t, 2, cfg.RateLimitCapacity)
	assert.Equal(t, 0.3, cfg.RateLimitRefill)
	assert.Equal(t, 5*time.Second, cfg.RateLimitCooldown)
	assert.Equal(t, 3, cfg.RPCMaxRetries)
	assert.Equal(t, 10*time.Second, cfg.RPCTimeout)
	assert.True(t, decimal.RequireFromString("0.001").Equal(cfg.DustThresholdSOL))
	assert.Equal(t, "pumpscan", cfg.TemporalTaskQueue)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	cleanupEnv()
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestLoad_CustomValues(t *testing.T) {
	cleanupEnv()
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SOLANA_RPC_URLS", "https://a.example.com, https://b.example.com,,")
	os.Setenv("PUMP_PROGRAM_IDS", "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("NATS_URL", "nats://nats.example.com:4222")
	os.Setenv("TEMPORAL_HOST", "temporal.example.com:7233")
	os.Setenv("BATCH_SIZE", "5")
	os.Setenv("BATCH_DELAY", "250ms")
	os.Setenv("RATE_LIMIT_REFILL", "1.5")
	os.Setenv("DUST_THRESHOLD_SOL", "0.01")
	os.Setenv("CACHE_TTL", "10m")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.SolanaRPCURLs)
	assert.Equal(t, []string{"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"}, cfg.PumpProgramIDs)
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, "temporal.example.com:7233", cfg.TemporalHost)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.BatchDelay)
	assert.Equal(t, 1.5, cfg.RateLimitRefill)
	assert.True(t, decimal.RequireFromString("0.01").Equal(cfg.DustThresholdSOL))
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"BATCH_DELAY", "soon", "invalid duration"},
		{"BATCH_SIZE", "three", "invalid integer"},
		{"RATE_LIMIT_REFILL", "fast", "invalid number"},
		{"DUST_THRESHOLD_SOL", "tiny", "invalid decimal"},
		{"BATCH_SIZE", "0", "BatchSize must be positive"},
		{"PUMP_PROGRAM_IDS", "not-a-key", "not a base58 public key"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cleanupEnv()
			os.Setenv("DATABASE_URL", "postgres://localhost/test")
			os.Setenv(tt.key, tt.value)
			defer cleanupEnv()

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScan_DatabaseOptional(t *testing.T) {
	cleanupEnv()
	defer cleanupEnv()

	cfg, err := LoadScan()
	require.NoError(t, err)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 3, cfg.BatchSize)
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	cfg.DatabaseURL = "postgres://localhost/test"

	err := cfg.Validate()
	assert.NoError(t, err)
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := Defaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DatabaseURL is required")
}

func TestValidate_ScanSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no rpc urls", func(c *Config) { c.SolanaRPCURLs = nil }, "Solana RPC URL is required"},
		{"no programs", func(c *Config) { c.PumpProgramIDs = nil }, "pump program id is required"},
		{"zero refill", func(c *Config) { c.RateLimitRefill = 0 }, "RateLimitRefill must be positive"},
		{"zero capacity", func(c *Config) { c.RateLimitCapacity = 0 }, "RateLimitCapacity must be positive"},
		{"negative retries", func(c *Config) { c.RPCMaxRetries = -1 }, "RPCMaxRetries cannot be negative"},
		{"negative dust", func(c *Config) { c.DustThresholdSOL = decimal.RequireFromString("-0.1") }, "DustThresholdSOL cannot be negative"},
		{"short refresh", func(c *Config) { c.LeaderboardRefreshInterval = time.Second }, "at least 1 minute"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.DatabaseURL = "postgres://localhost/test"
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMustLoad_Panics(t *testing.T) {
	// Don't set required env vars
	cleanupEnv()
	defer cleanupEnv()

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	cleanupEnv()
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	defer cleanupEnv()

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	for _, key := range []string{
		"DATABASE_URL",
		"SOLANA_RPC_URLS",
		"PUMP_PROGRAM_IDS",
		"SERVER_ADDR",
		"LOG_LEVEL",
		"NATS_URL",
		"TEMPORAL_HOST",
		"TEMPORAL_NAMESPACE",
		"TEMPORAL_TASK_QUEUE",
		"MAX_SIGNATURES",
		"BATCH_SIZE",
		"BATCH_DELAY",
		"RATE_LIMIT_CAPACITY",
		"RATE_LIMIT_REFILL",
		"RATE_LIMIT_COOLDOWN",
		"RPC_MAX_RETRIES",
		"RPC_TIMEOUT",
		"DUST_THRESHOLD_SOL",
		"CACHE_TTL",
		"LEADERBOARD_REFRESH_INTERVAL",
	} {
		os.Unsetenv(key)
	}
}
