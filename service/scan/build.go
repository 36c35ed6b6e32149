package scan

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/brojonat/pumpscan/service/config"
	"github.com/brojonat/pumpscan/service/metrics"
	"github.com/brojonat/pumpscan/service/ratelimit"
	"github.com/brojonat/pumpscan/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// NewFromConfig builds a Scanner against a randomly chosen RPC endpoint
// from cfg. The token bucket is created here and shared by every request
// the returned Scanner makes.
func NewFromConfig(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Scanner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	endpoint, err := solana.SelectRandomEndpoint(cfg.SolanaRPCURLs)
	if err != nil {
		return nil, err
	}

	programs := make([]solanago.PublicKey, 0, len(cfg.PumpProgramIDs))
	for _, id := range cfg.PumpProgramIDs {
		key, err := solanago.PublicKeyFromBase58(id)
		if err != nil {
			return nil, fmt.Errorf("invalid program id %q: %w", id, err)
		}
		programs = append(programs, key)
	}

	bucket, err := ratelimit.NewTokenBucket(cfg.RateLimitCapacity, cfg.RateLimitRefill)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	retry := solana.DefaultRetryConfig()
	retry.MaxRetries = cfg.RPCMaxRetries

	opts := solana.Options{
		Endpoint:          endpointLabel(endpoint),
		Bucket:            bucket,
		Pacer:             ratelimit.NewPacer(cfg.BatchDelay),
		BatchSize:         cfg.BatchSize,
		Retry:             retry,
		RateLimitCooldown: cfg.RateLimitCooldown,
		RequestTimeout:    cfg.RPCTimeout,
	}

	logger.Info("using solana rpc endpoint",
		"endpoint", opts.Endpoint,
		"batch_size", opts.BatchSize,
		"bucket_capacity", bucket.Capacity(),
		"bucket_refill", bucket.RefillRate(),
	)

	client := solana.NewClient(solana.NewRPCClient(endpoint), opts, m, logger)
	classifier := solana.NewClassifier(programs, cfg.DustThresholdSOL, logger)
	return NewScanner(client, classifier, cfg.MaxSignatures, m, logger), nil
}

// endpointLabel strips paths and query strings, which often carry API keys.
func endpointLabel(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
