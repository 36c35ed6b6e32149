package solana

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/pumpscan/service/metrics"
	"github.com/brojonat/pumpscan/service/ratelimit"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)
}

// Options tunes how a Client paces and retries RPC calls.
type Options struct {
	// Endpoint labels metrics (e.g. the RPC host).
	Endpoint string

	// Bucket gates every RPC request. Required.
	Bucket *ratelimit.TokenBucket
	// Pacer spaces out fetch batches. Nil disables pacing.
	Pacer *ratelimit.Pacer

	BatchSize         int
	Retry             RetryConfig
	RateLimitCooldown time.Duration
	RequestTimeout    time.Duration
}

// DefaultOptions mirrors the conservative settings that keep free public
// RPC endpoints from throttling us.
func DefaultOptions() Options {
	bucket, _ := ratelimit.NewTokenBucket(2, 0.3)
	return Options{
		Bucket:            bucket,
		Pacer:             ratelimit.NewPacer(time.Second),
		BatchSize:         3,
		Retry:             DefaultRetryConfig(),
		RateLimitCooldown: 5 * time.Second,
		RequestTimeout:    10 * time.Second,
	}
}

// Client provides the signature pager and batched transaction fetcher.
// It wraps the RPC client with pacing, retries and metrics.
type Client struct {
	rpc     RPCClient
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new Solana client.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, opts Options, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Bucket == nil {
		opts.Bucket = DefaultOptions().Bucket
	}
	if opts.Pacer == nil {
		opts.Pacer = ratelimit.NewPacer(0)
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	return &Client{
		rpc:     rpcClient,
		opts:    opts,
		logger:  logger.With("component", "solana_client"),
		metrics: m,
		sleep:   sleepContext,
	}
}

// BatchSize returns the number of transactions fetched concurrently.
func (c *Client) BatchSize() int {
	return c.opts.BatchSize
}

// acquire takes a token from the shared bucket and records how long it took.
func (c *Client) acquire(ctx context.Context) error {
	start := time.Now()
	err := c.opts.Bucket.Acquire(ctx)
	if c.metrics != nil {
		c.metrics.RecordTokenWait(c.opts.Endpoint, time.Since(start).Seconds())
	}
	return err
}

func (c *Client) recordCall(method string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	switch {
	case err == nil:
	case IsNotFound(err):
		status = "not_found"
	case IsRateLimited(err):
		status = "rate_limited"
	default:
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.opts.Endpoint, time.Since(start).Seconds())
}
