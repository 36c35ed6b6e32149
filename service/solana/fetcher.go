package solana

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"
)

// Batch is the outcome of fetching one slice of signatures.
type Batch struct {
	// Index is 1-based.
	Index int
	Total int
	// Attempted is the number of signatures tried in this batch.
	Attempted int
	// Records holds the transactions that came back, in signature order.
	Records  []*TransactionRecord
	NotFound int
	Failed   int
}

// BatchFunc receives each batch after all of its fetches have settled.
type BatchFunc func(ctx context.Context, batch Batch)

// TotalBatches returns how many batches n signatures split into.
func (c *Client) TotalBatches(n int) int {
	return (n + c.opts.BatchSize - 1) / c.opts.BatchSize
}

// FetchBatches fetches every signature exactly once, BatchSize at a time.
//
// Batches run strictly in order; fetches within a batch run concurrently
// and each waits for a token from the shared bucket. A failed or missing
// transaction is logged and skipped. The only error returned is the
// context's, when the caller gives up.
func (c *Client) FetchBatches(ctx context.Context, sigs []SignatureRecord, onBatch BatchFunc) error {
	total := c.TotalBatches(len(sigs))

	for i := 0; i < len(sigs); i += c.opts.BatchSize {
		if err := c.opts.Pacer.Wait(ctx); err != nil {
			return err
		}

		end := min(i+c.opts.BatchSize, len(sigs))
		chunk := sigs[i:end]
		index := i/c.opts.BatchSize + 1

		c.logger.DebugContext(ctx, "processing batch",
			"batch", index,
			"total_batches", total,
			"size", len(chunk),
		)

		results := make([]*TransactionRecord, len(chunk))
		errs := make([]error, len(chunk))

		var g errgroup.Group
		g.SetLimit(c.opts.BatchSize)
		for j, sig := range chunk {
			g.Go(func() error {
				results[j], errs[j] = c.FetchTransaction(ctx, sig.Signature)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return err
		}

		batch := Batch{
			Index:     index,
			Total:     total,
			Attempted: len(chunk),
			Records:   make([]*TransactionRecord, 0, len(chunk)),
		}
		for j, rec := range results {
			err := errs[j]
			switch {
			case err == nil && rec != nil:
				if rec.BlockTime == nil {
					rec.BlockTime = chunk[j].BlockTime
				}
				batch.Records = append(batch.Records, rec)
			case err == nil || IsNotFound(err):
				batch.NotFound++
				c.logger.DebugContext(ctx, "transaction not available, skipping",
					"signature", chunk[j].Signature.String(),
				)
				if c.metrics != nil {
					c.metrics.RecordTransactionSkipped(string(SkipNotFound))
				}
			default:
				batch.Failed++
				c.logger.WarnContext(ctx, "failed to fetch transaction, skipping",
					"signature", chunk[j].Signature.String(),
					"error", err,
				)
				if c.metrics != nil {
					c.metrics.RecordTransactionSkipped(string(SkipFetchError))
				}
			}
		}

		if onBatch != nil {
			onBatch(ctx, batch)
		}
	}

	return nil
}

// FetchTransaction fetches and decodes one transaction.
//
// Each attempt waits for a bucket token and is bounded by RequestTimeout.
// Transient failures are retried with backoff; a rate-limit response
// triggers a cooldown sleep and is returned without retrying.
func (c *Client) FetchTransaction(ctx context.Context, sig solana.Signature) (*TransactionRecord, error) {
	attempt := WithTimeout(func(ctx context.Context) (*rpc.GetTransactionResult, error) {
		start := time.Now()
		result, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: rpc.NewTransactionVersion(0),
		})
		if err == nil && result == nil {
			err = ErrTransactionNotFound
		}
		c.recordCall("GetTransaction", err, start)
		return result, err
	}, c.opts.RequestTimeout)

	gated := func(ctx context.Context) (*rpc.GetTransactionResult, error) {
		if err := c.acquire(ctx); err != nil {
			return nil, err
		}
		return attempt(ctx)
	}

	retryCfg := c.opts.Retry
	retryCfg.OnRetry = func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "failed to get transaction, retrying",
			"signature", sig.String(),
			"error", err,
			"backoff", wait,
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry("GetTransaction", "transient")
		}
	}

	fetch := WithCooldown(WithRetry(gated, retryCfg), CooldownConfig{
		Duration: c.opts.RateLimitCooldown,
		Sleep:    c.sleep,
		OnCooldown: func(err error, wait time.Duration) {
			c.logger.WarnContext(ctx, "rate limited, cooling down",
				"signature", sig.String(),
				"cooldown", wait,
			)
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.opts.Endpoint)
				c.metrics.RecordCooldown(c.opts.Endpoint, wait.Seconds())
			}
		},
	})

	result, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	return recordFromResult(sig, result)
}
