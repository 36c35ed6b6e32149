package solana

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// maxSignaturesPerPage is the largest limit getSignaturesForAddress accepts.
const maxSignaturesPerPage = 1000

// DefaultMaxSignatures caps how far back a scan looks.
const DefaultMaxSignatures = 1000

// ListSignaturesOptions bounds a signature listing.
type ListSignaturesOptions struct {
	// Max is the maximum number of signatures to return. Zero means
	// DefaultMaxSignatures.
	Max int
	// Until stops the listing at this signature, exclusive. Used for
	// incremental scans that only want what is newer than the last sync.
	Until *solana.Signature
}

// ListSignatures returns the wallet's transaction signatures, newest first.
//
// It pages backwards with Before until Max is reached or history runs out.
// An empty result is not an error. Provider errors are returned as-is; the
// pager does not retry.
func (c *Client) ListSignatures(ctx context.Context, wallet solana.PublicKey, opts ListSignaturesOptions) ([]SignatureRecord, error) {
	want := opts.Max
	if want <= 0 {
		want = DefaultMaxSignatures
	}

	out := make([]SignatureRecord, 0, min(want, maxSignaturesPerPage))
	var before solana.Signature

	for len(out) < want {
		limit := min(want-len(out), maxSignaturesPerPage)
		rpcOpts := &rpc.GetSignaturesForAddressOpts{
			Limit:  &limit,
			Before: before,
		}
		if opts.Until != nil {
			rpcOpts.Until = *opts.Until
		}

		c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
			"wallet", wallet.String(),
			"limit", limit,
			"before", before.String(),
			"collected", len(out),
		)

		if err := c.acquire(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		page, err := c.rpc.GetSignaturesForAddress(ctx, wallet, rpcOpts)
		c.recordCall("GetSignaturesForAddress", err, start)
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to get signatures",
				"wallet", wallet.String(),
				"error", err,
			)
			return nil, err
		}
		if c.metrics != nil {
			c.metrics.RecordRPCSignaturesPerCall(c.opts.Endpoint, float64(len(page)))
		}

		for _, sig := range page {
			if sig == nil {
				continue
			}
			out = append(out, signatureToRecord(sig))
		}

		if len(page) < limit || len(out) == 0 {
			break
		}
		before = out[len(out)-1].Signature
	}

	if len(out) > want {
		out = out[:want]
	}

	c.logger.DebugContext(ctx, "fetched transaction signatures",
		"wallet", wallet.String(),
		"count", len(out),
	)

	return out, nil
}
