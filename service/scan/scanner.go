// Package scan runs a full wallet scan: list signatures, fetch them in
// paced batches, classify each transaction and fold the results.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/brojonat/pumpscan/service/metrics"
	"github.com/brojonat/pumpscan/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Snapshot is the running state reported after each batch.
type Snapshot struct {
	ProcessedCount int             `json:"processed_count"`
	MatchedCount   int             `json:"matched_count"`
	TotalCount     int             `json:"total_count"`
	RunningGain    decimal.Decimal `json:"running_gain"`
	RunningLoss    decimal.Decimal `json:"running_loss"`
	BatchLabel     string          `json:"batch_label"`
}

// ProgressFunc is invoked once per batch, after the batch settles.
type ProgressFunc func(batchIndex, totalBatches int, snap Snapshot)

// Options bound a single scan.
type Options struct {
	// MaxSignatures caps how far back the history is read.
	MaxSignatures int
	// Until stops paging at this signature (exclusive). Used for incremental
	// scans.
	Until *solanago.Signature
}

// Result is everything a scan produced.
type Result struct {
	Wallet string
	Events []solana.Event
	// NewestSignature is the most recent signature seen, matched or not.
	// Empty when the wallet has no new history.
	NewestSignature string
	Signatures      int
	Skipped         map[solana.SkipReason]int
}

// Scanner wires the pager, fetcher and classifier together.
type Scanner struct {
	client        *solana.Client
	classifier    *solana.Classifier
	maxSignatures int
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewScanner creates a Scanner. If metrics is nil, no metrics are recorded.
func NewScanner(client *solana.Client, classifier *solana.Classifier, maxSignatures int, m *metrics.Metrics, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if maxSignatures <= 0 {
		maxSignatures = solana.DefaultMaxSignatures
	}
	return &Scanner{
		client:        client,
		classifier:    classifier,
		maxSignatures: maxSignatures,
		metrics:       m,
		logger:        logger.With("component", "scanner"),
	}
}

// Scan reads the wallet's recent history and returns its pump.fun events,
// newest first.
func (s *Scanner) Scan(ctx context.Context, address string, onProgress ProgressFunc) ([]solana.Event, error) {
	res, err := s.Run(ctx, address, Options{}, onProgress)
	if err != nil {
		return nil, err
	}
	return res.Events, nil
}

// ScanSince is Scan restricted to signatures newer than until.
func (s *Scanner) ScanSince(ctx context.Context, address string, until solanago.Signature, onProgress ProgressFunc) ([]solana.Event, error) {
	opts := Options{}
	if !until.IsZero() {
		opts.Until = &until
	}
	res, err := s.Run(ctx, address, opts, onProgress)
	if err != nil {
		return nil, err
	}
	return res.Events, nil
}

// Run performs a scan and returns the full Result.
//
// Invalid addresses fail before any RPC call. Only listing errors and
// context cancellation abort the scan; per-transaction problems are
// counted in Result.Skipped.
func (s *Scanner) Run(ctx context.Context, address string, opts Options, onProgress ProgressFunc) (*Result, error) {
	start := time.Now()
	res, err := s.run(ctx, address, opts, onProgress)
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordScan(status, time.Since(start).Seconds())
	}
	return res, err
}

func (s *Scanner) run(ctx context.Context, address string, opts Options, onProgress ProgressFunc) (*Result, error) {
	wallet, err := solana.ParseWallet(address)
	if err != nil {
		return nil, err
	}

	limit := opts.MaxSignatures
	if limit <= 0 {
		limit = s.maxSignatures
	}

	sigs, err := s.client.ListSignatures(ctx, wallet, solana.ListSignaturesOptions{
		Max:   limit,
		Until: opts.Until,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list signatures: %w", err)
	}

	s.logger.InfoContext(ctx, "scanning wallet",
		"wallet", address,
		"signatures", len(sigs),
		"batches", s.client.TotalBatches(len(sigs)),
	)

	res := &Result{
		Wallet:     address,
		Events:     []solana.Event{},
		Signatures: len(sigs),
		Skipped:    make(map[solana.SkipReason]int),
	}
	if len(sigs) > 0 {
		res.NewestSignature = sigs[0].Signature.String()
	}

	snap := Snapshot{
		TotalCount:  len(sigs),
		RunningGain: decimal.Zero,
		RunningLoss: decimal.Zero,
	}

	err = s.client.FetchBatches(ctx, sigs, func(ctx context.Context, b solana.Batch) {
		res.Skipped[solana.SkipNotFound] += b.NotFound
		res.Skipped[solana.SkipFetchError] += b.Failed

		for _, rec := range b.Records {
			ev, reason := s.classifier.Classify(ctx, rec, wallet)
			if ev == nil {
				res.Skipped[reason]++
				if s.metrics != nil {
					s.metrics.RecordTransactionSkipped(string(reason))
				}
				continue
			}
			if s.metrics != nil {
				s.metrics.RecordEventClassified(string(ev.Kind))
			}
			res.Events = append(res.Events, *ev)
			snap.MatchedCount++
			switch ev.Kind {
			case solana.KindGain:
				snap.RunningGain = snap.RunningGain.Add(ev.Amount)
			case solana.KindLoss:
				snap.RunningLoss = snap.RunningLoss.Add(ev.Amount)
			}
		}

		snap.ProcessedCount += b.Attempted
		snap.BatchLabel = fmt.Sprintf("Batch %d/%d", b.Index, b.Total)
		if onProgress != nil {
			onProgress(b.Index, b.Total, snap)
		}
	})
	if err != nil {
		return nil, err
	}

	SortNewestFirst(res.Events)

	s.logger.InfoContext(ctx, "scan complete",
		"wallet", address,
		"signatures", len(sigs),
		"events", len(res.Events),
	)
	return res, nil
}

// SortNewestFirst orders events by timestamp, newest first. Ties break on
// slot and then signature so the order is deterministic.
func SortNewestFirst(events []solana.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if a.Slot != b.Slot {
			return a.Slot > b.Slot
		}
		return a.Signature > b.Signature
	})
}
