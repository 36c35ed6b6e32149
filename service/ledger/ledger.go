// Package ledger keeps a wallet's cached events and aggregates in sync
// with the chain.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/pumpscan/service/db"
	"github.com/brojonat/pumpscan/service/scan"
	"github.com/brojonat/pumpscan/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// Scanner runs a wallet scan.
type Scanner interface {
	Run(ctx context.Context, address string, opts scan.Options, onProgress scan.ProgressFunc) (*scan.Result, error)
}

// Store is the persistence the ledger needs.
type Store interface {
	GetSyncInfo(ctx context.Context, address string) (*db.SyncInfo, error)
	SaveEvents(ctx context.Context, wallet string, events []solana.Event) (db.SaveEventsResult, error)
	ListEvents(ctx context.Context, wallet string, limit, offset int) ([]solana.Event, error)
	UpsertWalletStats(ctx context.Context, params db.UpsertWalletStatsParams) (*db.WalletStats, error)
	GetWalletRank(ctx context.Context, address string) (*db.Rank, error)
	ClearWalletCache(ctx context.Context, address string) (int64, error)
}

// Report describes one sync.
type Report struct {
	Address      string       `json:"address"`
	Summary      scan.Summary `json:"summary"`
	Incremental  bool         `json:"incremental"`
	Signatures   int          `json:"signatures"`
	NewEvents    int          `json:"new_events"`
	Rank         int          `json:"rank"`
	Participants int          `json:"participants"`
	SyncedAt     time.Time    `json:"synced_at"`
}

// Ledger syncs wallets into the store.
type Ledger struct {
	scanner  Scanner
	store    Store
	cacheTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Ledger. A cached wallet older than cacheTTL is rescanned
// from the top instead of incrementally; zero disables expiry.
func New(scanner Scanner, store Store, cacheTTL time.Duration, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		scanner:  scanner,
		store:    store,
		cacheTTL: cacheTTL,
		logger:   logger.With("component", "ledger"),
		now:      time.Now,
	}
}

// SyncWallet scans address for history newer than the cache, stores new
// events and recomputes the wallet's aggregates from everything cached.
// With force set, the cache is dropped first.
func (l *Ledger) SyncWallet(ctx context.Context, address string, force bool, onProgress scan.ProgressFunc) (*Report, error) {
	if _, err := solana.ParseWallet(address); err != nil {
		return nil, err
	}

	if force {
		deleted, err := l.store.ClearWalletCache(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("failed to clear cache: %w", err)
		}
		l.logger.InfoContext(ctx, "cleared wallet cache", "wallet", address, "events_deleted", deleted)
	}

	opts, err := l.scanOptions(ctx, address)
	if err != nil {
		return nil, err
	}

	res, err := l.scanner.Run(ctx, address, opts, onProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}

	saved, err := l.store.SaveEvents(ctx, address, res.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to save events: %w", err)
	}

	all, err := l.store.ListEvents(ctx, address, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached events: %w", err)
	}
	summary := scan.Summarize(all)

	syncedAt := l.now().UTC()
	var newest *string
	if res.NewestSignature != "" {
		newest = &res.NewestSignature
	}
	_, err = l.store.UpsertWalletStats(ctx, db.UpsertWalletStatsParams{
		Address:           address,
		TotalLosses:       summary.TotalLosses,
		TotalGains:        summary.TotalGains,
		NetResult:         summary.NetResult,
		TotalTransactions: summary.Events,
		BiggestLoss:       summary.BiggestLoss,
		BiggestGain:       summary.BiggestGain,
		LastSyncSignature: newest,
		SyncedAt:          syncedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update wallet stats: %w", err)
	}

	rank, err := l.store.GetWalletRank(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet rank: %w", err)
	}

	report := &Report{
		Address:      address,
		Summary:      summary,
		Incremental:  opts.Until != nil,
		Signatures:   res.Signatures,
		NewEvents:    saved.Written,
		Rank:         rank.Rank,
		Participants: rank.Participants,
		SyncedAt:     syncedAt,
	}

	l.logger.InfoContext(ctx, "wallet synced",
		"wallet", address,
		"incremental", report.Incremental,
		"signatures", report.Signatures,
		"new_events", report.NewEvents,
		"total_losses", summary.TotalLosses.String(),
		"net_result", summary.NetResult.String(),
		"rank", report.Rank,
	)

	return report, nil
}

// scanOptions picks an incremental scan when the cache is fresh.
func (l *Ledger) scanOptions(ctx context.Context, address string) (scan.Options, error) {
	info, err := l.store.GetSyncInfo(ctx, address)
	if errors.Is(err, db.ErrNotFound) {
		return scan.Options{}, nil
	}
	if err != nil {
		return scan.Options{}, fmt.Errorf("failed to get sync info: %w", err)
	}

	if l.cacheTTL > 0 && l.now().Sub(info.LastSyncAt) > l.cacheTTL {
		l.logger.DebugContext(ctx, "wallet cache expired, rescanning",
			"wallet", address,
			"last_sync_at", info.LastSyncAt,
		)
		return scan.Options{}, nil
	}

	until, err := solanago.SignatureFromBase58(info.LastSignature)
	if err != nil {
		l.logger.WarnContext(ctx, "stored sync signature is invalid, rescanning",
			"wallet", address,
			"signature", info.LastSignature,
			"error", err,
		)
		return scan.Options{}, nil
	}
	return scan.Options{Until: &until}, nil
}
