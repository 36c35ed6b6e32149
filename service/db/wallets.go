package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// WalletStats is the aggregate row for one wallet.
type WalletStats struct {
	Address           string          `json:"address"`
	TotalLosses       decimal.Decimal `json:"total_losses"`
	TotalGains        decimal.Decimal `json:"total_gains"`
	NetResult         decimal.Decimal `json:"net_result"`
	TotalTransactions int             `json:"total_transactions"`
	BiggestLoss       decimal.Decimal `json:"biggest_loss"`
	BiggestGain       decimal.Decimal `json:"biggest_gain"`
	LastSyncSignature *string         `json:"last_sync_signature,omitempty"`
	LastSyncAt        *time.Time      `json:"last_sync_at,omitempty"`
	LastUpdated       time.Time       `json:"last_updated"`
}

// UpsertWalletStatsParams contains the parameters for writing wallet stats.
type UpsertWalletStatsParams struct {
	Address           string
	TotalLosses       decimal.Decimal
	TotalGains        decimal.Decimal
	NetResult         decimal.Decimal
	TotalTransactions int
	BiggestLoss       decimal.Decimal
	BiggestGain       decimal.Decimal
	// LastSyncSignature is left unchanged when nil.
	LastSyncSignature *string
	SyncedAt          time.Time
}

// SyncInfo says how far a wallet's cache reaches.
type SyncInfo struct {
	LastSignature string
	LastSyncAt    time.Time
}

// Rank is a wallet's position on the losses leaderboard.
type Rank struct {
	Rank         int `json:"rank"`
	Participants int `json:"participants"`
}

// UpsertWalletStats creates or replaces a wallet's aggregates.
func (s *Store) UpsertWalletStats(ctx context.Context, params UpsertWalletStatsParams) (stats *WalletStats, err error) {
	start := time.Now()
	defer func() { s.observe("upsert_wallet_stats", "wallet_losses", start, err) }()

	query := `
		INSERT INTO wallet_losses (
			wallet_address, total_losses, total_gains, net_result, total_transactions,
			biggest_loss, biggest_gain, last_sync_signature, last_sync_at, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (wallet_address) DO UPDATE SET
			total_losses        = EXCLUDED.total_losses,
			total_gains         = EXCLUDED.total_gains,
			net_result          = EXCLUDED.net_result,
			total_transactions  = EXCLUDED.total_transactions,
			biggest_loss        = EXCLUDED.biggest_loss,
			biggest_gain        = EXCLUDED.biggest_gain,
			last_sync_signature = COALESCE(EXCLUDED.last_sync_signature, wallet_losses.last_sync_signature),
			last_sync_at        = EXCLUDED.last_sync_at,
			last_updated        = EXCLUDED.last_updated
		RETURNING ` + walletColumns

	row := s.pool.QueryRow(ctx, query,
		params.Address,
		params.TotalLosses,
		params.TotalGains,
		params.NetResult,
		params.TotalTransactions,
		params.BiggestLoss,
		params.BiggestGain,
		pgtextFromStringPtr(params.LastSyncSignature),
		pgtype.Timestamptz{Time: params.SyncedAt, Valid: true},
	)
	stats, err = scanWalletStats(row)
	if err != nil {
		return nil, fmt.Errorf("upsert wallet stats: %w", err)
	}
	return stats, nil
}

// GetWalletStats returns a wallet's aggregates, or ErrNotFound.
func (s *Store) GetWalletStats(ctx context.Context, address string) (stats *WalletStats, err error) {
	start := time.Now()
	defer func() { s.observe("get_wallet_stats", "wallet_losses", start, err) }()

	row := s.pool.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallet_losses WHERE wallet_address = $1`,
		address,
	)
	stats, err = scanWalletStats(row)
	if isNotFoundError(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet stats: %w", err)
	}
	return stats, nil
}

// GetWalletRank ranks a wallet by total losses, biggest first. Ties share
// a rank.
func (s *Store) GetWalletRank(ctx context.Context, address string) (rank *Rank, err error) {
	start := time.Now()
	defer func() { s.observe("get_wallet_rank", "wallet_losses", start, err) }()

	query := `
		SELECT ranked.rank, ranked.participants
		FROM (
			SELECT wallet_address,
			       RANK() OVER (ORDER BY total_losses DESC) AS rank,
			       COUNT(*) OVER () AS participants
			FROM wallet_losses
		) ranked
		WHERE ranked.wallet_address = $1
	`

	var r, n int64
	err = s.pool.QueryRow(ctx, query, address).Scan(&r, &n)
	if isNotFoundError(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet rank: %w", err)
	}
	return &Rank{Rank: int(r), Participants: int(n)}, nil
}

// GetSyncInfo returns the newest signature already cached for a wallet,
// or ErrNotFound if the wallet has never synced.
func (s *Store) GetSyncInfo(ctx context.Context, address string) (info *SyncInfo, err error) {
	start := time.Now()
	defer func() { s.observe("get_sync_info", "wallet_losses", start, err) }()

	var (
		sig pgtype.Text
		at  pgtype.Timestamptz
	)
	err = s.pool.QueryRow(ctx,
		`SELECT last_sync_signature, last_sync_at FROM wallet_losses WHERE wallet_address = $1`,
		address,
	).Scan(&sig, &at)
	if isNotFoundError(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sync info: %w", err)
	}
	if !sig.Valid || !at.Valid {
		return nil, ErrNotFound
	}
	return &SyncInfo{LastSignature: sig.String, LastSyncAt: at.Time}, nil
}

// ClearWalletCache drops a wallet's cached events and sync marker so the
// next sync rescans from scratch. The aggregate row is kept until then.
func (s *Store) ClearWalletCache(ctx context.Context, address string) (deleted int64, err error) {
	start := time.Now()
	defer func() { s.observe("clear_wallet_cache", "wallet_transactions", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM wallet_transactions WHERE wallet_address = $1`, address)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE wallet_losses SET last_sync_signature = NULL, last_sync_at = NULL WHERE wallet_address = $1`,
		address,
	)
	if err != nil {
		return 0, fmt.Errorf("reset sync marker: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return tag.RowsAffected(), nil
}

const walletColumns = `wallet_address, total_losses, total_gains, net_result, total_transactions,
	biggest_loss, biggest_gain, last_sync_signature, last_sync_at, last_updated`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWalletStats(row rowScanner) (*WalletStats, error) {
	var (
		w       WalletStats
		sig     pgtype.Text
		syncAt  pgtype.Timestamptz
		updated pgtype.Timestamptz
	)
	err := row.Scan(
		&w.Address,
		&w.TotalLosses,
		&w.TotalGains,
		&w.NetResult,
		&w.TotalTransactions,
		&w.BiggestLoss,
		&w.BiggestGain,
		&sig,
		&syncAt,
		&updated,
	)
	if err != nil {
		return nil, err
	}
	w.LastSyncSignature = stringPtrFromPgtext(sig)
	w.LastSyncAt = timePtrFromPgTimestamptz(syncAt)
	w.LastUpdated = updated.Time.UTC()
	return &w, nil
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func timePtrFromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
