package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// LeaderboardEntry is one row of the losses leaderboard.
type LeaderboardEntry struct {
	Rank              int             `json:"rank"`
	Address           string          `json:"address"`
	TotalLosses       decimal.Decimal `json:"total_losses"`
	BiggestLoss       decimal.Decimal `json:"biggest_loss"`
	TotalTransactions int             `json:"total_transactions"`
	LastUpdated       time.Time       `json:"last_updated"`
}

// LeaderboardStats summarizes every wallet on the leaderboard.
type LeaderboardStats struct {
	TotalLosses       decimal.Decimal `json:"total_losses"`
	Participants      int             `json:"participants"`
	AverageLoss       decimal.Decimal `json:"average_loss"`
	BiggestLoss       decimal.Decimal `json:"biggest_loss"`
	TotalTransactions int64           `json:"total_transactions"`
	LastUpdated       *time.Time      `json:"last_updated,omitempty"`
}

// LeaderboardSnapshot is a stored copy of LeaderboardStats.
type LeaderboardSnapshot struct {
	ID                int64           `json:"id"`
	TakenAt           time.Time       `json:"taken_at"`
	Participants      int             `json:"participants"`
	TotalLosses       decimal.Decimal `json:"total_losses"`
	AverageLoss       decimal.Decimal `json:"average_loss"`
	BiggestLoss       decimal.Decimal `json:"biggest_loss"`
	TotalTransactions int64           `json:"total_transactions"`
}

// ListTopLosers returns wallets with losses, biggest first.
func (s *Store) ListTopLosers(ctx context.Context, limit int) (entries []LeaderboardEntry, err error) {
	start := time.Now()
	defer func() { s.observe("list_top_losers", "wallet_losses", start, err) }()

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT RANK() OVER (ORDER BY total_losses DESC) AS rank,
		       wallet_address, total_losses, biggest_loss, total_transactions, last_updated
		FROM wallet_losses
		WHERE total_losses > 0
		ORDER BY total_losses DESC, wallet_address
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	entries = []LeaderboardEntry{}
	for rows.Next() {
		var (
			e    LeaderboardEntry
			rank int64
		)
		if err := rows.Scan(&rank, &e.Address, &e.TotalLosses, &e.BiggestLoss, &e.TotalTransactions, &e.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		e.Rank = int(rank)
		e.LastUpdated = e.LastUpdated.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}

	return entries, nil
}

// GetLeaderboardStats totals the whole leaderboard.
func (s *Store) GetLeaderboardStats(ctx context.Context) (stats *LeaderboardStats, err error) {
	start := time.Now()
	defer func() { s.observe("get_leaderboard_stats", "wallet_losses", start, err) }()

	query := `
		SELECT COALESCE(SUM(total_losses), 0),
		       COUNT(*),
		       COALESCE(ROUND(AVG(total_losses), 9), 0),
		       COALESCE(MAX(biggest_loss), 0),
		       COALESCE(SUM(total_transactions), 0),
		       MAX(last_updated)
		FROM wallet_losses
	`

	var (
		st      LeaderboardStats
		n       int64
		updated pgtype.Timestamptz
	)
	err = s.pool.QueryRow(ctx, query).Scan(
		&st.TotalLosses,
		&n,
		&st.AverageLoss,
		&st.BiggestLoss,
		&st.TotalTransactions,
		&updated,
	)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard stats: %w", err)
	}
	st.Participants = int(n)
	st.LastUpdated = timePtrFromPgTimestamptz(updated)
	return &st, nil
}

// InsertLeaderboardSnapshot stores stats as of takenAt.
func (s *Store) InsertLeaderboardSnapshot(ctx context.Context, stats LeaderboardStats, takenAt time.Time) (snap *LeaderboardSnapshot, err error) {
	start := time.Now()
	defer func() { s.observe("insert_leaderboard_snapshot", "leaderboard_snapshots", start, err) }()

	query := `
		INSERT INTO leaderboard_snapshots (
			taken_at, participants, total_losses, average_loss, biggest_loss, total_transactions
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, taken_at, participants, total_losses, average_loss, biggest_loss, total_transactions
	`

	var out LeaderboardSnapshot
	err = s.pool.QueryRow(ctx, query,
		takenAt,
		stats.Participants,
		stats.TotalLosses,
		stats.AverageLoss,
		stats.BiggestLoss,
		stats.TotalTransactions,
	).Scan(
		&out.ID,
		&out.TakenAt,
		&out.Participants,
		&out.TotalLosses,
		&out.AverageLoss,
		&out.BiggestLoss,
		&out.TotalTransactions,
	)
	if err != nil {
		return nil, fmt.Errorf("insert leaderboard snapshot: %w", err)
	}
	out.TakenAt = out.TakenAt.UTC()
	return &out, nil
}

// ListLeaderboardSnapshots returns the most recent snapshots, newest first.
func (s *Store) ListLeaderboardSnapshots(ctx context.Context, limit int) (snaps []LeaderboardSnapshot, err error) {
	start := time.Now()
	defer func() { s.observe("list_leaderboard_snapshots", "leaderboard_snapshots", start, err) }()

	if limit <= 0 {
		limit = 24
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, taken_at, participants, total_losses, average_loss, biggest_loss, total_transactions
		FROM leaderboard_snapshots
		ORDER BY taken_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snaps = []LeaderboardSnapshot{}
	for rows.Next() {
		var sn LeaderboardSnapshot
		if err := rows.Scan(&sn.ID, &sn.TakenAt, &sn.Participants, &sn.TotalLosses, &sn.AverageLoss, &sn.BiggestLoss, &sn.TotalTransactions); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		sn.TakenAt = sn.TakenAt.UTC()
		snaps = append(snaps, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}
