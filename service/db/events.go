package db

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/pumpscan/service/solana"
	"github.com/jackc/pgx/v5"
)

// SaveEventsResult counts what SaveEvents did.
type SaveEventsResult struct {
	Written int
	Skipped int
}

// SaveEvents caches classified events for a wallet. Events already stored
// for the wallet are skipped, so saving the same scan twice is harmless.
func (s *Store) SaveEvents(ctx context.Context, wallet string, events []solana.Event) (res SaveEventsResult, err error) {
	if len(events) == 0 {
		return res, nil
	}

	start := time.Now()
	defer func() { s.observe("save_events", "wallet_transactions", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO wallet_transactions (
			wallet_address, signature, slot, block_time, kind, amount, lamports, success
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (wallet_address, signature) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(query,
			wallet,
			ev.Signature,
			int64(ev.Slot),
			ev.Timestamp,
			string(ev.Kind),
			ev.Amount,
			ev.Lamports,
			ev.Success,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range events {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return SaveEventsResult{}, fmt.Errorf("insert event: %w", err)
		}
		if tag.RowsAffected() == 1 {
			res.Written++
		} else {
			res.Skipped++
		}
	}
	if err := br.Close(); err != nil {
		return SaveEventsResult{}, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return SaveEventsResult{}, fmt.Errorf("commit tx: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordEventsWritten(res.Written)
	}
	return res, nil
}

// ListEvents returns a page of a wallet's cached events, newest first.
// A limit of zero or less returns every event.
func (s *Store) ListEvents(ctx context.Context, wallet string, limit, offset int) (events []solana.Event, err error) {
	start := time.Now()
	defer func() { s.observe("list_events", "wallet_transactions", start, err) }()

	query := `
		SELECT signature, slot, block_time, kind, amount, lamports, success
		FROM wallet_transactions
		WHERE wallet_address = $1
		ORDER BY block_time DESC, slot DESC, signature DESC
		LIMIT $2 OFFSET $3
	`

	// LIMIT NULL means no limit.
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx, query, wallet, lim, offset)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events = []solana.Event{}
	for rows.Next() {
		var (
			ev   solana.Event
			slot int64
			kind string
		)
		if err := rows.Scan(&ev.Signature, &slot, &ev.Timestamp, &kind, &ev.Amount, &ev.Lamports, &ev.Success); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Slot = uint64(slot)
		ev.Kind = solana.Kind(kind)
		ev.Timestamp = ev.Timestamp.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// CountEvents returns how many events are cached for a wallet.
func (s *Store) CountEvents(ctx context.Context, wallet string) (n int, err error) {
	start := time.Now()
	defer func() { s.observe("count_events", "wallet_transactions", start, err) }()

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM wallet_transactions WHERE wallet_address = $1`,
		wallet,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
