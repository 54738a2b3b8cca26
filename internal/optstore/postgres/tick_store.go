package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"deribitarb/internal/domain"
)

// TickStore implements domain.TickStore using PostgreSQL.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore creates a TickStore backed by the given connection pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

const tickSelectCols = `instrument_name, timestamp, bid_price, bid_amount,
	ask_price, ask_amount, mark_iv, index_price`

func scanTickRows(rows pgx.Rows) ([]domain.Tick, error) {
	var ticks []domain.Tick
	for rows.Next() {
		var t domain.Tick
		if err := rows.Scan(
			&t.InstrumentName, &t.Timestamp,
			&t.BidPrice, &t.BidAmount,
			&t.AskPrice, &t.AskAmount,
			&t.MarkIV, &t.IndexPrice,
		); err != nil {
			return nil, err
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// InsertBatch inserts ticks using a pgx Batch. Duplicate observations (same
// instrument and timestamp) are silently skipped.
func (s *TickStore) InsertBatch(ctx context.Context, ticks []domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO option_ticks (
			instrument_name, timestamp, bid_price, bid_amount,
			ask_price, ask_amount, mark_iv, index_price
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8
		) ON CONFLICT (instrument_name, timestamp) DO NOTHING`

	for _, t := range ticks {
		batch.Queue(query,
			t.InstrumentName, t.Timestamp,
			t.BidPrice, t.BidAmount,
			t.AskPrice, t.AskAmount,
			t.MarkIV, t.IndexPrice,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range ticks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert tick batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByInstrument returns ticks for an instrument, newest first, with
// optional time filtering and limit.
func (s *TickStore) ListByInstrument(ctx context.Context, name string, rng domain.TickRange) ([]domain.Tick, error) {
	query := `SELECT ` + tickSelectCols + ` FROM option_ticks WHERE instrument_name = $1`
	args := []any{name}
	argIdx := 2

	if !rng.Since.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, rng.Since)
		argIdx++
	}
	if !rng.Until.IsZero() {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, rng.Until)
		argIdx++
	}

	query += " ORDER BY timestamp DESC"

	if rng.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, rng.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ticks: %w", err)
	}
	defer rows.Close()

	ticks, err := scanTickRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan ticks: %w", err)
	}
	return ticks, nil
}

// LastTimestamp returns the most recent tick timestamp for an instrument, or
// the zero time when none exist.
func (s *TickStore) LastTimestamp(ctx context.Context, name string) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(timestamp) FROM option_ticks WHERE instrument_name = $1",
		name,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: last tick timestamp: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}

// Prune deletes ticks older than the cutoff and returns the number removed.
func (s *TickStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM option_ticks WHERE timestamp < $1", olderThan)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune ticks: %w", err)
	}
	return tag.RowsAffected(), nil
}
