package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/eventidx/internal/mutation"
)

// Watermark records how far a pipeline has committed.
type Watermark struct {
	Pipeline               string
	EpochHiInclusive       int64
	CheckpointHiInclusive  int64
	TxHi                   int64
	TimestampMsHiInclusive int64
	ReaderLo               int64
	PrunerHi               int64
}

// Watermark returns the committed progress of pipeline.
// found is false if the pipeline has never committed.
func (s *Store) Watermark(ctx context.Context, pipeline string) (wm Watermark, found bool, err error) {
	query := fmt.Sprintf(`
		SELECT pipeline, epoch_hi_inclusive, checkpoint_hi_inclusive, tx_hi,
		       timestamp_ms_hi_inclusive, reader_lo, pruner_hi
		FROM watermarks
		WHERE pipeline = %s
	`, s.placeholder(1))

	err = s.db.QueryRowContext(ctx, query, pipeline).Scan(
		&wm.Pipeline,
		&wm.EpochHiInclusive,
		&wm.CheckpointHiInclusive,
		&wm.TxHi,
		&wm.TimestampMsHiInclusive,
		&wm.ReaderLo,
		&wm.PrunerHi,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Watermark{}, false, nil
	}
	if err != nil {
		return Watermark{}, false, fmt.Errorf("read watermark: %w", err)
	}
	return wm, true, nil
}

// writeWatermark upserts wm. The stored watermark never moves backwards:
// a write at or below the current checkpoint is ignored.
func (s *Store) writeWatermark(ctx context.Context, tx *sql.Tx, wm Watermark) error {
	p := s.placeholder
	query := fmt.Sprintf(`
		INSERT INTO watermarks
		(pipeline, epoch_hi_inclusive, checkpoint_hi_inclusive, tx_hi,
		 timestamp_ms_hi_inclusive, reader_lo, pruner_hi)
		VALUES (%s, %s, %s, %s, %s, %s, %s)
		ON CONFLICT (pipeline) DO UPDATE SET
			epoch_hi_inclusive = excluded.epoch_hi_inclusive,
			checkpoint_hi_inclusive = excluded.checkpoint_hi_inclusive,
			tx_hi = excluded.tx_hi,
			timestamp_ms_hi_inclusive = excluded.timestamp_ms_hi_inclusive
		WHERE watermarks.checkpoint_hi_inclusive < excluded.checkpoint_hi_inclusive
	`, p(1), p(2), p(3), p(4), p(5), p(6), p(7))

	_, err := tx.ExecContext(ctx, query,
		wm.Pipeline,
		wm.EpochHiInclusive,
		wm.CheckpointHiInclusive,
		wm.TxHi,
		wm.TimestampMsHiInclusive,
		wm.ReaderLo,
		wm.PrunerHi,
	)
	if err != nil {
		return fmt.Errorf("write watermark: %w", err)
	}
	return nil
}

// Counts returns the number of rows in every entity table.
func (s *Store) Counts(ctx context.Context) (map[mutation.Table]int64, error) {
	counts := make(map[mutation.Table]int64, len(mutation.Tables()))
	for _, t := range mutation.Tables() {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteTable(t)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", t, err)
		}
		counts[t] = n
	}
	return counts, nil
}
