// Package ingest drives checkpoints from a Source through the scanner and
// into the store.
//
// Each batch of checkpoints is scanned in parallel, then committed together
// with the pipeline watermark in one transaction, so a restart resumes from
// the checkpoint after the last committed one.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/eventidx/internal/chain"
	"github.com/roach88/eventidx/internal/config"
	"github.com/roach88/eventidx/internal/metrics"
	"github.com/roach88/eventidx/internal/mutation"
	"github.com/roach88/eventidx/internal/pipeline"
	"github.com/roach88/eventidx/internal/store"
)

// ErrOutOfOrder is returned when a source delivers a checkpoint that does not
// follow the previous one.
var ErrOutOfOrder = errors.New("checkpoint out of order")

// Store is the part of *store.Store the runner needs.
type Store interface {
	Watermark(ctx context.Context, pipeline string) (store.Watermark, bool, error)
	CommitWithWatermark(ctx context.Context, ms []mutation.Mutation, wm store.Watermark) (int64, error)
}

// Runner indexes one pipeline.
type Runner struct {
	store   Store
	scanner *pipeline.Scanner
	source  Source
	cfg     config.IngestConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	runID   uuid.UUID

	newBackOff func() backoff.BackOff
}

// NewRunner wires a runner. m may be nil; a nil logger uses slog.Default().
func NewRunner(st Store, scanner *pipeline.Scanner, src Source, cfg config.IngestConfig, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.Must(uuid.NewV7())
	r := &Runner{
		store:   st,
		scanner: scanner,
		source:  src,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("run_id", runID.String(), "pipeline", scanner.Variant().Name),
		runID:   runID,
	}
	r.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		// A zero MaxElapsedTime never stops; keep the library default then.
		if cfg.BackoffMaxElapsed > 0 {
			b.MaxElapsedTime = cfg.BackoffMaxElapsed
		}
		return b
	}
	return r
}

// RunID identifies this runner in logs.
func (r *Runner) RunID() uuid.UUID {
	return r.runID
}

// Pipeline returns the watermark name the runner commits under.
func (r *Runner) Pipeline() string {
	return r.scanner.Variant().Name
}

// Run indexes batches until the source is drained. With follow it keeps
// polling every poll interval until ctx is cancelled, and returns ctx.Err().
func (r *Runner) Run(ctx context.Context, follow bool) error {
	r.logger.Info("ingest starting", "follow", follow)
	for {
		n, err := r.Step(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if !follow {
			r.logger.Info("source drained")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

// Step fetches, scans and commits one batch. It returns the number of
// checkpoints committed, zero when the source had nothing new.
func (r *Runner) Step(ctx context.Context) (int, error) {
	next, err := r.nextCheckpoint(ctx)
	if err != nil {
		return 0, err
	}

	cps, err := r.source.Fetch(ctx, next, r.cfg.BatchCheckpoints)
	if err != nil {
		return 0, fmt.Errorf("fetch from %d: %w", next, err)
	}
	if len(cps) == 0 {
		return 0, nil
	}
	if err := checkOrder(next, cps); err != nil {
		return 0, err
	}

	ms, err := r.scanAll(ctx, cps)
	if err != nil {
		return 0, err
	}
	r.metrics.ObserveScan(len(cps))

	last := cps[len(cps)-1]
	wm, err := watermarkFor(r.Pipeline(), last)
	if err != nil {
		return 0, err
	}

	rows, err := r.commitWithRetry(ctx, ms, wm)
	if err != nil {
		return 0, err
	}

	r.logger.Info("batch committed",
		"checkpoint_lo", cps[0].SequenceNumber,
		"checkpoint", last.SequenceNumber,
		"mutations", len(ms),
		"rows", rows,
	)
	return len(cps), nil
}

// nextCheckpoint is one past the committed watermark, or the configured
// first checkpoint for a pipeline that has never committed.
func (r *Runner) nextCheckpoint(ctx context.Context) (uint64, error) {
	wm, found, err := r.store.Watermark(ctx, r.Pipeline())
	if err != nil {
		return 0, err
	}
	if !found {
		return r.cfg.FirstCheckpoint, nil
	}
	next := uint64(wm.CheckpointHiInclusive) + 1
	if next < r.cfg.FirstCheckpoint {
		return r.cfg.FirstCheckpoint, nil
	}
	return next, nil
}

func checkOrder(from uint64, cps []*chain.Checkpoint) error {
	if cps[0].SequenceNumber < from {
		return fmt.Errorf("%w: got %d, want at least %d", ErrOutOfOrder, cps[0].SequenceNumber, from)
	}
	for i := 1; i < len(cps); i++ {
		if cps[i].SequenceNumber <= cps[i-1].SequenceNumber {
			return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, cps[i].SequenceNumber, cps[i-1].SequenceNumber)
		}
	}
	return nil
}

// scanAll scans cps on up to ScanWorkers goroutines and concatenates the
// results in checkpoint order.
func (r *Runner) scanAll(ctx context.Context, cps []*chain.Checkpoint) ([]mutation.Mutation, error) {
	results := make([][]mutation.Mutation, len(cps))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.cfg.ScanWorkers, 1))
	for i, cp := range cps {
		i, cp := i, cp
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ms, err := r.scanner.Scan(cp)
			if err != nil {
				return err
			}
			results[i] = ms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []mutation.Mutation
	for _, ms := range results {
		out = append(out, ms...)
	}
	return out, nil
}

// commitWithRetry retries transient commit failures with exponential backoff
// until BackoffMaxElapsed has passed or ctx is cancelled. Constraint
// violations and malformed mutations fail the batch on the first attempt.
func (r *Runner) commitWithRetry(ctx context.Context, ms []mutation.Mutation, wm store.Watermark) (int64, error) {
	var rows int64
	err := backoff.RetryNotify(
		func() error {
			start := time.Now()
			n, err := r.store.CommitWithWatermark(ctx, ms, wm)
			if err != nil {
				r.metrics.ObserveCommitError()
				if ctx.Err() != nil || store.IsPermanent(err) {
					return backoff.Permanent(err)
				}
				return err
			}
			rows = n
			r.metrics.ObserveCommit(wm.Pipeline, ms, n, uint64(wm.CheckpointHiInclusive), time.Since(start))
			return nil
		},
		backoff.WithContext(r.newBackOff(), ctx),
		func(err error, d time.Duration) {
			r.logger.Warn("commit failed, retrying",
				"checkpoint", wm.CheckpointHiInclusive,
				"error", err,
				"retry_in", d,
			)
		},
	)
	if err != nil {
		return 0, fmt.Errorf("commit checkpoint %d: %w", wm.CheckpointHiInclusive, err)
	}
	return rows, nil
}

// watermarkFor describes progress up to and including cp.
func watermarkFor(pipelineName string, cp *chain.Checkpoint) (store.Watermark, error) {
	fields := []struct {
		name string
		v    uint64
	}{
		{"epoch", cp.Epoch},
		{"sequence_number", cp.SequenceNumber},
		{"network_total_transactions", cp.NetworkTotalTransactions},
		{"timestamp_ms", cp.TimestampMs},
	}
	vals := make([]int64, len(fields))
	for i, f := range fields {
		v, err := mutation.Narrow(f.name, f.v)
		if err != nil {
			return store.Watermark{}, fmt.Errorf("watermark for checkpoint %d: %w", cp.SequenceNumber, err)
		}
		vals[i] = v
	}
	return store.Watermark{
		Pipeline:               pipelineName,
		EpochHiInclusive:       vals[0],
		CheckpointHiInclusive:  vals[1],
		TxHi:                   vals[2],
		TimestampMsHiInclusive: vals[3],
	}, nil
}
