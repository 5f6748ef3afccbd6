// Package pipeline turns checkpoints into ordered storage mutations.
//
// Scanner is pure: it reads a checkpoint and returns mutations, or a
// *ScanError that aborts the checkpoint. It holds no mutable state and is
// safe to call from multiple goroutines.
package pipeline

import (
	"errors"
	"log/slog"

	"github.com/roach88/eventidx/internal/chain"
	"github.com/roach88/eventidx/internal/events"
	"github.com/roach88/eventidx/internal/mutation"
)

// Scanner admits events from one package and maps them to mutations.
type Scanner struct {
	filter  chain.PackageFilter
	variant Variant
	logger  *slog.Logger
}

// NewScanner creates a scanner. A nil logger uses slog.Default().
func NewScanner(filter chain.PackageFilter, variant Variant, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{filter: filter, variant: variant, logger: logger}
}

// Variant returns the variant the scanner indexes.
func (s *Scanner) Variant() Variant {
	return s.variant
}

// Scan returns the mutations for every admitted event in cp, in transaction
// order then event order. Events from other packages and unrecognized types
// are skipped.
func (s *Scanner) Scan(cp *chain.Checkpoint) ([]mutation.Mutation, error) {
	ts, err := mutation.Narrow("timestamp_ms", cp.TimestampMs)
	if err != nil {
		return nil, &ScanError{Code: ErrCodeInvalidTimestamp, Checkpoint: cp.SequenceNumber, Err: err}
	}

	var out []mutation.Mutation
	for _, tx := range cp.Transactions {
		for i, ev := range tx.Events {
			if !s.filter.Admit(ev.Type) {
				continue
			}
			kind, ok := events.Classify(ev.Type)
			if !ok || !s.variant.Indexes(kind) {
				continue
			}

			s.logger.Debug("event detected",
				"checkpoint", cp.SequenceNumber,
				"tx", tx.Digest,
				"event_type", ev.Type,
			)

			ref := mutation.EventRef{
				Checkpoint:            cp.SequenceNumber,
				TxDigest:              tx.Digest,
				EventIndex:            i,
				CheckpointTimestampMs: ts,
			}
			ms, err := s.scanEvent(kind, ev, ref)
			if err != nil {
				s.logger.Error("event decode failed",
					"checkpoint", cp.SequenceNumber,
					"tx", tx.Digest,
					"event_type", ev.Type,
					"error", err,
				)
				return nil, err
			}
			out = append(out, ms...)
		}
	}

	if len(out) > 0 {
		s.logger.Info("checkpoint scanned",
			"pipeline", s.variant.Name,
			"checkpoint", cp.SequenceNumber,
			"mutations", len(out),
		)
	}
	return out, nil
}

func (s *Scanner) scanEvent(kind events.Kind, ev chain.Event, ref mutation.EventRef) ([]mutation.Mutation, error) {
	fail := func(code ScanErrorCode, err error) *ScanError {
		return &ScanError{
			Code:       code,
			Checkpoint: ref.Checkpoint,
			TxDigest:   ref.TxDigest,
			EventIndex: ref.EventIndex,
			EventType:  ev.Type,
			Err:        err,
		}
	}

	decoded, err := events.Decode(kind, ev.Contents)
	if err != nil {
		return nil, fail(ErrCodeDecodeFailed, err)
	}
	ms, err := mutation.Map(decoded, ref)
	if err != nil {
		if errors.Is(err, mutation.ErrNarrowing) {
			return nil, fail(ErrCodeNarrowingFailed, err)
		}
		return nil, fail(ErrCodeDecodeFailed, err)
	}
	return ms, nil
}
