package pipeline

import (
	"errors"
	"fmt"
)

// ScanError represents a failure to turn an admitted event into mutations.
// Any ScanError aborts the whole checkpoint; no partial output is returned.
type ScanError struct {
	// Code identifies the error category.
	Code ScanErrorCode

	// Checkpoint is the sequence number being scanned.
	Checkpoint uint64

	// TxDigest and EventIndex locate the failing event. Empty for
	// checkpoint-level failures.
	TxDigest   string
	EventIndex int

	// EventType is the full type tag of the failing event.
	EventType string

	// Err is the underlying decode or narrowing error.
	Err error
}

// ScanErrorCode categorizes scan errors.
type ScanErrorCode string

const (
	// ErrCodeDecodeFailed indicates a payload that does not match its kind's layout.
	ErrCodeDecodeFailed ScanErrorCode = "DECODE_FAILED"

	// ErrCodeNarrowingFailed indicates an amount above the signed 64-bit range.
	ErrCodeNarrowingFailed ScanErrorCode = "NARROWING_FAILED"

	// ErrCodeInvalidTimestamp indicates a checkpoint timestamp above the signed 64-bit range.
	ErrCodeInvalidTimestamp ScanErrorCode = "INVALID_TIMESTAMP"
)

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.TxDigest != "" {
		return fmt.Sprintf("%s: %v (checkpoint=%d, tx=%s, event=%d, type=%s)",
			e.Code, e.Err, e.Checkpoint, e.TxDigest, e.EventIndex, e.EventType)
	}
	return fmt.Sprintf("%s: %v (checkpoint=%d)", e.Code, e.Err, e.Checkpoint)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// IsDecodeError returns true if err is a ScanError of any code.
// Every code means the checkpoint cannot be indexed as delivered.
// Uses errors.As to handle wrapped errors.
func IsDecodeError(err error) bool {
	var se *ScanError
	return errors.As(err, &se)
}

// IsNarrowingError returns true if err is a ScanError for an out-of-range amount.
func IsNarrowingError(err error) bool {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Code == ErrCodeNarrowingFailed || se.Code == ErrCodeInvalidTimestamp
	}
	return false
}
