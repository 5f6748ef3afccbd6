package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanError_Error(t *testing.T) {
	err := &ScanError{
		Code:       ErrCodeDecodeFailed,
		Checkpoint: 12,
		TxDigest:   "tx",
		EventIndex: 3,
		EventType:  "0xabc::m::ManualBuy",
		Err:        errors.New("boom"),
	}
	assert.Equal(t, "DECODE_FAILED: boom (checkpoint=12, tx=tx, event=3, type=0xabc::m::ManualBuy)", err.Error())

	cpErr := &ScanError{Code: ErrCodeInvalidTimestamp, Checkpoint: 4, Err: errors.New("too big")}
	assert.Equal(t, "INVALID_TIMESTAMP: too big (checkpoint=4)", cpErr.Error())
}

func TestScanError_Helpers(t *testing.T) {
	narrowing := fmt.Errorf("scan: %w", &ScanError{Code: ErrCodeNarrowingFailed, Err: errors.New("x")})
	assert.True(t, IsDecodeError(narrowing))
	assert.True(t, IsNarrowingError(narrowing))

	assert.False(t, IsDecodeError(errors.New("plain")))
	assert.False(t, IsNarrowingError(errors.New("plain")))
	assert.False(t, IsNarrowingError(nil))
}
