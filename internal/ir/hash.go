package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Domain prefixes for content-addressed keys.
// The version suffix allows the algorithm to change without colliding.
const (
	DomainEvent = "eventidx/event/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null byte separator removes domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventKey identifies one emitted event by its position on chain.
// It is stable across re-delivery of the same checkpoint, so rows without a
// natural key can still be inserted idempotently.
func EventKey(checkpoint uint64, txDigest string, eventIndex int) (string, error) {
	obj := map[string]any{
		"checkpoint":  strconv.FormatUint(checkpoint, 10),
		"tx_digest":   txDigest,
		"event_index": eventIndex,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustEventKey is like EventKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEventKey(checkpoint uint64, txDigest string, eventIndex int) string {
	key, err := EventKey(checkpoint, txDigest, eventIndex)
	if err != nil {
		panic(err)
	}
	return key
}
