package chain

import (
	"encoding/json"
	"fmt"
	"os"
)

// Checkpoint is an ordered batch of executed transactions, as delivered by the
// checkpoint source. Sequence numbers are strictly increasing across deliveries.
type Checkpoint struct {
	SequenceNumber uint64 `json:"sequence_number"`
	Epoch          uint64 `json:"epoch"`
	TimestampMs    uint64 `json:"timestamp_ms"`

	// NetworkTotalTransactions is the cumulative transaction count of the
	// network up to and including this checkpoint.
	NetworkTotalTransactions uint64 `json:"network_total_transactions"`

	Transactions []Transaction `json:"transactions"`
}

// Transaction is one executed transaction and the events it emitted.
// Events is nil when the transaction produced no events.
type Transaction struct {
	Digest string  `json:"digest"`
	Events []Event `json:"events,omitempty"`
}

// Event is a raw emitted event: a fully qualified type tag such as
// "0xabc::agent::AgentRegistered" and its binary payload.
// Contents is base64 in JSON.
type Event struct {
	Type     string `json:"type"`
	Contents []byte `json:"contents"`
}

// EventCount returns the number of events across all transactions.
func (c *Checkpoint) EventCount() int {
	n := 0
	for _, tx := range c.Transactions {
		n += len(tx.Events)
	}
	return n
}

// DecodeCheckpoint parses a JSON-encoded checkpoint.
func DecodeCheckpoint(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

// ReadCheckpointFile loads a JSON-encoded checkpoint from disk.
func ReadCheckpointFile(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	cp, err := DecodeCheckpoint(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cp, nil
}
