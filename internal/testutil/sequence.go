package testutil

import "sync"

// BaseTimestampMs is the chain time of checkpoint 0 in fixtures.
const BaseTimestampMs uint64 = 1700000000000

// CheckpointIntervalMs is the chain time between consecutive fixture checkpoints.
const CheckpointIntervalMs uint64 = 250

// ChainClock hands out consecutive checkpoint sequence numbers with matching
// deterministic timestamps, so fixtures built in any order agree on time.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ChainClock struct {
	mu  sync.Mutex
	seq uint64
}

// NewChainClock creates a clock whose first Next() returns start.
func NewChainClock(start uint64) *ChainClock {
	return &ChainClock{seq: start}
}

// Next returns the next sequence number and its timestamp.
func (c *ChainClock) Next() (seq uint64, timestampMs uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq = c.seq
	c.seq++
	return seq, TimestampFor(seq)
}

// Peek returns the sequence number the next call to Next will return.
func (c *ChainClock) Peek() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// TimestampFor returns the fixture timestamp of checkpoint seq.
func TimestampFor(seq uint64) uint64 {
	return BaseTimestampMs + seq*CheckpointIntervalMs
}
