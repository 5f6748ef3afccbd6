package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/eventidx/internal/chain"
	"github.com/roach88/eventidx/internal/events"
)

// PackageID is the package that fixture events are emitted from.
const PackageID = "0xabc"

// ForeignPackageID is a package the indexer must ignore.
const ForeignPackageID = "0xabd"

// Addr parses a short-form address such as "0x1".
func Addr(s string) chain.Address {
	return chain.MustParseAddress(s)
}

// TypeTag returns the fully qualified type tag for kind as emitted by pkg.
func TypeTag(pkg string, kind events.Kind) string {
	return pkg + "::agent_market::" + kind.String()
}

// Event builds a chain event for ev emitted by PackageID.
func Event(ev events.Event) chain.Event {
	return EventFrom(PackageID, ev)
}

// EventFrom builds a chain event for ev emitted by pkg.
func EventFrom(pkg string, ev events.Event) chain.Event {
	return chain.Event{Type: TypeTag(pkg, ev.Kind()), Contents: events.Encode(ev)}
}

// RawEvent builds a chain event with an arbitrary type tag and payload.
func RawEvent(typeTag string, contents []byte) chain.Event {
	return chain.Event{Type: typeTag, Contents: contents}
}

// CheckpointBuilder assembles a checkpoint fixture.
type CheckpointBuilder struct {
	cp chain.Checkpoint
}

// NewCheckpoint starts a checkpoint with sequence number seq and its
// fixture timestamp.
func NewCheckpoint(seq uint64) *CheckpointBuilder {
	return &CheckpointBuilder{cp: chain.Checkpoint{
		SequenceNumber: seq,
		TimestampMs:    TimestampFor(seq),
	}}
}

// NextCheckpoint starts a checkpoint at the clock's next position.
func NextCheckpoint(c *ChainClock) *CheckpointBuilder {
	seq, ts := c.Next()
	return NewCheckpoint(seq).At(ts)
}

// At overrides the checkpoint timestamp.
func (b *CheckpointBuilder) At(timestampMs uint64) *CheckpointBuilder {
	b.cp.TimestampMs = timestampMs
	return b
}

// Tx appends a transaction. A transaction with no events has nil Events.
func (b *CheckpointBuilder) Tx(digest string, evs ...chain.Event) *CheckpointBuilder {
	tx := chain.Transaction{Digest: digest}
	if len(evs) > 0 {
		tx.Events = evs
	}
	b.cp.Transactions = append(b.cp.Transactions, tx)
	b.cp.NetworkTotalTransactions++
	return b
}

// Build returns the checkpoint.
func (b *CheckpointBuilder) Build() *chain.Checkpoint {
	cp := b.cp
	return &cp
}

// WriteCheckpoints writes each checkpoint as <dir>/<sequence>.json.
func WriteCheckpoints(t *testing.T, dir string, cps ...*chain.Checkpoint) {
	t.Helper()
	for _, cp := range cps {
		data, err := json.Marshal(cp)
		require.NoError(t, err)
		name := filepath.Join(dir, strconv.FormatUint(cp.SequenceNumber, 10)+".json")
		require.NoError(t, os.WriteFile(name, data, 0o644))
	}
}
