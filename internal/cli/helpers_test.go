package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/eventidx/internal/chain"
	"github.com/roach88/eventidx/internal/config"
	"github.com/roach88/eventidx/internal/events"
	"github.com/roach88/eventidx/internal/mutation"
	"github.com/roach88/eventidx/internal/store"
	"github.com/roach88/eventidx/internal/testutil"
)

var addr = testutil.Addr

// clearEnv keeps the caller's environment out of config resolution.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{config.EnvDatabaseURL, config.EnvDatabaseTLSCA, config.EnvPackageID, config.EnvNetwork} {
		t.Setenv(k, "")
	}
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

func agentCheckpoint(seq uint64, agentID string) *chain.Checkpoint {
	return testutil.NewCheckpoint(seq).
		Tx("tx-"+agentID, testutil.Event(events.AgentRegistered{
			AgentID:            addr(agentID),
			AgentObjectAddress: addr(agentID + "1"),
			AgentOwnerAddress:  addr(agentID + "2"),
			StakeAmount:        1000,
			Timestamp:          testutil.BaseTimestampMs,
		})).
		Build()
}

func offerCheckpoint(seq uint64) *chain.Checkpoint {
	return testutil.NewCheckpoint(seq).
		Tx("tx-offer", testutil.Event(events.BuyOfferCreated{
			BuyOfferID: addr("0x10"), Owner: addr("0x20"), Product: "lamp", Price: 40,
			Timestamp: testutil.BaseTimestampMs + 5,
		})).
		Build()
}

func badCheckpoint(seq uint64) *chain.Checkpoint {
	return testutil.NewCheckpoint(seq).
		Tx("tx-bad", testutil.RawEvent(testutil.TypeTag(testutil.PackageID, events.KindBuyOfferCreated), []byte{0xff})).
		Build()
}

// writeSource writes cps into a fresh checkpoint directory.
func writeSource(t *testing.T, cps ...*chain.Checkpoint) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteCheckpoints(t, dir, cps...)
	return dir
}

func dbURL(t *testing.T) string {
	return "sqlite://" + filepath.Join(t.TempDir(), "idx.db")
}

func tableCounts(t *testing.T, url string) map[mutation.Table]int64 {
	t.Helper()
	st, err := store.Open(context.Background(), store.Options{URL: url})
	require.NoError(t, err)
	defer st.Close()
	counts, err := st.Counts(context.Background())
	require.NoError(t, err)
	return counts
}
