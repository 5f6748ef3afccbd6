package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventidx/internal/chain"
	"github.com/roach88/eventidx/internal/config"
	"github.com/roach88/eventidx/internal/events"
	"github.com/roach88/eventidx/internal/metrics"
	"github.com/roach88/eventidx/internal/mutation"
	"github.com/roach88/eventidx/internal/pipeline"
	"github.com/roach88/eventidx/internal/store"
	"github.com/roach88/eventidx/internal/testutil"
)

var addr = testutil.Addr

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "idx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testConfig() config.IngestConfig {
	return config.IngestConfig{
		BatchCheckpoints:  2,
		ScanWorkers:       3,
		PollInterval:      10 * time.Millisecond,
		BackoffMaxElapsed: time.Second,
	}
}

func newTestRunner(st Store, src Source, variant pipeline.Variant, m *metrics.Metrics) *Runner {
	scanner := pipeline.NewScanner(chain.NewPackageFilter(testutil.PackageID), variant, quietLogger())
	r := NewRunner(st, scanner, src, testConfig(), m, quietLogger())
	r.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)
	}
	return r
}

func agentRegistered(id string) events.AgentRegistered {
	return events.AgentRegistered{
		AgentID:            addr(id),
		AgentObjectAddress: addr(id + "1"),
		AgentOwnerAddress:  addr(id + "2"),
		StakeAmount:        1000,
		Timestamp:          testutil.BaseTimestampMs,
	}
}

// marketHistory creates an agent, opens an offer, receives a sell offer and
// then deletes the offer.
func marketHistory() []*chain.Checkpoint {
	return []*chain.Checkpoint{
		testutil.NewCheckpoint(0).
			Tx("tx-0", testutil.Event(agentRegistered("0xa"))).
			Build(),
		testutil.NewCheckpoint(1).
			Tx("tx-1", testutil.Event(events.BuyOfferCreated{
				BuyOfferID: addr("0x10"), Owner: addr("0x20"), Product: "lamp", Price: 40,
			})).
			Tx("tx-2").
			Build(),
		testutil.NewCheckpoint(2).
			Tx("tx-3", testutil.Event(events.SellOfferMade{
				BuyOfferID: addr("0x10"), SellOfferID: addr("0x11"), AgentID: addr("0xa"),
				AgentAddress: addr("0xa1"), StoreLink: "https://shop.example/lamp", Price: 35,
			})).
			Build(),
		testutil.NewCheckpoint(3).
			Tx("tx-4", testutil.Event(agentRegistered("0xb"))).
			Build(),
	}
}

func requireWatermark(t *testing.T, st *store.Store, pipelineName string) store.Watermark {
	t.Helper()
	wm, found, err := st.Watermark(context.Background(), pipelineName)
	require.NoError(t, err)
	require.True(t, found, "no watermark for %s", pipelineName)
	return wm
}

func TestRun_IndexesUntilDrained(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()

	r := newTestRunner(st, NewMemorySource(marketHistory()...), pipeline.VariantEvents, nil)
	require.NoError(t, r.Run(ctx, false))

	wm := requireWatermark(t, st, "events")
	assert.Equal(t, int64(3), wm.CheckpointHiInclusive)
	assert.Equal(t, int64(testutil.TimestampFor(3)), wm.TimestampMsHiInclusive)

	counts, err := st.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[mutation.TableAgent])
	assert.Equal(t, int64(1), counts[mutation.TableBuyOffer])
	assert.Equal(t, int64(1), counts[mutation.TableSellOffer])
}

func TestRun_ResumesAfterWatermark(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()
	history := marketHistory()

	src := NewMemorySource(history[:2]...)
	r := newTestRunner(st, src, pipeline.VariantEvents, nil)
	require.NoError(t, r.Run(ctx, false))
	assert.Equal(t, int64(1), requireWatermark(t, st, "events").CheckpointHiInclusive)

	n, err := r.Step(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing new to index")

	src.Add(history[2:]...)
	require.NoError(t, newTestRunner(st, src, pipeline.VariantEvents, nil).Run(ctx, false))
	assert.Equal(t, int64(3), requireWatermark(t, st, "events").CheckpointHiInclusive)
}

func TestRun_RedeliveryIsIdempotent(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, newTestRunner(st, NewMemorySource(marketHistory()...), pipeline.VariantEvents, nil).Run(ctx, false))
	before, err := st.Counts(ctx)
	require.NoError(t, err)

	// A second pipeline name replays every checkpoint into the same tables.
	replay := pipeline.Variant{Name: "events-replay", Kinds: pipeline.VariantEvents.Kinds}
	require.NoError(t, newTestRunner(st, NewMemorySource(marketHistory()...), replay, nil).Run(ctx, false))

	after, err := st.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRun_FirstCheckpoint(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()

	r := newTestRunner(st, NewMemorySource(marketHistory()...), pipeline.VariantEvents, nil)
	r.cfg.FirstCheckpoint = 3
	require.NoError(t, r.Run(ctx, false))

	counts, err := st.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[mutation.TableAgent])
	assert.Equal(t, int64(0), counts[mutation.TableBuyOffer])
}

func TestRun_AgentVariantKeepsOwnWatermark(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, newTestRunner(st, NewMemorySource(marketHistory()...), pipeline.VariantAgent, nil).Run(ctx, false))

	assert.Equal(t, int64(3), requireWatermark(t, st, "agent").CheckpointHiInclusive)
	_, found, err := st.Watermark(ctx, "events")
	require.NoError(t, err)
	assert.False(t, found)

	counts, err := st.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[mutation.TableAgent])
	assert.Equal(t, int64(0), counts[mutation.TableBuyOffer])
}

func TestRun_OutOfOrderSource(t *testing.T) {
	st := createTestStore(t)
	h := marketHistory()

	r := newTestRunner(st, NewMemorySource(h[0], h[2], h[1]), pipeline.VariantEvents, nil)
	r.cfg.BatchCheckpoints = 3
	err := r.Run(context.Background(), false)
	require.ErrorIs(t, err, ErrOutOfOrder)

	_, found, err := st.Watermark(context.Background(), "events")
	require.NoError(t, err)
	assert.False(t, found, "nothing committed from a bad batch")
}

func TestRun_DecodeErrorAbortsWithoutRetry(t *testing.T) {
	st := &countingStore{Store: createTestStore(t)}
	bad := testutil.NewCheckpoint(0).
		Tx("tx-bad", testutil.RawEvent(testutil.TypeTag(testutil.PackageID, events.KindAgentRegistered), []byte{1})).
		Build()

	err := newTestRunner(st, NewMemorySource(bad), pipeline.VariantEvents, nil).Run(context.Background(), false)
	require.Error(t, err)
	assert.True(t, pipeline.IsDecodeError(err))

	var scanErr *pipeline.ScanError
	require.ErrorAs(t, err, &scanErr)
	assert.Equal(t, "tx-bad", scanErr.TxDigest)
	assert.Zero(t, st.commits.Load(), "decode errors never reach the store")
}

func TestRun_RetriesTransientCommitFailure(t *testing.T) {
	base := createTestStore(t)
	st := &countingStore{Store: base, failures: 2}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	require.NoError(t, newTestRunner(st, NewMemorySource(marketHistory()[0]), pipeline.VariantEvents, m).Run(context.Background(), false))

	assert.Equal(t, int32(3), st.commits.Load())
	assert.Equal(t, 2.0, promtest.ToFloat64(m.CommitErrors))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.CheckpointsScanned))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Mutations.WithLabelValues("Agent", "insert")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.Watermark.WithLabelValues("events")))
	assert.Equal(t, int64(0), requireWatermark(t, base, "events").CheckpointHiInclusive)
}

func TestRun_CommitFailureGivesUp(t *testing.T) {
	base := createTestStore(t)
	st := &countingStore{Store: base, failures: 100}

	err := newTestRunner(st, NewMemorySource(marketHistory()...), pipeline.VariantEvents, nil).Run(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "commit checkpoint 1")
	assert.Equal(t, int32(3), st.commits.Load(), "first attempt plus two retries")

	_, found, err := base.Watermark(context.Background(), "events")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRun_ConstraintViolationIsNotRetried(t *testing.T) {
	base := createTestStore(t)
	st := &countingStore{Store: base}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// The BuyOffer this answers was never indexed.
	orphan := testutil.NewCheckpoint(0).
		Tx("tx-orphan", testutil.Event(events.SellOfferMade{
			BuyOfferID: addr("0x10"), SellOfferID: addr("0x11"), AgentID: addr("0xa"),
			AgentAddress: addr("0xa1"), StoreLink: "https://shop.example/lamp", Price: 35,
		})).
		Build()

	err := newTestRunner(st, NewMemorySource(orphan), pipeline.VariantEvents, m).Run(context.Background(), false)
	require.Error(t, err)
	assert.True(t, store.IsPermanent(err))
	assert.Contains(t, err.Error(), "commit checkpoint 0")
	assert.Equal(t, int32(1), st.commits.Load())
	assert.Equal(t, 1.0, promtest.ToFloat64(m.CommitErrors))

	_, found, err := base.Watermark(context.Background(), "events")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRun_FollowPollsUntilCancelled(t *testing.T) {
	st := createTestStore(t)
	history := marketHistory()
	src := NewMemorySource(history[0])

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- newTestRunner(st, src, pipeline.VariantEvents, nil).Run(ctx, true)
	}()

	src.Add(history[1:]...)
	require.Eventually(t, func() bool {
		wm, found, err := st.Watermark(context.Background(), "events")
		return err == nil && found && wm.CheckpointHiInclusive == 3
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestRun_DirSource(t *testing.T) {
	st := createTestStore(t)
	dir := t.TempDir()
	testutil.WriteCheckpoints(t, dir, marketHistory()...)

	require.NoError(t, newTestRunner(st, NewDirSource(dir), pipeline.VariantEvents, nil).Run(context.Background(), false))
	assert.Equal(t, int64(3), requireWatermark(t, st, "events").CheckpointHiInclusive)
}

func TestRunner_Identity(t *testing.T) {
	r := newTestRunner(createTestStore(t), NewMemorySource(), pipeline.VariantAgent, nil)
	assert.Equal(t, "agent", r.Pipeline())
	assert.Equal(t, 7, int(r.RunID().Version()))
}

func TestNewRunner_BackOffAlwaysStops(t *testing.T) {
	scanner := pipeline.NewScanner(chain.NewPackageFilter(testutil.PackageID), pipeline.VariantEvents, quietLogger())
	cfg := testConfig()
	cfg.BackoffMaxElapsed = 0

	b, ok := NewRunner(createTestStore(t), scanner, NewMemorySource(), cfg, nil, quietLogger()).newBackOff().(*backoff.ExponentialBackOff)
	require.True(t, ok)
	assert.Positive(t, b.MaxElapsedTime)

	cfg.BackoffMaxElapsed = 30 * time.Second
	b, ok = NewRunner(createTestStore(t), scanner, NewMemorySource(), cfg, nil, quietLogger()).newBackOff().(*backoff.ExponentialBackOff)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, b.MaxElapsedTime)
}

func TestWatermarkFor_Overflow(t *testing.T) {
	cp := testutil.NewCheckpoint(1).At(1 << 63).Build()
	_, err := watermarkFor("events", cp)
	require.Error(t, err)
	assert.ErrorIs(t, err, mutation.ErrNarrowing)
}

var errTransient = errors.New("connection reset")

// countingStore counts commit attempts and fails the first failures of them.
type countingStore struct {
	*store.Store
	failures int32
	commits  atomic.Int32
}

func (s *countingStore) CommitWithWatermark(ctx context.Context, ms []mutation.Mutation, wm store.Watermark) (int64, error) {
	if s.commits.Add(1) <= s.failures {
		return 0, errTransient
	}
	return s.Store.CommitWithWatermark(ctx, ms, wm)
}
