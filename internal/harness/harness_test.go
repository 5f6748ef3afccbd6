package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventidx/internal/events"
	"github.com/roach88/eventidx/internal/pipeline"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			s := loadScenario(t, name)
			assert.Equal(t, name, s.Name)

			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestOfferLifecycleGolden(t *testing.T) {
	result, err := RunWithGolden(t, loadScenario(t, "offer_lifecycle"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, int64(5), result.Watermark)
}

func TestRun_StopsAtScanError(t *testing.T) {
	result, err := Run(context.Background(), loadScenario(t, "decode_failure"))
	require.NoError(t, err)

	assert.True(t, pipeline.IsDecodeError(result.RunErr))
	assert.Len(t, result.Trace, 1, "trace ends before the failing checkpoint")

	snap := string(Snapshot("decode_failure", result))
	assert.Contains(t, snap, "# run stopped DECODE_FAILED at checkpoint 1\n")
	assert.Contains(t, snap, "# watermark events 0\n")
}

func TestRun_ReportsFailedAssertions(t *testing.T) {
	s := loadScenario(t, "shop_purchases")
	s.Assertions = append(s.Assertions,
		Assertion{Type: AssertRowCount, Table: "ShopPurchase", Count: 2},
		Assertion{Type: AssertFinalState, Table: "Agent", Where: map[string]any{"agent_id": "0x1"}, Expect: map[string]any{"rating": 500}},
	)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected 2 rows in ShopPurchase")
	assert.Contains(t, result.Errors[1], "row not found")
}

func TestRun_UnexpectedSuccess(t *testing.T) {
	s := loadScenario(t, "shop_purchases")
	s.ExpectError = string(pipeline.ErrCodeDecodeFailed)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors, "expected DECODE_FAILED, run succeeded")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown field",
			body: "name: x\ncheckpoints: [{sequence: 0}]\nassertion: []\n",
			want: "field assertion not found",
		},
		{
			name: "missing name",
			body: "checkpoints: [{sequence: 0}]\n",
			want: "name is required",
		},
		{
			name: "no checkpoints",
			body: "name: x\n",
			want: "checkpoints must not be empty",
		},
		{
			name: "unknown pipeline",
			body: "name: x\npipeline: prices\ncheckpoints: [{sequence: 0}]\n",
			want: "prices",
		},
		{
			name: "bad expect_error",
			body: "name: x\nexpect_error: BOOM\ncheckpoints: [{sequence: 0}]\n",
			want: `expect_error "BOOM"`,
		},
		{
			name: "missing digest",
			body: "name: x\ncheckpoints: [{sequence: 0, transactions: [{events: []}]}]\n",
			want: "digest is required",
		},
		{
			name: "bad table",
			body: "name: x\ncheckpoints: [{sequence: 0}]\nassertions: [{type: row_count, table: Agents}]\n",
			want: `unknown table "Agents"`,
		},
		{
			name: "bad op",
			body: "name: x\ncheckpoints: [{sequence: 0}]\nassertions: [{type: mutation_count, table: Agent, op: upsert}]\n",
			want: `unknown op "upsert"`,
		},
		{
			name: "watermark without checkpoint",
			body: "name: x\ncheckpoints: [{sequence: 0}]\nassertions: [{type: watermark}]\n",
			want: "checkpoint is required",
		},
		{
			name: "final_state without expect",
			body: "name: x\ncheckpoints: [{sequence: 0}]\nassertions: [{type: final_state, table: Agent}]\n",
			want: "expect is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEventFromFields(t *testing.T) {
	ev, err := eventFromFields(events.KindBuyOfferModified, map[string]any{
		"buy_offer_id": "0xb2",
		"new_price":    15,
		"old_price":    uint64(20),
	})
	require.NoError(t, err)
	modified, ok := ev.(events.BuyOfferModified)
	require.True(t, ok)
	assert.Equal(t, uint64(15), modified.NewPrice)
	assert.Equal(t, uint64(20), modified.OldPrice)
	assert.Equal(t, "0x"+strings.Repeat("0", 62)+"b2", modified.BuyOfferID.String())

	_, err = eventFromFields(events.KindAgentRegistered, map[string]any{"agent_id": "0x1", "rating": 7})
	assert.EqualError(t, err, "unknown fields rating")

	_, err = eventFromFields(events.KindAgentRegistered, map[string]any{"stake_amount": -1})
	assert.ErrorContains(t, err, "field stake_amount")

	_, err = eventFromFields(events.KindShopPurchase, map[string]any{"store_link": 42})
	assert.ErrorContains(t, err, "is not a string")

	_, err = eventFromFields(events.KindSellOfferMade, map[string]any{"is_update": "yes"})
	assert.ErrorContains(t, err, "is not a bool")

	_, err = eventFromFields(events.KindManualBuy, map[string]any{"buyer": "0xzz"})
	assert.ErrorContains(t, err, "field buyer")
}

func TestBuildEvent_TypeTags(t *testing.T) {
	ev, err := buildEvent(EventStep{Type: "UserRegistered"}, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc::agent_market::UserRegistered", ev.Type)

	ev, err = buildEvent(EventStep{Type: "AgentRegistered", Package: "0xabd"}, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabd::agent_market::AgentRegistered", ev.Type)

	_, err = buildEvent(EventStep{Type: "AgentRetired"}, "0xabc")
	assert.ErrorContains(t, err, "without raw payload")

	_, err = buildEvent(EventStep{Type: "ManualBuy", Raw: "zz"}, "0xabc")
	assert.ErrorContains(t, err, "raw payload")
}

func TestStateValuesEqual(t *testing.T) {
	padded := "0x" + strings.Repeat("0", 63) + "1"

	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.True(t, stateValuesEqual(false, int64(0)))
	assert.True(t, stateValuesEqual(true, true))
	assert.True(t, stateValuesEqual("0x1", padded))
	assert.True(t, stateValuesEqual("mug", []byte("mug")))
	assert.True(t, stateValuesEqual(15, int64(15)))
	assert.True(t, stateValuesEqual(nil, nil))

	assert.False(t, stateValuesEqual(true, int64(0)))
	assert.False(t, stateValuesEqual(15, int64(16)))
	assert.False(t, stateValuesEqual("0x1", "0x1"))
	assert.False(t, stateValuesEqual(nil, int64(0)))
}
