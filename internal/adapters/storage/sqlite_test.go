package storage_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/polypnl/internal/adapters/storage"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func makeEvent(id, wallet, cond string, min int, cash, tokens float64) domain.Event {
	return domain.Event{
		Kind:         domain.SourceTrade,
		Wallet:       wallet,
		ConditionID:  cond,
		OutcomeIndex: 0,
		Timestamp:    t0.Add(time.Duration(min) * time.Minute),
		EventID:      id,
		CashDelta:    cash,
		TokenDelta:   tokens,
	}
}

func newLedger(t *testing.T) *storage.Ledger {
	t.Helper()
	db, err := storage.NewLedger(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLedger_ImportAndLoadOrdered(t *testing.T) {
	db := newLedger(t)
	ctx := context.Background()

	redeem := makeEvent("e3", "0xW", "0xC1", 5, 100, -100)
	redeem.Kind = domain.SourceRedemption
	redeem.ResolutionPayout = domain.Payout(1)

	n, err := db.ImportEvents(ctx, []domain.Event{
		redeem,
		makeEvent("e2", "0xw", "0xc1", 1, -10, 20),
		makeEvent("e1", "0xw", "0xc1", 1, -40, 80),
		makeEvent("x1", "0xother", "0xc1", 0, -1, 2),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	events, err := db.LoadEvents(ctx, "0xW")
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Mismo timestamp → desempate por event_id
	assert.Equal(t, "e1", events[0].EventID)
	assert.Equal(t, "e2", events[1].EventID)
	assert.Equal(t, "e3", events[2].EventID)

	last := events[2]
	assert.Equal(t, domain.SourceRedemption, last.Kind)
	assert.Equal(t, "0xw", last.Wallet)
	assert.Equal(t, "0xc1", last.ConditionID)
	assert.Equal(t, t0.Add(5*time.Minute), last.Timestamp)
	require.NotNil(t, last.ResolutionPayout)
	assert.Equal(t, 1.0, *last.ResolutionPayout)
	assert.Nil(t, events[0].ResolutionPayout)
}

func TestLedger_ImportDeduplicates(t *testing.T) {
	db := newLedger(t)
	ctx := context.Background()

	e := makeEvent("e1", "0xw", "0xc1", 0, -50, 100)
	n, err := db.ImportEvents(ctx, []domain.Event{e})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = db.ImportEvents(ctx, []domain.Event{e, makeEvent("e2", "0xw", "0xc1", 1, 30, -50)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events, err := db.LoadEvents(ctx, "0xw")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestLedger_ImportRejectsMalformed(t *testing.T) {
	db := newLedger(t)
	_, err := db.ImportEvents(context.Background(), []domain.Event{makeEvent("", "0xw", "0xc1", 0, -1, 1)})
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)

	_, err = db.ImportEvents(context.Background(), []domain.Event{makeEvent("e1", "0xw", "", 0, -1, 1)})
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)
}

func TestLedger_ImportEmptySlice(t *testing.T) {
	db := newLedger(t)
	n, err := db.ImportEvents(context.Background(), nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedger_Prices(t *testing.T) {
	db := newLedger(t)
	ctx := context.Background()

	require.NoError(t, db.SetResolutionPrice(ctx, "0xC1", 0, 1))
	require.NoError(t, db.SetResolutionPrice(ctx, "0xc1", 1, 0))
	require.NoError(t, db.SetResolutionPrice(ctx, "0xc9", 0, 1))
	require.NoError(t, db.SetLivePrice(ctx, "0xc2", 0, 0.4))
	require.NoError(t, db.SetLivePrice(ctx, "0xc2", 0, 0.45)) // upsert
	assert.Error(t, db.SetLivePrice(ctx, "0xc2", 1, 1.5))

	res, err := db.LoadResolutionPrices(ctx, "0xw", []string{"0xc1", "0xc2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]map[int]float64{"0xc1": {0: 1, 1: 0}}, res)

	live, err := db.LoadLivePrices(ctx, "0xw", []string{"0xc2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"0xc2|0": 0.45}, live)

	empty, err := db.LoadLivePrices(ctx, "0xw", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLedger_ImportFile(t *testing.T) {
	db := newLedger(t)
	ctx := context.Background()

	file := `{
		"events": [
			{"event_id": "a", "wallet": "0xW", "kind": "TRADE", "condition_id": "0xc1",
			 "outcome_index": 0, "timestamp": "2025-03-01T12:00:00Z", "cash_delta": -50, "token_delta": 100},
			{"event_id": "b", "wallet": "0xW", "kind": "REDEEM", "condition_id": "0xc1",
			 "outcome_index": 0, "timestamp": "2025-03-02T12:00:00Z", "cash_delta": 100, "token_delta": -100,
			 "resolution_payout": 1}
		],
		"resolutions": [{"condition_id": "0xc1", "outcome_index": 0, "price": 1}],
		"live_prices": []
	}`

	sum, err := storage.ImportFile(ctx, db, strings.NewReader(file))
	require.NoError(t, err)
	assert.Equal(t, storage.ImportSummary{Events: 2, Inserted: 2, Resolutions: 1}, sum)

	events, err := db.LoadEvents(ctx, "0xw")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.SourceRedemption, events[1].Kind)
}

func TestReadLedgerFile_BadKind(t *testing.T) {
	_, err := storage.ReadLedgerFile(strings.NewReader(
		`{"events":[{"event_id":"a","kind":"REWARD","condition_id":"0xc","timestamp":"2025-03-01T12:00:00Z"}]}`))
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)
}
