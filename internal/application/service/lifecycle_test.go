package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farb/internal/application/port"
	"farb/internal/domain/model"
	"farb/internal/infrastructure/storage/sqlite"
)

func newTestLifecycle(t *testing.T) *Lifecycle {
	t.Helper()
	ledger, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	return NewLifecycle(ledger, LifecycleConfig{
		Exchange:          "hyperliquid",
		StrategyName:      "funding_arbitrage",
		HedgeTokenSymbol:  "USDC",
		HedgeTokenAddress: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
	})
}

func testCandidate(coin string, funding float64) model.Candidate {
	end := time.Now().Add(90 * time.Minute)
	return model.Candidate{
		Snapshot: model.MarketSnapshot{
			Coin:            coin,
			MarkPrice:       100,
			FundingHourly:   funding,
			Volume24hUSD:    1_000_000,
			NextFundingTime: &end,
			Timestamp:       time.Now().UnixMilli(),
		},
		NotionalUSD: 1000,
		Quantity:    10,
	}
}

func TestOpenDefaults(t *testing.T) {
	m := newTestLifecycle(t)
	ctx := context.Background()
	before := time.Now()

	id, err := m.Open(ctx, testCandidate("btc", 0.0003), 100, "0xentry", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "pos_"))

	p, err := m.ledger.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "BTC", p.TokenSymbol)
	assert.Equal(t, "0xbtc", p.TokenAddress)
	assert.Equal(t, model.TypeLong, p.PositionType)
	assert.Equal(t, model.StatusOpen, p.Status)
	assert.InDelta(t, 10.0, p.Quantity, 1e-9)
	assert.Equal(t, 1000.0, p.HedgeQuantity)
	assert.Equal(t, "USDC", p.HedgeTokenSymbol)
	assert.Equal(t, "funding_arbitrage", p.StrategyName)
	assert.Contains(t, p.Notes, "entry tx 0xentry")

	// 8h accrual window plus 5min grace
	assert.WithinDuration(t, before.Add(8*time.Hour), p.FundingEndTime, 5*time.Second)
	assert.WithinDuration(t, p.FundingEndTime.Add(5*time.Minute), p.CloseTime, time.Second)
}

func TestOpenCloseFlow(t *testing.T) {
	m := newTestLifecycle(t)
	ctx := context.Background()

	id, err := m.Open(ctx, testCandidate("eth", 0.0003), 100, "", "")
	require.NoError(t, err)

	// entry 100 qty 10, close 110: gross 100, commission 1.1
	ok, err := m.CloseWithPnL(ctx, id, 110, "0xclose", "")
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := m.ledger.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, p.Status)
	assert.InDelta(t, 98.9, p.PnL, 1e-9)

	ok, err = m.CloseWithPnL(ctx, id, 120, "", "")
	require.NoError(t, err)
	assert.False(t, ok, "second close is a no-op")

	_, err = m.CloseWithPnL(ctx, "pos_missing", 110, "", "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCancel(t *testing.T) {
	m := newTestLifecycle(t)
	ctx := context.Background()

	id, err := m.Open(ctx, testCandidate("sol", 0.0003), 100, "", "")
	require.NoError(t, err)

	ok, err := m.Cancel(ctx, id, "primary leg rejected")
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := m.ledger.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, p.Status)
	assert.Zero(t, p.PnL)

	ok, err = m.CloseWithPnL(ctx, id, 200, "", "")
	require.NoError(t, err)
	assert.False(t, ok, "cancelled position stays cancelled")
}

func TestMonitor(t *testing.T) {
	m := newTestLifecycle(t)
	ctx := context.Background()
	now := time.Now()

	idA, err := m.Open(ctx, testCandidate("btc", 0.0003), 100, "", "")
	require.NoError(t, err)
	_, err = m.Open(ctx, testCandidate("eth", 0.0003), 100, "", "")
	require.NoError(t, err)

	st, err := m.Monitor(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, st.OpenCount)
	assert.Equal(t, 0, st.DueCount)
	assert.InDelta(t, 2000.0, st.TotalNotional, 1e-6)
	assert.InDelta(t, 2000.0, st.TotalHedgeNotional, 1e-6)

	// after the close deadline both are due
	st, err = m.Monitor(ctx, now.Add(9*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, st.DueCount)

	_, err = m.CloseWithPnL(ctx, idA, 100, "", "")
	require.NoError(t, err)
	st, err = m.Monitor(ctx, now.Add(9*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, st.OpenCount)
	assert.Equal(t, 1, st.DueCount)
}

func TestUpdateAndExtend(t *testing.T) {
	m := newTestLifecycle(t)
	ctx := context.Background()

	id, err := m.Open(ctx, testCandidate("btc", 0.0003), 100, "", "")
	require.NoError(t, err)
	before, err := m.ledger.GetByID(ctx, id)
	require.NoError(t, err)

	ok, err := m.UpdateFundingRate(ctx, id, 0.0009)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.ExtendCloseTime(ctx, id, 8)
	require.NoError(t, err)
	assert.True(t, ok)

	after, err := m.ledger.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0.0009, after.FundingRate)
	assert.Equal(t, before.CloseTime.Add(8*time.Hour).UnixMilli(), after.CloseTime.UnixMilli())

	_, err = m.ExtendCloseTime(ctx, "pos_missing", 8)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSummary(t *testing.T) {
	m := newTestLifecycle(t)
	ctx := context.Background()

	id, err := m.Open(ctx, testCandidate("btc", 0.0003), 100, "", "")
	require.NoError(t, err)
	require.NoError(t, m.RecordHedgeFill(ctx, id, port.Fill{FilledPrice: 100.2, TxRef: "0xhedge"}, 1000))

	s, err := m.Summary(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, s.Position.ID)
	require.Len(t, s.History, 2)
	assert.Equal(t, model.ActionHedge, s.History[0].Action)
	assert.Equal(t, model.ActionOpen, s.History[1].Action)
	require.NotNil(t, s.HoursUntilClose)
	assert.InDelta(t, 8.08, *s.HoursUntilClose, 0.05)

	_, err = m.CloseWithPnL(ctx, id, 100, "", "")
	require.NoError(t, err)
	s, err = m.Summary(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, s.HoursUntilClose)
}
