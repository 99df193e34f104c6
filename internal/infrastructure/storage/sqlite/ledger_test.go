package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farb/internal/domain/model"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func testPosition(id, coin string) *model.Position {
	end := time.Now().Add(8 * time.Hour)
	return &model.Position{
		ID:               id,
		TokenSymbol:      coin,
		TokenAddress:     "0x" + coin,
		PositionType:     model.TypeLong,
		EntryPrice:       100,
		Quantity:         2,
		HedgeQuantity:    200,
		HedgeTokenSymbol: "USDC",
		HedgeTokenAddr:   "0xusdc",
		FundingRate:      0.0001,
		FundingEndTime:   end,
		CloseTime:        end.Add(5 * time.Minute),
		Exchange:         "hyperliquid",
		StrategyName:     "funding_arbitrage",
		Notes:            "test",
	}
}

func TestCreateAndGetByID(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	in := testPosition("pos_aaaa0001_1", "BTC")
	id, err := l.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, in.ID, id)

	got, err := l.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, in.TokenSymbol, got.TokenSymbol)
	assert.Equal(t, in.TokenAddress, got.TokenAddress)
	assert.Equal(t, model.TypeLong, got.PositionType)
	assert.Equal(t, in.EntryPrice, got.EntryPrice)
	assert.Equal(t, in.Quantity, got.Quantity)
	assert.Equal(t, in.HedgeQuantity, got.HedgeQuantity)
	assert.Equal(t, in.HedgeTokenSymbol, got.HedgeTokenSymbol)
	assert.Equal(t, in.FundingRate, got.FundingRate)
	assert.Equal(t, model.StatusOpen, got.Status)
	assert.Equal(t, 0.0, got.PnL)
	assert.Equal(t, in.Exchange, got.Exchange)
	assert.Equal(t, in.StrategyName, got.StrategyName)
	assert.Equal(t, in.Notes, got.Notes)
	assert.Equal(t, in.FundingEndTime.UnixMilli(), got.FundingEndTime.UnixMilli())
	assert.Equal(t, in.CloseTime.UnixMilli(), got.CloseTime.UnixMilli())

	hist, err := l.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.ActionOpen, hist[0].Action)
	require.NotNil(t, hist[0].Price)
	assert.Equal(t, in.EntryPrice, *hist[0].Price)
}

func TestCreateValidation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	t.Run("negative quantity", func(t *testing.T) {
		p := testPosition("pos_bad_1", "BTC")
		p.Quantity = -1
		_, err := l.Create(ctx, p)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("zero entry price", func(t *testing.T) {
		p := testPosition("pos_bad_2", "BTC")
		p.EntryPrice = 0
		_, err := l.Create(ctx, p)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("bad position type", func(t *testing.T) {
		p := testPosition("pos_bad_3", "BTC")
		p.PositionType = "SIDEWAYS"
		_, err := l.Create(ctx, p)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("missing strategy", func(t *testing.T) {
		p := testPosition("pos_bad_4", "BTC")
		p.StrategyName = ""
		_, err := l.Create(ctx, p)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("failed create leaves no history", func(t *testing.T) {
		hist, err := l.History(ctx, "pos_bad_1")
		require.NoError(t, err)
		assert.Empty(t, hist)
	})
}

func TestCreateConflict(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Create(ctx, testPosition("pos_dup_1", "BTC"))
	require.NoError(t, err)

	_, err = l.Create(ctx, testPosition("pos_dup_1", "ETH"))
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestCloseIdempotence(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Create(ctx, testPosition("pos_close_1", "BTC"))
	require.NoError(t, err)

	ok, err := l.ClosePosition(ctx, id, 110, 19.78, "0xabc", "")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := l.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, got.Status)
	assert.InDelta(t, 19.78, got.PnL, 1e-9)

	// double close is a tolerated no-op
	ok, err = l.ClosePosition(ctx, id, 120, 30, "", "")
	require.NoError(t, err)
	assert.False(t, ok)

	// unknown id likewise
	ok, err = l.ClosePosition(ctx, "pos_missing", 120, 30, "", "")
	require.NoError(t, err)
	assert.False(t, ok)

	// exactly one CLOSE row despite the double call
	hist, err := l.History(ctx, id)
	require.NoError(t, err)
	var closes int
	for _, e := range hist {
		if e.Action == model.ActionClose {
			closes++
		}
	}
	assert.Equal(t, 1, closes)
}

func TestCancel(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Create(ctx, testPosition("pos_cancel_1", "BTC"))
	require.NoError(t, err)

	ok, err := l.CancelPosition(ctx, id, "primary leg rejected")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := l.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, 0.0, got.PnL)

	// a cancelled position cannot be closed
	ok, err = l.ClosePosition(ctx, id, 110, 5, "", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOpenOrder(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for i, coin := range []string{"BTC", "ETH", "SOL"} {
		p := testPosition("pos_open_"+coin, coin)
		l.now = func() time.Time { return time.Now().Add(time.Duration(i) * time.Minute) }
		_, err := l.Create(ctx, p)
		require.NoError(t, err)
	}
	l.now = time.Now

	open, err := l.GetOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 3)
	// most recently created first
	assert.Equal(t, "SOL", open[0].TokenSymbol)
	assert.Equal(t, "BTC", open[2].TokenSymbol)
}

func TestGetDueForClose(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	mk := func(id string, closeIn time.Duration) {
		p := testPosition(id, "T"+id)
		p.FundingEndTime = now.Add(closeIn - 5*time.Minute)
		p.CloseTime = now.Add(closeIn)
		_, err := l.Create(ctx, p)
		require.NoError(t, err)
	}
	mk("pos_due_b", -10*time.Minute)
	mk("pos_due_a", -30*time.Minute)
	mk("pos_fresh", 2*time.Hour)

	// a CLOSED one past due must not reappear
	mk("pos_done", -1*time.Hour)
	_, err := l.ClosePosition(ctx, "pos_done", 100, 0, "", "")
	require.NoError(t, err)

	due, err := l.GetDueForClose(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	// oldest due first
	assert.Equal(t, "pos_due_a", due[0].ID)
	assert.Equal(t, "pos_due_b", due[1].ID)
}

func TestUpdateAllowlist(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Create(ctx, testPosition("pos_upd_1", "BTC"))
	require.NoError(t, err)
	before, err := l.GetByID(ctx, id)
	require.NoError(t, err)

	t.Run("empty update is a no-op", func(t *testing.T) {
		ok, err := l.Update(ctx, id, model.PartialUpdate{})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing row returns false", func(t *testing.T) {
		notes := "x"
		ok, err := l.Update(ctx, "pos_missing", model.PartialUpdate{Notes: &notes})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("notes only", func(t *testing.T) {
		notes := "x"
		ok, err := l.Update(ctx, id, model.PartialUpdate{Notes: &notes})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := l.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "x", got.Notes)
		// immutable fields untouched
		assert.Equal(t, before.EntryPrice, got.EntryPrice)
		assert.Equal(t, before.Quantity, got.Quantity)
		assert.Equal(t, model.StatusOpen, got.Status)

		hist, err := l.History(ctx, id)
		require.NoError(t, err)
		var updates int
		for _, e := range hist {
			if e.Action == model.ActionUpdate {
				updates++
				assert.Contains(t, e.Notes, "notes")
			}
		}
		assert.Equal(t, 1, updates)
	})

	t.Run("funding fields", func(t *testing.T) {
		rate := 0.0005
		end := time.Now().Add(16 * time.Hour)
		ok, err := l.Update(ctx, id, model.PartialUpdate{FundingRate: &rate, FundingEndTime: &end})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := l.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, rate, got.FundingRate)
		assert.Equal(t, end.UnixMilli(), got.FundingEndTime.UnixMilli())
	})
}

func TestRecordHedge(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Create(ctx, testPosition("pos_hedge_1", "BTC"))
	require.NoError(t, err)

	ok, err := l.RecordHedge(ctx, id, 100.5, 200, "0xhedge", "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.RecordHedge(ctx, "pos_missing", 100.5, 200, "", "")
	require.NoError(t, err)
	assert.False(t, ok)

	hist, err := l.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	// newest first
	assert.Equal(t, model.ActionHedge, hist[0].Action)
	assert.Equal(t, "0xhedge", hist[0].TxHash)
}

func TestStatistics(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Create(ctx, testPosition("pos_st_1", "BTC"))
	require.NoError(t, err)
	_, err = l.Create(ctx, testPosition("pos_st_2", "BTC"))
	require.NoError(t, err)
	_, err = l.Create(ctx, testPosition("pos_st_3", "ETH"))
	require.NoError(t, err)

	_, err = l.ClosePosition(ctx, "pos_st_1", 110, 20, "", "")
	require.NoError(t, err)
	_, err = l.ClosePosition(ctx, "pos_st_3", 90, -10, "", "")
	require.NoError(t, err)

	st, err := l.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalPositions)
	assert.Equal(t, 1, st.OpenPositions)
	assert.Equal(t, 2, st.ClosedPositions)
	assert.InDelta(t, 10.0, st.TotalPnL, 1e-9)
	assert.InDelta(t, 5.0, st.AvgPnL, 1e-9)

	require.Len(t, st.TokenStats, 2)
	// ordered by total pnl descending
	assert.Equal(t, "BTC", st.TokenStats[0].TokenSymbol)
	assert.Equal(t, 2, st.TokenStats[0].PositionCount)
	assert.InDelta(t, 20.0, st.TokenStats[0].TotalPnL, 1e-9)
	assert.Equal(t, "ETH", st.TokenStats[1].TokenSymbol)
}

func TestCleanupRetention(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	_, err := l.Create(ctx, testPosition("pos_old", "BTC"))
	require.NoError(t, err)
	_, err = l.Create(ctx, testPosition("pos_recent", "ETH"))
	require.NoError(t, err)
	_, err = l.Create(ctx, testPosition("pos_still_open", "SOL"))
	require.NoError(t, err)

	// closed 31 days ago
	l.now = func() time.Time { return now.AddDate(0, 0, -31) }
	_, err = l.ClosePosition(ctx, "pos_old", 100, 1, "", "")
	require.NoError(t, err)

	// closed 29 days ago
	l.now = func() time.Time { return now.AddDate(0, 0, -29) }
	_, err = l.ClosePosition(ctx, "pos_recent", 100, 1, "", "")
	require.NoError(t, err)

	l.now = func() time.Time { return now }
	deleted, err := l.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = l.GetByID(ctx, "pos_old")
	assert.ErrorIs(t, err, model.ErrNotFound)

	hist, err := l.History(ctx, "pos_old")
	require.NoError(t, err)
	assert.Empty(t, hist, "history must cascade")

	_, err = l.GetByID(ctx, "pos_recent")
	assert.NoError(t, err)
	_, err = l.GetByID(ctx, "pos_still_open")
	assert.NoError(t, err)
}
