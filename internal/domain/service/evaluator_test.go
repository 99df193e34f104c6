package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farb/internal/domain/model"
)

func snap(coin string, funding, volume float64, nextFunding *time.Time) model.MarketSnapshot {
	return model.MarketSnapshot{
		Coin:            coin,
		MarkPrice:       100,
		FundingHourly:   funding,
		Volume24hUSD:    volume,
		NextFundingTime: nextFunding,
		Timestamp:       time.Now().UnixMilli(),
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	far := now.Add(2 * time.Hour)
	soon := now.Add(5 * time.Minute)

	policy := model.Policy{
		MinFundingRate:   0.0001,
		MinLeadMinutes:   30,
		TradeNotionalUSD: 1000,
		StrategyName:     "funding_arbitrage",
	}

	t.Run("ranks by funding then volume", func(t *testing.T) {
		snaps := []model.MarketSnapshot{
			snap("ETH", 0.0002, 500, &far),
			snap("BTC", 0.0005, 100, &far),
			snap("SOL", 0.0002, 900, &far),
		}
		cands := Evaluate(snaps, nil, policy, now)
		require.Len(t, cands, 3)
		assert.Equal(t, "BTC", cands[0].Snapshot.Coin)
		assert.Equal(t, "SOL", cands[1].Snapshot.Coin)
		assert.Equal(t, "ETH", cands[2].Snapshot.Coin)
	})

	t.Run("negative funding counts by magnitude", func(t *testing.T) {
		snaps := []model.MarketSnapshot{
			snap("BTC", 0.0002, 100, &far),
			snap("ETH", -0.0009, 100, &far),
		}
		cands := Evaluate(snaps, nil, policy, now)
		require.Len(t, cands, 2)
		assert.Equal(t, "ETH", cands[0].Snapshot.Coin)
	})

	t.Run("filters below threshold", func(t *testing.T) {
		snaps := []model.MarketSnapshot{
			snap("BTC", 0.00005, 100, &far),
			snap("ETH", 0.0002, 100, &far),
		}
		cands := Evaluate(snaps, nil, policy, now)
		require.Len(t, cands, 1)
		assert.Equal(t, "ETH", cands[0].Snapshot.Coin)
	})

	t.Run("filters settling too soon or unknown", func(t *testing.T) {
		snaps := []model.MarketSnapshot{
			snap("BTC", 0.0005, 100, &soon),
			snap("ETH", 0.0005, 100, nil),
			snap("SOL", 0.0005, 100, &far),
		}
		cands := Evaluate(snaps, nil, policy, now)
		require.Len(t, cands, 1)
		assert.Equal(t, "SOL", cands[0].Snapshot.Coin)
	})

	t.Run("held token excluded even at highest funding", func(t *testing.T) {
		open := []*model.Position{{
			TokenSymbol:  "BTC",
			Status:       model.StatusOpen,
			StrategyName: "funding_arbitrage",
		}}
		snaps := []model.MarketSnapshot{
			snap("BTC", 0.009, 100, &far),
			snap("ETH", 0.0002, 100, &far),
		}
		cands := Evaluate(snaps, open, policy, now)
		require.Len(t, cands, 1)
		assert.Equal(t, "ETH", cands[0].Snapshot.Coin)
	})

	t.Run("other strategy does not block the token", func(t *testing.T) {
		open := []*model.Position{{
			TokenSymbol:  "BTC",
			Status:       model.StatusOpen,
			StrategyName: "another_strategy",
		}}
		snaps := []model.MarketSnapshot{snap("BTC", 0.0005, 100, &far)}
		cands := Evaluate(snaps, open, policy, now)
		assert.Len(t, cands, 1)
	})

	t.Run("candidate sizing", func(t *testing.T) {
		snaps := []model.MarketSnapshot{snap("BTC", 0.0005, 100, &far)}
		cands := Evaluate(snaps, nil, policy, now)
		require.Len(t, cands, 1)
		assert.Equal(t, 1000.0, cands[0].NotionalUSD)
		assert.InDelta(t, 10.0, cands[0].Quantity, 1e-9)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Evaluate(nil, nil, policy, now))
	})
}
