package service

import (
	"math"
	"sort"
	"time"

	"farb/internal/domain/model"
)

// Evaluate is the opportunity decision function. It is pure: no side
// effects, safe to call every cycle with fresh inputs.
//
// Filters, in order: markets already held under the same strategy,
// markets below the funding threshold, markets settling too soon.
// Survivors are ranked by absolute funding descending; ties prefer the
// more liquid market by 24h volume.
func Evaluate(snapshots []model.MarketSnapshot, open []*model.Position, policy model.Policy, now time.Time) []model.Candidate {
	held := make(map[string]struct{}, len(open))
	for _, p := range open {
		if p.Status == model.StatusOpen && p.StrategyName == policy.StrategyName {
			held[p.TokenSymbol] = struct{}{}
		}
	}

	minLead := time.Duration(policy.MinLeadMinutes) * time.Minute

	survivors := make([]model.MarketSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if _, dup := held[s.Coin]; dup {
			continue
		}
		if math.Abs(s.FundingHourly) < policy.MinFundingRate {
			continue
		}
		lead, ok := s.TimeToFunding(now)
		if !ok || lead < minLead {
			continue
		}
		survivors = append(survivors, s)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		fi, fj := math.Abs(survivors[i].FundingHourly), math.Abs(survivors[j].FundingHourly)
		if fi != fj {
			return fi > fj
		}
		return survivors[i].Volume24hUSD > survivors[j].Volume24hUSD
	})

	out := make([]model.Candidate, 0, len(survivors))
	for _, s := range survivors {
		out = append(out, model.Candidate{
			Snapshot:    s,
			NotionalUSD: policy.TradeNotionalUSD,
			Quantity:    policy.TradeNotionalUSD / s.MarkPrice,
		})
	}
	return out
}
