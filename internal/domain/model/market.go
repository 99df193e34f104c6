package model

import "time"

// MarketSnapshot is one normalized perpetual market as of a single
// cycle. Snapshots are ephemeral and never persisted.
type MarketSnapshot struct {
	Coin          string
	MarkPrice     float64
	FundingHourly float64 // signed fraction per hour, not percent
	Volume24hUSD  float64
	// NextFundingTime is nil when the venue does not publish one.
	NextFundingTime *time.Time
	Timestamp       int64 // unix ms
}

// TimeToFunding returns the time remaining until the next funding
// settlement, and false when the venue published none.
func (s MarketSnapshot) TimeToFunding(now time.Time) (time.Duration, bool) {
	if s.NextFundingTime == nil {
		return 0, false
	}
	return s.NextFundingTime.Sub(now), true
}

// Candidate is a market that passed every opportunity filter, ready to
// be acted on by the orchestrator.
type Candidate struct {
	Snapshot MarketSnapshot
	// NotionalUSD is the fixed trade size from policy.
	NotionalUSD float64
	// Quantity is NotionalUSD at the snapshot mark price.
	Quantity float64
}

// Policy holds the opportunity thresholds.
type Policy struct {
	MinFundingRate   float64 // minimum absolute hourly funding fraction
	MinLeadMinutes   int     // minimum minutes remaining before settlement
	TradeNotionalUSD float64
	StrategyName     string
}
