package port

import (
	"context"

	"farb/internal/domain/model"
)

// MarketDataSource produces one normalized snapshot per perpetual
// market each cycle.
type MarketDataSource interface {
	Name() string
	FetchSnapshots(ctx context.Context) ([]model.MarketSnapshot, error)
}

// Mid is a live mark-price update from a streaming feed.
type Mid struct {
	Coin  string
	Price float64
	Ts    int64 // unix ms
}

// MidsFeed streams live mark prices. The orchestrator uses the freshest
// mid as the close price when one is available.
type MidsFeed interface {
	Name() string
	Subscribe(ctx context.Context) (<-chan Mid, error)
}
