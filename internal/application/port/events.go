package port

import "context"

// PositionEvent is published when the ledger records an open or close.
type PositionEvent struct {
	Kind       string  `json:"kind"` // "open" | "close" | "cancel"
	PositionID string  `json:"position_id"`
	Coin       string  `json:"coin"`
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	PnL        float64 `json:"pnl,omitempty"`
	Ts         int64   `json:"ts_ms"`
}

// EventSink fans position events out to interested consumers. Sinks are
// best-effort: a sink failure never fails the cycle.
type EventSink interface {
	PublishPositionEvent(ctx context.Context, ev PositionEvent) error
	CacheSnapshotReport(ctx context.Context, ts int64, payload string) error
	Close() error
}
