package port

import (
	"context"
	"time"

	"farb/internal/domain/model"
)

// PositionLedger is the durable system of record for positions and
// their audit history. Every mutation commits the position row and its
// paired history row in one transaction.
type PositionLedger interface {
	// Create inserts an OPEN position with its OPEN history row.
	// Returns model.ErrValidation or model.ErrConflict as appropriate.
	Create(ctx context.Context, p *model.Position) (string, error)

	// ClosePosition sets status CLOSED and the realized pnl, appending
	// a CLOSE history row. Returns false (nil error) when the position
	// is missing or no longer OPEN; double-close is a tolerated race.
	ClosePosition(ctx context.Context, id string, closePrice, pnl float64, txHash, notes string) (bool, error)

	// CancelPosition moves OPEN -> CANCELLED with no pnl impact, for
	// openings whose execution failed before confirmation.
	CancelPosition(ctx context.Context, id string, reason string) (bool, error)

	// GetOpen lists OPEN positions, most recently created first.
	GetOpen(ctx context.Context) ([]*model.Position, error)

	// GetDueForClose lists OPEN positions whose close_time <= now,
	// oldest due first so the longest-overdue exposure unwinds first.
	GetDueForClose(ctx context.Context, now time.Time) ([]*model.Position, error)

	// GetByID returns model.ErrNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*model.Position, error)

	// Update applies the allow-listed fields and appends an UPDATE
	// history row naming them. False when the update is empty or the
	// row does not exist.
	Update(ctx context.Context, id string, u model.PartialUpdate) (bool, error)

	// RecordHedge appends a HEDGE history row for the hedge-leg fill.
	RecordHedge(ctx context.Context, id string, price, quantity float64, txHash, notes string) (bool, error)

	// History lists a position's audit entries, newest first.
	History(ctx context.Context, id string) ([]*model.HistoryEntry, error)

	// Statistics aggregates counts and closed pnl, per token.
	Statistics(ctx context.Context) (*model.Statistics, error)

	// Cleanup deletes CLOSED positions (and cascading history) whose
	// updated_at is older than the retention window. Returns the count
	// of positions deleted.
	Cleanup(ctx context.Context, retentionDays int) (int64, error)

	// Close releases the backing store.
	Close() error
}
