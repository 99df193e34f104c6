package model

import (
	"fmt"
	"time"
)

// PositionStatus is the lifecycle state of a delta-neutral position.
// OPEN is the only initial state; CLOSED and CANCELLED are terminal.
type PositionStatus string

const (
	StatusOpen      PositionStatus = "OPEN"
	StatusClosed    PositionStatus = "CLOSED"
	StatusCancelled PositionStatus = "CANCELLED"
)

// PositionType describes the primary leg only. The hedge leg always
// carries the opposite exposure and is recorded on the same row.
type PositionType string

const (
	TypeLong  PositionType = "LONG"
	TypeShort PositionType = "SHORT"
)

// HistoryAction tags an audit-trail entry.
type HistoryAction string

const (
	ActionOpen   HistoryAction = "OPEN"
	ActionClose  HistoryAction = "CLOSE"
	ActionUpdate HistoryAction = "UPDATE"
	ActionHedge  HistoryAction = "HEDGE"
)

// Position is the ledger's primary entity: one perpetual leg plus the
// offsetting spot hedge, held while a funding payment accrues.
type Position struct {
	ID               string
	TokenSymbol      string
	TokenAddress     string
	PositionType     PositionType
	EntryPrice       float64
	Quantity         float64
	HedgeQuantity    float64
	HedgeTokenSymbol string
	HedgeTokenAddr   string
	FundingRate      float64 // signed hourly fraction at entry
	FundingEndTime   time.Time
	CloseTime        time.Time // always >= FundingEndTime
	Status           PositionStatus
	PnL              float64 // 0 until closed
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Exchange         string
	StrategyName     string
	Notes            string
}

// Validate checks the field constraints required for ledger insertion.
func (p *Position) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: position id is empty", ErrValidation)
	case p.TokenSymbol == "":
		return fmt.Errorf("%w: token symbol is empty", ErrValidation)
	case p.TokenAddress == "":
		return fmt.Errorf("%w: token address is empty", ErrValidation)
	case p.HedgeTokenSymbol == "":
		return fmt.Errorf("%w: hedge token symbol is empty", ErrValidation)
	case p.HedgeTokenAddr == "":
		return fmt.Errorf("%w: hedge token address is empty", ErrValidation)
	case p.PositionType != TypeLong && p.PositionType != TypeShort:
		return fmt.Errorf("%w: position type %q", ErrValidation, p.PositionType)
	case p.EntryPrice <= 0:
		return fmt.Errorf("%w: entry price %v", ErrValidation, p.EntryPrice)
	case p.Quantity <= 0:
		return fmt.Errorf("%w: quantity %v", ErrValidation, p.Quantity)
	case p.HedgeQuantity <= 0:
		return fmt.Errorf("%w: hedge quantity %v", ErrValidation, p.HedgeQuantity)
	case p.FundingEndTime.IsZero():
		return fmt.Errorf("%w: funding end time is zero", ErrValidation)
	case p.CloseTime.IsZero():
		return fmt.Errorf("%w: close time is zero", ErrValidation)
	case p.CloseTime.Before(p.FundingEndTime):
		return fmt.Errorf("%w: close time before funding end", ErrValidation)
	case p.Exchange == "":
		return fmt.Errorf("%w: exchange is empty", ErrValidation)
	case p.StrategyName == "":
		return fmt.Errorf("%w: strategy name is empty", ErrValidation)
	}
	return nil
}

// Notional is the USD-equivalent size of the primary leg at entry.
func (p *Position) Notional() float64 { return p.EntryPrice * p.Quantity }

// HedgeNotional is the USD-equivalent size of the hedge leg. The hedge
// is held in the USD-stable token, so its quantity is its notional.
func (p *Position) HedgeNotional() float64 { return p.HedgeQuantity }

// HistoryEntry is one append-only audit record for a position. Entries
// are never edited; retention cleanup is the only deletion path.
type HistoryEntry struct {
	ID         int64
	PositionID string
	Action     HistoryAction
	Price      *float64
	Quantity   *float64
	Timestamp  time.Time
	TxHash     string
	GasUsed    *float64
	GasPrice   *float64
	Notes      string
}

// PartialUpdate lists the only position fields mutable after creation.
// Nil pointers leave the column untouched.
type PartialUpdate struct {
	FundingRate    *float64
	Quantity       *float64
	HedgeQuantity  *float64
	FundingEndTime *time.Time
	CloseTime      *time.Time
	Notes          *string
}

// IsEmpty reports whether no field is set.
func (u PartialUpdate) IsEmpty() bool {
	return u.FundingRate == nil && u.Quantity == nil && u.HedgeQuantity == nil &&
		u.FundingEndTime == nil && u.CloseTime == nil && u.Notes == nil
}

// Fields names the set columns, for the UPDATE audit row.
func (u PartialUpdate) Fields() []string {
	var out []string
	if u.FundingRate != nil {
		out = append(out, "funding_rate")
	}
	if u.Quantity != nil {
		out = append(out, "quantity")
	}
	if u.HedgeQuantity != nil {
		out = append(out, "hedge_quantity")
	}
	if u.FundingEndTime != nil {
		out = append(out, "funding_end_time")
	}
	if u.CloseTime != nil {
		out = append(out, "close_time")
	}
	if u.Notes != nil {
		out = append(out, "notes")
	}
	return out
}

// TokenStats is the per-token slice of the aggregate statistics.
type TokenStats struct {
	TokenSymbol   string
	PositionCount int
	TotalPnL      float64
}

// Statistics aggregates ledger-wide counters. PnL figures cover CLOSED
// positions only.
type Statistics struct {
	TotalPositions     int
	OpenPositions      int
	ClosedPositions    int
	CancelledPositions int
	TotalPnL           float64
	AvgPnL             float64
	TokenStats         []TokenStats
}

// PositionSummary bundles a position with its newest-first history.
type PositionSummary struct {
	Position *Position
	History  []*HistoryEntry
	// HoursUntilClose is set only while the position is OPEN.
	HoursUntilClose *float64
}

// PortfolioStatus is the lifecycle manager's single read for a cycle:
// everything the orchestrator needs before deciding what to close.
type PortfolioStatus struct {
	OpenCount          int
	DueCount           int
	TotalNotional      float64
	TotalHedgeNotional float64
	Open               []*Position
	Due                []*Position
}
