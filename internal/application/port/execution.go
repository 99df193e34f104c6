package port

import "context"

// Fill is an acknowledged execution on either venue.
type Fill struct {
	FilledPrice float64
	TxRef       string
}

// PerpExecutor submits the primary leg on the perpetual venue.
type PerpExecutor interface {
	Name() string
	// SubmitPrimaryLeg opens the accrual-receiving side. Direction is
	// "LONG" or "SHORT" from the primary leg's point of view.
	SubmitPrimaryLeg(ctx context.Context, coin, direction string, notionalUSD, markPrice float64) (*Fill, error)
	// ClosePrimaryLeg unwinds a previously opened primary leg.
	ClosePrimaryLeg(ctx context.Context, coin string, quantity, markPrice float64) (*Fill, error)
}

// HedgeExecutor submits the offsetting leg on the spot venue.
type HedgeExecutor interface {
	Name() string
	SubmitHedgeLeg(ctx context.Context, coin string, notionalUSD, markPrice float64) (*Fill, error)
	CloseHedgeLeg(ctx context.Context, coin string, quantity, markPrice float64) (*Fill, error)
}
