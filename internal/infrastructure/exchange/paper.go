package exchange

import (
	"context"
	"fmt"
	"sync/atomic"

	"farb/internal/application/port"
)

// PaperExecutor fills both legs instantly at the supplied mark price.
// It backs dry-run mode and the orchestrator tests.
type PaperExecutor struct {
	venue string
	seq   atomic.Int64
}

func NewPaperExecutor(venue string) *PaperExecutor {
	return &PaperExecutor{venue: venue}
}

func (e *PaperExecutor) Name() string { return e.venue + "_PAPER" }

func (e *PaperExecutor) fill(price float64) *port.Fill {
	return &port.Fill{
		FilledPrice: price,
		TxRef:       fmt.Sprintf("paper_%s_%d", e.venue, e.seq.Add(1)),
	}
}

func (e *PaperExecutor) SubmitPrimaryLeg(_ context.Context, coin, direction string, notionalUSD, markPrice float64) (*port.Fill, error) {
	if markPrice <= 0 {
		return nil, fmt.Errorf("invalid mark price %v for %s", markPrice, coin)
	}
	return e.fill(markPrice), nil
}

func (e *PaperExecutor) ClosePrimaryLeg(_ context.Context, coin string, quantity, markPrice float64) (*port.Fill, error) {
	if markPrice <= 0 {
		return nil, fmt.Errorf("invalid mark price %v for %s", markPrice, coin)
	}
	return e.fill(markPrice), nil
}

func (e *PaperExecutor) SubmitHedgeLeg(_ context.Context, coin string, notionalUSD, markPrice float64) (*port.Fill, error) {
	if markPrice <= 0 {
		return nil, fmt.Errorf("invalid mark price %v for %s", markPrice, coin)
	}
	return e.fill(markPrice), nil
}

func (e *PaperExecutor) CloseHedgeLeg(_ context.Context, coin string, quantity, markPrice float64) (*port.Fill, error) {
	if markPrice <= 0 {
		return nil, fmt.Errorf("invalid mark price %v for %s", markPrice, coin)
	}
	return e.fill(markPrice), nil
}

var (
	_ port.PerpExecutor  = (*PaperExecutor)(nil)
	_ port.HedgeExecutor = (*PaperExecutor)(nil)
)
