package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"farb/internal/application/port"
	"farb/internal/domain/model"
	dsvc "farb/internal/domain/service"
)

// LifecycleConfig fixes the policy constants the manager applies to
// every position it opens or closes.
type LifecycleConfig struct {
	FundingDurationHours int
	CloseGraceMinutes    int
	FeeRate              float64
	Exchange             string
	StrategyName         string
	HedgeTokenSymbol     string
	HedgeTokenAddress    string
}

// Lifecycle owns the position state machine. All ledger mutations made
// by the engine flow through it; the orchestrator never touches the
// ledger directly.
type Lifecycle struct {
	ledger port.PositionLedger
	cfg    LifecycleConfig
	now    func() time.Time
}

func NewLifecycle(ledger port.PositionLedger, cfg LifecycleConfig) *Lifecycle {
	if cfg.FundingDurationHours <= 0 {
		cfg.FundingDurationHours = 8
	}
	if cfg.CloseGraceMinutes <= 0 {
		cfg.CloseGraceMinutes = 5
	}
	if cfg.FeeRate <= 0 {
		cfg.FeeRate = 0.001
	}
	return &Lifecycle{ledger: ledger, cfg: cfg, now: time.Now}
}

// newPositionID follows the pos_<8 hex>_<unix> scheme.
func (m *Lifecycle) newPositionID() string {
	return fmt.Sprintf("pos_%s_%d", uuid.NewString()[:8], m.now().Unix())
}

// Open records a freshly executed candidate as an OPEN position. The
// primary leg is LONG by strategy convention: the accrual-receiving
// side. Returns the new position id.
func (m *Lifecycle) Open(ctx context.Context, cand model.Candidate, entryPrice float64, txHash, notes string) (string, error) {
	now := m.now()
	fundingEnd := now.Add(time.Duration(m.cfg.FundingDurationHours) * time.Hour)
	closeAt := fundingEnd.Add(time.Duration(m.cfg.CloseGraceMinutes) * time.Minute)

	coin := strings.ToUpper(cand.Snapshot.Coin)
	if txHash != "" {
		if notes != "" {
			notes += "; "
		}
		notes += "entry tx " + txHash
	}
	p := &model.Position{
		ID:               m.newPositionID(),
		TokenSymbol:      coin,
		TokenAddress:     "0x" + strings.ToLower(coin),
		PositionType:     model.TypeLong,
		EntryPrice:       entryPrice,
		Quantity:         cand.NotionalUSD / entryPrice,
		HedgeQuantity:    cand.NotionalUSD,
		HedgeTokenSymbol: m.cfg.HedgeTokenSymbol,
		HedgeTokenAddr:   m.cfg.HedgeTokenAddress,
		FundingRate:      cand.Snapshot.FundingHourly,
		FundingEndTime:   fundingEnd,
		CloseTime:        closeAt,
		Status:           model.StatusOpen,
		Exchange:         m.cfg.Exchange,
		StrategyName:     m.cfg.StrategyName,
		Notes:            notes,
	}

	id, err := m.ledger.Create(ctx, p)
	if err != nil {
		return "", err
	}

	log.Info().
		Str("position_id", id).
		Str("coin", coin).
		Float64("entry_price", entryPrice).
		Float64("quantity", p.Quantity).
		Float64("funding_hourly", p.FundingRate).
		Time("close_time", closeAt).
		Msg("position opened")
	return id, nil
}

// RecordHedgeFill appends the hedge-leg fill to the audit trail.
func (m *Lifecycle) RecordHedgeFill(ctx context.Context, id string, fill port.Fill, quantity float64) error {
	ok, err := m.ledger.RecordHedge(ctx, id, fill.FilledPrice, quantity, fill.TxRef, "")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return nil
}

// CloseWithPnL loads the position, computes realized pnl net of the
// commission estimate, and closes it in the ledger. False means the
// position was already non-OPEN: a tolerated race, not an error.
func (m *Lifecycle) CloseWithPnL(ctx context.Context, id string, closePrice float64, txHash, notes string) (bool, error) {
	p, err := m.ledger.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	pnl := dsvc.RealizedPnL(p.PositionType, p.EntryPrice, closePrice, p.Quantity, m.cfg.FeeRate)

	ok, err := m.ledger.ClosePosition(ctx, id, closePrice, pnl, txHash, notes)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Warn().Str("position_id", id).Msg("position already closed")
		return false, nil
	}

	log.Info().
		Str("position_id", id).
		Float64("close_price", closePrice).
		Float64("pnl", pnl).
		Msg("position closed")
	return true, nil
}

// Cancel voids a position whose opening execution failed before
// confirmation. No pnl impact.
func (m *Lifecycle) Cancel(ctx context.Context, id, reason string) (bool, error) {
	ok, err := m.ledger.CancelPosition(ctx, id, reason)
	if err != nil {
		return false, err
	}
	if ok {
		log.Warn().Str("position_id", id).Str("reason", reason).Msg("position cancelled")
	}
	return ok, nil
}

// Monitor is the orchestrator's single read before deciding what to
// close this cycle.
func (m *Lifecycle) Monitor(ctx context.Context, now time.Time) (*model.PortfolioStatus, error) {
	open, err := m.ledger.GetOpen(ctx)
	if err != nil {
		return nil, err
	}
	due, err := m.ledger.GetDueForClose(ctx, now)
	if err != nil {
		return nil, err
	}

	st := &model.PortfolioStatus{
		OpenCount: len(open),
		DueCount:  len(due),
		Open:      open,
		Due:       due,
	}
	for _, p := range open {
		st.TotalNotional += p.Notional()
		st.TotalHedgeNotional += p.HedgeNotional()
	}
	return st, nil
}

// UpdateFundingRate refreshes the recorded funding rate mid-hold.
func (m *Lifecycle) UpdateFundingRate(ctx context.Context, id string, rate float64) (bool, error) {
	return m.ledger.Update(ctx, id, model.PartialUpdate{FundingRate: &rate})
}

// ExtendCloseTime pushes a position's unwind deadline back.
func (m *Lifecycle) ExtendCloseTime(ctx context.Context, id string, hours int) (bool, error) {
	p, err := m.ledger.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	t := p.CloseTime.Add(time.Duration(hours) * time.Hour)
	return m.ledger.Update(ctx, id, model.PartialUpdate{CloseTime: &t})
}

// Summary returns a position with its newest-first history and, while
// it remains OPEN, the hours until its unwind deadline.
func (m *Lifecycle) Summary(ctx context.Context, id string) (*model.PositionSummary, error) {
	p, err := m.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	hist, err := m.ledger.History(ctx, id)
	if err != nil {
		return nil, err
	}
	s := &model.PositionSummary{Position: p, History: hist}
	if p.Status == model.StatusOpen {
		h := p.CloseTime.Sub(m.now()).Hours()
		s.HoursUntilClose = &h
	}
	return s, nil
}

// Statistics proxies the ledger aggregate.
func (m *Lifecycle) Statistics(ctx context.Context) (*model.Statistics, error) {
	return m.ledger.Statistics(ctx)
}

// Cleanup prunes CLOSED positions past the retention window.
func (m *Lifecycle) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	n, err := m.ledger.Cleanup(ctx, retentionDays)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Int("retention_days", retentionDays).Msg("old positions cleaned up")
	}
	return n, nil
}
