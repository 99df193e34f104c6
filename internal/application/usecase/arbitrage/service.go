package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"farb/internal/application/port"
	"farb/internal/application/service"
	"farb/internal/domain/model"
	dsvc "farb/internal/domain/service"
	"farb/presentation"
)

// ServiceDeps wires the orchestrator's collaborators. Markets, Perp and
// Hedge are external venues; any of their calls may fail and only abort
// the current cycle.
type ServiceDeps struct {
	Markets   port.MarketDataSource
	Mids      port.MidsFeed // optional live mark prices
	Perp      port.PerpExecutor
	Hedge     port.HedgeExecutor
	Lifecycle *service.Lifecycle
	Events    port.EventSink
	Renderer  *presentation.Renderer
	Policy    model.Policy
	Interval  time.Duration
}

// Service drives the arbitrage control loop: one cycle runs to
// completion before the next interval elapses, so there is never more
// than one in-flight open or close.
type Service struct {
	deps ServiceDeps
	now  func() time.Time

	mu   sync.RWMutex
	mids map[string]float64 // latest live mark per coin
}

func NewService(deps ServiceDeps) *Service {
	return &Service{
		deps: deps,
		now:  time.Now,
		mids: make(map[string]float64),
	}
}

// Run blocks until ctx is done. A failure inside a cycle is logged and
// the loop proceeds; it never terminates the process.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Markets == nil {
		return errors.New("no market data source")
	}

	if s.deps.Mids != nil {
		ch, err := s.deps.Mids.Subscribe(ctx)
		if err != nil {
			log.Warn().Err(err).Str("feed", s.deps.Mids.Name()).Msg("live mids unavailable, using cycle snapshots")
		} else {
			go s.consumeMids(ctx, ch)
			log.Info().Str("feed", s.deps.Mids.Name()).Msg("live mids feed started")
		}
	}

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	// first cycle immediately
	s.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Service) consumeMids(ctx context.Context, in <-chan port.Mid) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			if m.Price <= 0 {
				continue
			}
			s.mu.Lock()
			s.mids[m.Coin] = m.Price
			s.mu.Unlock()
		}
	}
}

// cycle is one full pass: fetch, close due positions, evaluate, open at
// most one new position.
func (s *Service) cycle(ctx context.Context) {
	now := s.now()

	snaps, err := s.deps.Markets.FetchSnapshots(ctx)
	if err != nil {
		log.Error().Err(err).Str("source", s.deps.Markets.Name()).Msg("market data fetch failed, cycle aborted")
		return
	}

	if s.deps.Renderer != nil {
		report := s.deps.Renderer.MarketsTable(snaps, now)
		fmt.Print(report)
		if s.deps.Events != nil {
			_ = s.deps.Events.CacheSnapshotReport(ctx, now.UnixMilli(), report)
		}
	}

	status, err := s.deps.Lifecycle.Monitor(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("portfolio read failed, cycle aborted")
		return
	}
	log.Debug().
		Int("open", status.OpenCount).
		Int("due", status.DueCount).
		Float64("notional", status.TotalNotional).
		Float64("hedge_notional", status.TotalHedgeNotional).
		Msg("portfolio status")

	// due positions unwind before any new commitment, oldest first
	for _, p := range status.Due {
		s.closeDue(ctx, p, snaps)
	}

	// refresh the open set after the closes
	open, err := s.deps.Lifecycle.Monitor(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("portfolio re-read failed, cycle aborted")
		return
	}

	cands := dsvc.Evaluate(snaps, open.Open, s.deps.Policy, now)
	if len(cands) == 0 {
		log.Info().Msg("no opportunity acted on")
		return
	}

	s.openBest(ctx, cands[0])
}

// closePrice prefers the freshest live mid, then the cycle snapshot,
// then the entry price as a last resort.
func (s *Service) closePrice(p *model.Position, snaps []model.MarketSnapshot) float64 {
	s.mu.RLock()
	mid, ok := s.mids[p.TokenSymbol]
	s.mu.RUnlock()
	if ok && mid > 0 {
		return mid
	}
	for _, snap := range snaps {
		if snap.Coin == p.TokenSymbol && snap.MarkPrice > 0 {
			return snap.MarkPrice
		}
	}
	return p.EntryPrice
}

func (s *Service) closeDue(ctx context.Context, p *model.Position, snaps []model.MarketSnapshot) {
	price := s.closePrice(p, snaps)

	perpFill, err := s.deps.Perp.ClosePrimaryLeg(ctx, p.TokenSymbol, p.Quantity, price)
	if err != nil {
		log.Error().Err(err).Str("position_id", p.ID).Msg("primary leg close failed, will retry next cycle")
		return
	}
	if _, err := s.deps.Hedge.CloseHedgeLeg(ctx, p.TokenSymbol, p.HedgeQuantity, price); err != nil {
		// the perp side is flat; the hedge sell retries next cycle when
		// the position comes up due again
		log.Error().Err(err).Str("position_id", p.ID).Msg("hedge leg close failed, will retry next cycle")
		return
	}

	closed, err := s.deps.Lifecycle.CloseWithPnL(ctx, p.ID, perpFill.FilledPrice, perpFill.TxRef, "auto close after funding window")
	if err != nil {
		log.Error().Err(err).Str("position_id", p.ID).Msg("ledger close failed")
		return
	}
	if closed && s.deps.Events != nil {
		_ = s.deps.Events.PublishPositionEvent(ctx, port.PositionEvent{
			Kind:       "close",
			PositionID: p.ID,
			Coin:       p.TokenSymbol,
			Price:      perpFill.FilledPrice,
			Quantity:   p.Quantity,
			Ts:         s.now().UnixMilli(),
		})
	}
}

// openBest executes both legs for the top candidate and records the
// position only after both fills are acknowledged. A failed primary leg
// after a filled hedge leaves no ledger trace; the unreconciled hedge
// is logged for manual follow-up.
func (s *Service) openBest(ctx context.Context, cand model.Candidate) {
	coin := cand.Snapshot.Coin

	hedgeFill, err := s.deps.Hedge.SubmitHedgeLeg(ctx, coin, cand.NotionalUSD, cand.Snapshot.MarkPrice)
	if err != nil {
		log.Error().Err(err).Str("coin", coin).Msg("hedge leg failed, opportunity skipped")
		return
	}

	perpFill, err := s.deps.Perp.SubmitPrimaryLeg(ctx, coin, string(model.TypeLong), cand.NotionalUSD, cand.Snapshot.MarkPrice)
	if err != nil {
		log.Error().Err(err).
			Str("coin", coin).
			Str("hedge_tx", hedgeFill.TxRef).
			Float64("hedge_notional", cand.NotionalUSD).
			Msg("primary leg failed after hedge fill; hedge left unreconciled")
		return
	}

	id, err := s.deps.Lifecycle.Open(ctx, cand, perpFill.FilledPrice, perpFill.TxRef, "funding arbitrage "+coin)
	if err != nil {
		log.Error().Err(err).Str("coin", coin).Msg("position record failed")
		return
	}

	if err := s.deps.Lifecycle.RecordHedgeFill(ctx, id, *hedgeFill, cand.NotionalUSD); err != nil {
		log.Warn().Err(err).Str("position_id", id).Msg("hedge fill not recorded")
	}

	if s.deps.Events != nil {
		_ = s.deps.Events.PublishPositionEvent(ctx, port.PositionEvent{
			Kind:       "open",
			PositionID: id,
			Coin:       coin,
			Price:      perpFill.FilledPrice,
			Quantity:   cand.Quantity,
			Ts:         s.now().UnixMilli(),
		})
	}
}
