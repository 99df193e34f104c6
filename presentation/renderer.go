package presentation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"farb/internal/domain/model"
)

// ANSI color codes
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
)

// Colorize applies ANSI color to a string.
func Colorize(s, color string) string {
	return color + s + ansiReset
}

// Renderer turns market and portfolio state into console tables.
type Renderer struct {
	// MaxRows caps the markets table; 0 means no cap.
	MaxRows int
}

func NewRenderer(maxRows int) *Renderer {
	return &Renderer{MaxRows: maxRows}
}

// MarketsTable lists markets by absolute funding descending, the same
// order the evaluator ranks them in.
func (r *Renderer) MarketsTable(snaps []model.MarketSnapshot, now time.Time) string {
	rows := make([]model.MarketSnapshot, len(snaps))
	copy(rows, snaps)
	sort.SliceStable(rows, func(i, j int) bool {
		return math.Abs(rows[i].FundingHourly) > math.Abs(rows[j].FundingHourly)
	})
	if r.MaxRows > 0 && len(rows) > r.MaxRows {
		rows = rows[:r.MaxRows]
	}

	var sb strings.Builder
	sb.WriteString(Colorize("PERPETUAL MARKETS\n", ansiDim))
	sb.WriteString(fmt.Sprintf("%-10s %14s %12s %16s %12s\n",
		"COIN", "MARK", "FUND %/H", "24H VOL USD", "NEXT FUND"))
	sb.WriteString(strings.Repeat("-", 68) + "\n")

	for _, s := range rows {
		fundCol := ansiYellow
		if s.FundingHourly > 0 {
			fundCol = ansiGreen
		} else if s.FundingHourly < 0 {
			fundCol = ansiRed
		}
		sb.WriteString(fmt.Sprintf("%-10s %14.4f %s %16.0f %12s\n",
			s.Coin,
			s.MarkPrice,
			Colorize(fmt.Sprintf("%12.5f", s.FundingHourly*100), fundCol),
			s.Volume24hUSD,
			formatTimeUntil(s.NextFundingTime, now)))
	}
	return sb.String()
}

// PositionsTable lists positions with their unwind deadlines.
func (r *Renderer) PositionsTable(positions []*model.Position, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(Colorize("POSITIONS\n", ansiDim))
	sb.WriteString(fmt.Sprintf("%-26s %-8s %-6s %12s %12s %10s %12s %-10s\n",
		"ID", "COIN", "TYPE", "ENTRY", "QTY", "STATUS", "PNL", "CLOSE IN"))
	sb.WriteString(strings.Repeat("-", 104) + "\n")

	for _, p := range positions {
		closeIn := "-"
		if p.Status == model.StatusOpen {
			closeIn = formatDuration(p.CloseTime.Sub(now))
		}
		pnlCol := ansiYellow
		if p.PnL > 0 {
			pnlCol = ansiGreen
		} else if p.PnL < 0 {
			pnlCol = ansiRed
		}
		sb.WriteString(fmt.Sprintf("%-26s %-8s %-6s %12.4f %12.6f %10s %s %-10s\n",
			p.ID, p.TokenSymbol, p.PositionType, p.EntryPrice, p.Quantity, p.Status,
			Colorize(fmt.Sprintf("%12.4f", p.PnL), pnlCol), closeIn))
	}
	if len(positions) == 0 {
		sb.WriteString(Colorize("  (none)\n", ansiDim))
	}
	return sb.String()
}

// StatsTable renders the ledger aggregate with the per-token breakdown.
func (r *Renderer) StatsTable(st *model.Statistics) string {
	var sb strings.Builder
	sb.WriteString(Colorize("STATISTICS\n", ansiDim))
	sb.WriteString(fmt.Sprintf("  total: %d  open: %d  closed: %d  cancelled: %d\n",
		st.TotalPositions, st.OpenPositions, st.ClosedPositions, st.CancelledPositions))
	sb.WriteString(fmt.Sprintf("  total pnl: %.4f  avg pnl: %.4f\n\n", st.TotalPnL, st.AvgPnL))

	sb.WriteString(fmt.Sprintf("%-10s %10s %14s\n", "COIN", "COUNT", "TOTAL PNL"))
	sb.WriteString(strings.Repeat("-", 36) + "\n")
	for _, ts := range st.TokenStats {
		sb.WriteString(fmt.Sprintf("%-10s %10d %14.4f\n", ts.TokenSymbol, ts.PositionCount, ts.TotalPnL))
	}
	return sb.String()
}

// HistoryTable renders a position's audit trail, newest first.
func (r *Renderer) HistoryTable(entries []*model.HistoryEntry) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-20s %-8s %12s %12s %-16s %s\n",
		"TIME", "ACTION", "PRICE", "QTY", "TX", "NOTES"))
	sb.WriteString(strings.Repeat("-", 90) + "\n")
	for _, e := range entries {
		price, qty := "-", "-"
		if e.Price != nil {
			price = fmt.Sprintf("%.4f", *e.Price)
		}
		if e.Quantity != nil {
			qty = fmt.Sprintf("%.6f", *e.Quantity)
		}
		tx := e.TxHash
		if len(tx) > 14 {
			tx = tx[:14] + ".."
		}
		sb.WriteString(fmt.Sprintf("%-20s %-8s %12s %12s %-16s %s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, price, qty, tx, e.Notes))
	}
	return sb.String()
}

func formatTimeUntil(t *time.Time, now time.Time) string {
	if t == nil {
		return "N/A"
	}
	return formatDuration(t.Sub(now))
}

func formatDuration(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	var s string
	if h > 0 {
		s = fmt.Sprintf("%dh %dm", h, m)
	} else {
		s = fmt.Sprintf("%dm", m)
	}
	if neg {
		return "-" + s
	}
	return s
}
