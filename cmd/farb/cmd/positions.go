package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"farb/presentation"
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List open positions",
	Args:  cobra.NoArgs,
	RunE:  runPositions,
}

var historyCmd = &cobra.Command{
	Use:   "history <position-id>",
	Short: "Show a position's summary and audit trail",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(positionsCmd)
	rootCmd.AddCommand(historyCmd)
}

func runPositions(cmd *cobra.Command, args []string) error {
	_, c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()

	now := time.Now()
	status, err := c.Lifecycle().Monitor(context.Background(), now)
	if err != nil {
		return fmt.Errorf("read portfolio: %w", err)
	}

	r := presentation.NewRenderer(0)
	fmt.Print(r.PositionsTable(status.Open, now))
	fmt.Printf("\nopen: %d  due: %d  notional: %.2f  hedge notional: %.2f\n",
		status.OpenCount, status.DueCount, status.TotalNotional, status.TotalHedgeNotional)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	_, c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()

	sum, err := c.Lifecycle().Summary(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("position summary: %w", err)
	}

	p := sum.Position
	fmt.Printf("%s  %s %s  entry %.4f  qty %.6f  status %s  pnl %.4f\n",
		p.ID, p.TokenSymbol, p.PositionType, p.EntryPrice, p.Quantity, p.Status, p.PnL)
	if sum.HoursUntilClose != nil {
		fmt.Printf("closes in %.1fh\n", *sum.HoursUntilClose)
	}
	fmt.Println()

	r := presentation.NewRenderer(0)
	fmt.Print(r.HistoryTable(sum.History))
	return nil
}
