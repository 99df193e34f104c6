package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"farb/presentation"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete closed positions older than the retention window",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

var cleanupDays int

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "retention window in days (default from config)")
}

func runStats(cmd *cobra.Command, args []string) error {
	_, c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()

	st, err := c.Lifecycle().Statistics(context.Background())
	if err != nil {
		return fmt.Errorf("read statistics: %w", err)
	}

	fmt.Print(presentation.NewRenderer(0).StatsTable(st))
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()

	days := cleanupDays
	if days <= 0 {
		days = cfg.Strategy.RetentionDays
	}

	n, err := c.Lifecycle().Cleanup(context.Background(), days)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	fmt.Printf("deleted %d positions older than %d days\n", n, days)
	return nil
}
