package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the arbitrage control loop",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("config", cfgPath).
		Str("storage", cfg.Storage.Driver).
		Bool("dry_run", cfg.App.DryRun).
		Float64("notional_usd", cfg.Strategy.TradeNotionalUSD).
		Float64("min_funding_rate", cfg.Strategy.MinFundingRate).
		Int("cycle_interval_s", cfg.App.CycleIntervalSeconds).
		Msg("farb started")

	if err := c.Orchestrator().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("orchestrator exited")
		return err
	}
	return nil
}
