package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"farb/internal/infrastructure/config"
	"farb/internal/infrastructure/exchange/hyperliquid"
	"farb/internal/infrastructure/logger"
	"farb/presentation"
)

var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "Print the current perpetual funding table",
	Args:  cobra.NoArgs,
	RunE:  runMarkets,
}

var marketsTop int

func init() {
	rootCmd.AddCommand(marketsCmd)
	marketsCmd.Flags().IntVar(&marketsTop, "top", 25, "number of markets to show")
}

func runMarkets(cmd *cobra.Command, args []string) error {
	// market data needs no ledger, so skip the container
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger.Setup(cfg.App.LogLevel, cfg.App.LogFile)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	snaps, err := hyperliquid.NewInfoClient(cfg.Hyperliquid.InfoURL).FetchSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("fetch markets: %w", err)
	}

	fmt.Print(presentation.NewRenderer(marketsTop).MarketsTable(snaps, time.Now()))
	return nil
}
