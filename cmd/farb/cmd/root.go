package cmd

import (
	"github.com/spf13/cobra"

	"farb/internal/application/container"
	"farb/internal/infrastructure/config"
	"farb/internal/infrastructure/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "farb",
	Short: "Funding-rate arbitrage engine for perpetual swaps",
	Long: `farb holds delta-neutral pairs (a perpetual leg on Hyperliquid and a
spot hedge on 1inch) open while the funding payment is expected to
exceed costs, then unwinds both legs and books the realized pnl.

Positions and their full audit history live in a local sqlite ledger
(or postgres), so the control loop resumes safely after a restart.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "configs/config.toml", "path to config.toml")
}

// setup loads config, configures logging and opens the container.
// Callers own the returned container and must Close it.
func setup() (*config.Config, *container.Container, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Setup(cfg.App.LogLevel, cfg.App.LogFile)

	c, err := container.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, c, nil
}
