package container

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farb/internal/infrastructure/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	var cfg config.Config
	cfg.App.DryRun = true
	cfg.App.CycleIntervalSeconds = 10
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "positions.db")
	cfg.Strategy.Name = "funding_arbitrage"
	cfg.Strategy.TradeNotionalUSD = 100
	return &cfg
}

func TestContainerWithSQLite(t *testing.T) {
	c, err := New(testConfig(t))
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.Ledger())
	require.NotNil(t, c.Lifecycle())
	assert.Nil(t, c.Events(), "redis disabled means no event sink")

	// the ledger handle must be live
	open, err := c.Ledger().GetOpen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestContainerDryRunExecutors(t *testing.T) {
	c, err := New(testConfig(t))
	require.NoError(t, err)
	defer c.Close()

	perpFill, err := c.PerpExecutor().SubmitPrimaryLeg(context.Background(), "BTC", "LONG", 100, 50000)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, perpFill.FilledPrice)

	hedgeFill, err := c.HedgeExecutor().SubmitHedgeLeg(context.Background(), "BTC", 100, 50000)
	require.NoError(t, err)
	assert.NotEmpty(t, hedgeFill.TxRef)
}

func TestContainerOrchestrator(t *testing.T) {
	c, err := New(testConfig(t))
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.Orchestrator())
	assert.Nil(t, c.Mids(), "live mids off by default")
}

func TestContainerCloseIdempotent(t *testing.T) {
	c, err := New(testConfig(t))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestContainerRejectsBadPostgres(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "postgres"
	cfg.Storage.PostgresDSN = "not-a-dsn"

	_, err := New(cfg)
	assert.Error(t, err)
}
