package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"farb/internal/application/port"
	"farb/internal/application/service"
	"farb/internal/application/usecase/arbitrage"
	"farb/internal/domain/model"
	"farb/internal/infrastructure/config"
	"farb/internal/infrastructure/exchange"
	"farb/internal/infrastructure/exchange/hyperliquid"
	"farb/internal/infrastructure/exchange/oneinch"
	postgresledger "farb/internal/infrastructure/storage/postgres"
	redissink "farb/internal/infrastructure/storage/redis"
	sqliteledger "farb/internal/infrastructure/storage/sqlite"
	"farb/presentation"
)

// Container owns every stateful dependency: the ledger handle, the
// redis client, venue adapters. New opens them, Close releases them in
// reverse order. There is no process-global state.
type Container struct {
	cfg *config.Config

	ledger    port.PositionLedger
	events    port.EventSink
	lifecycle *service.Lifecycle

	closeOnce   sync.Once
	closerChain []func() error
}

func New(cfg *config.Config) (*Container, error) {
	c := &Container{cfg: cfg}

	if err := c.initLedger(); err != nil {
		_ = c.Close()
		return nil, err
	}
	if cfg.Redis.Enabled {
		if err := c.initRedis(); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	c.lifecycle = service.NewLifecycle(c.ledger, service.LifecycleConfig{
		FundingDurationHours: cfg.Strategy.FundingDurationHours,
		CloseGraceMinutes:    cfg.Strategy.CloseGraceMinutes,
		FeeRate:              cfg.Strategy.FeeRate,
		Exchange:             "hyperliquid",
		StrategyName:         cfg.Strategy.Name,
		HedgeTokenSymbol:     "USDC",
		HedgeTokenAddress:    "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
	})

	return c, nil
}

func (c *Container) initLedger() error {
	switch c.cfg.Storage.Driver {
	case "postgres":
		l, err := postgresledger.New(c.cfg.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres ledger init failed: %w", err)
		}
		c.ledger = l
	default:
		l, err := sqliteledger.New(c.cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite ledger init failed: %w", err)
		}
		c.ledger = l
	}
	c.closerChain = append(c.closerChain, c.ledger.Close)
	return nil
}

func (c *Container) initRedis() error {
	rdb := goredis.NewClient(&goredis.Options{Addr: c.cfg.Redis.Addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	sink := redissink.NewEventSink(rdb, c.cfg.Redis.Prefix)
	c.events = sink
	c.closerChain = append(c.closerChain, sink.Close)
	return nil
}

func (c *Container) Ledger() port.PositionLedger { return c.ledger }

func (c *Container) Lifecycle() *service.Lifecycle { return c.lifecycle }

// Events is nil when redis is disabled; the orchestrator treats a nil
// sink as no-op.
func (c *Container) Events() port.EventSink { return c.events }

func (c *Container) Markets() port.MarketDataSource {
	return hyperliquid.NewInfoClient(c.cfg.Hyperliquid.InfoURL)
}

func (c *Container) Mids() port.MidsFeed {
	if !c.cfg.Hyperliquid.LiveMids {
		return nil
	}
	return hyperliquid.NewMidsFeed(c.cfg.Hyperliquid.WsURL)
}

func (c *Container) PerpExecutor() port.PerpExecutor {
	if c.cfg.App.DryRun {
		return exchange.NewPaperExecutor("HYPERLIQUID")
	}
	return hyperliquid.NewPerpExecutor(c.cfg.Hyperliquid.ExchangeURL)
}

func (c *Container) HedgeExecutor() port.HedgeExecutor {
	if c.cfg.App.DryRun {
		return exchange.NewPaperExecutor("1INCH")
	}
	return oneinch.NewHedgeExecutor(c.cfg.OneInch.BaseURL, c.cfg.OneInch.APIKey, c.cfg.OneInch.ChainID)
}

// Orchestrator assembles the control-loop service from the container's
// parts.
func (c *Container) Orchestrator() *arbitrage.Service {
	return arbitrage.NewService(arbitrage.ServiceDeps{
		Markets:   c.Markets(),
		Mids:      c.Mids(),
		Perp:      c.PerpExecutor(),
		Hedge:     c.HedgeExecutor(),
		Lifecycle: c.lifecycle,
		Events:    c.events,
		Renderer:  presentation.NewRenderer(20),
		Policy: model.Policy{
			MinFundingRate:   c.cfg.Strategy.MinFundingRate,
			MinLeadMinutes:   c.cfg.Strategy.MinLeadMinutes,
			TradeNotionalUSD: c.cfg.Strategy.TradeNotionalUSD,
			StrategyName:     c.cfg.Strategy.Name,
		},
		Interval: time.Duration(c.cfg.App.CycleIntervalSeconds) * time.Second,
	})
}

// Close releases resources in reverse initialization order.
func (c *Container) Close() error {
	var firstErr error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if err := c.closerChain[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}
