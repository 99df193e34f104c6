package config

import (
	"errors"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		CycleIntervalSeconds int    `toml:"cycle_interval_seconds"`
		DryRun               bool   `toml:"dry_run"`
		LogLevel             string `toml:"log_level"`
		LogFile              string `toml:"log_file"`
	} `toml:"app"`

	Strategy struct {
		Name                 string  `toml:"name"`
		TradeNotionalUSD     float64 `toml:"trade_notional_usd"`
		MinFundingRate       float64 `toml:"min_funding_rate"`
		MinLeadMinutes       int     `toml:"min_lead_minutes"`
		FundingDurationHours int     `toml:"funding_duration_hours"`
		CloseGraceMinutes    int     `toml:"close_grace_minutes"`
		FeeRate              float64 `toml:"fee_rate"`
		RetentionDays        int     `toml:"retention_days"`
	} `toml:"strategy"`

	Storage struct {
		Driver      string `toml:"driver"` // sqlite | postgres
		SQLitePath  string `toml:"sqlite_path"`
		PostgresDSN string `toml:"postgres_dsn"`
	} `toml:"storage"`

	Redis struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
		Prefix  string `toml:"prefix"`
	} `toml:"redis"`

	Hyperliquid struct {
		InfoURL     string `toml:"info_url"`
		WsURL       string `toml:"ws_url"`
		ExchangeURL string `toml:"exchange_url"`
		LiveMids    bool   `toml:"live_mids"`
	} `toml:"hyperliquid"`

	OneInch struct {
		BaseURL string `toml:"base_url"`
		APIKey  string `toml:"api_key"`
		ChainID int    `toml:"chain_id"`
	} `toml:"oneinch"`
}

// Load reads the TOML file, overlays secrets from the environment
// (a .env file is honored when present) and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnv(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.CycleIntervalSeconds <= 0 {
		cfg.App.CycleIntervalSeconds = 10
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.Strategy.Name == "" {
		cfg.Strategy.Name = "funding_arbitrage"
	}
	if cfg.Strategy.TradeNotionalUSD <= 0 {
		cfg.Strategy.TradeNotionalUSD = 10
	}
	if cfg.Strategy.FundingDurationHours <= 0 {
		cfg.Strategy.FundingDurationHours = 8
	}
	if cfg.Strategy.CloseGraceMinutes <= 0 {
		cfg.Strategy.CloseGraceMinutes = 5
	}
	if cfg.Strategy.FeeRate <= 0 {
		cfg.Strategy.FeeRate = 0.001
	}
	if cfg.Strategy.RetentionDays <= 0 {
		cfg.Strategy.RetentionDays = 30
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/positions.db"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "farb"
	}
	if cfg.Hyperliquid.InfoURL == "" {
		cfg.Hyperliquid.InfoURL = "https://api.hyperliquid.xyz/info"
	}
	if cfg.Hyperliquid.WsURL == "" {
		cfg.Hyperliquid.WsURL = "wss://api.hyperliquid.xyz/ws"
	}
	if cfg.Hyperliquid.ExchangeURL == "" {
		cfg.Hyperliquid.ExchangeURL = "https://api.hyperliquid.xyz/exchange"
	}
	if cfg.OneInch.BaseURL == "" {
		cfg.OneInch.BaseURL = "https://api.1inch.dev/swap/v6.0"
	}
	if cfg.OneInch.ChainID <= 0 {
		cfg.OneInch.ChainID = 42161 // arbitrum
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ONEINCH_API_KEY"); v != "" {
		cfg.OneInch.APIKey = v
	}
	if v := os.Getenv("FARB_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("FARB_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(cfg.Storage.PostgresDSN) == "" {
			return errors.New("storage.postgres_dsn is empty but driver is postgres")
		}
	default:
		return errors.New("storage.driver must be sqlite or postgres")
	}

	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr is empty but redis enabled")
	}
	if cfg.Strategy.MinFundingRate < 0 {
		return errors.New("strategy.min_funding_rate must not be negative")
	}
	if cfg.Strategy.MinLeadMinutes < 0 {
		return errors.New("strategy.min_lead_minutes must not be negative")
	}
	if !cfg.App.DryRun && strings.TrimSpace(cfg.OneInch.APIKey) == "" {
		return errors.New("oneinch.api_key required unless app.dry_run")
	}
	return nil
}
