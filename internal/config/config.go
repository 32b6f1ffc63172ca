// Package config loads the service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/offchain/fund-engine/internal/address"
	"github.com/offchain/fund-engine/internal/fixedpoint"
)

// SnapshotParser accepts six-field cron expressions with a leading seconds field.
var SnapshotParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Fund struct {
		Name      string `yaml:"name"`
		Symbol    string `yaml:"symbol"`
		Owner     string `yaml:"owner"`
		Account   string `yaml:"account"`
		Custodian string `yaml:"custodian"`
		// InitialPrice and Cap are human amounts ("1.0", "1000000000").
		InitialPrice string   `yaml:"initial_price"`
		Cap          string   `yaml:"cap"`
		Whitelist    []string `yaml:"whitelist"`
	} `yaml:"fund"`
	Asset struct {
		Symbol   string `yaml:"symbol"`
		Decimals int32  `yaml:"decimals"`
	} `yaml:"asset"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL      string        `yaml:"url"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"redis"`
	Schedule struct {
		SnapshotCron string `yaml:"snapshot_cron"`
	} `yaml:"schedule"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("FUND_OWNER"); v != "" {
		c.Fund.Owner = v
	}
	if v := os.Getenv("FUND_ACCOUNT"); v != "" {
		c.Fund.Account = v
	}
	if v := os.Getenv("FUND_CUSTODIAN"); v != "" {
		c.Fund.Custodian = v
	}
	if v := os.Getenv("FUND_CAP"); v != "" {
		c.Fund.Cap = v
	}
	if v := os.Getenv("ASSET_DECIMALS"); v != "" {
		if d, err := strconv.ParseInt(v, 10, 32); err == nil {
			c.Asset.Decimals = int32(d)
		}
	}
	if v := os.Getenv("SNAPSHOT_CRON"); v != "" {
		c.Schedule.SnapshotCron = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Fund.Name == "" {
		c.Fund.Name = "Offchain Fund"
	}
	if c.Fund.Symbol == "" {
		c.Fund.Symbol = "OCF"
	}
	if c.Fund.InitialPrice == "" {
		c.Fund.InitialPrice = "1"
	}
	if c.Fund.Cap == "" {
		c.Fund.Cap = "0"
	}
	if c.Asset.Symbol == "" {
		c.Asset.Symbol = "USDC"
	}
	if c.Asset.Decimals == 0 {
		c.Asset.Decimals = 6
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = 30 * time.Second
	}
	if c.Schedule.SnapshotCron == "" {
		c.Schedule.SnapshotCron = "0 0 * * * *" // hourly
	}
}

// Validate checks that all required fields are set and well formed.
func (c *Config) Validate() error {
	if _, err := address.Parse(c.Fund.Owner); err != nil {
		return fmt.Errorf("fund.owner: %w", err)
	}
	if _, err := address.Parse(c.Fund.Account); err != nil {
		return fmt.Errorf("fund.account: %w", err)
	}
	if c.Fund.Custodian != "" {
		if _, err := address.Parse(c.Fund.Custodian); err != nil {
			return fmt.Errorf("fund.custodian: %w", err)
		}
	}
	if _, err := address.ParseList(c.Fund.Whitelist); err != nil {
		return fmt.Errorf("fund.whitelist: %w", err)
	}
	if err := fixedpoint.CheckAssetDecimals(c.Asset.Decimals); err != nil {
		return fmt.Errorf("asset.decimals: %w", err)
	}
	if p, err := c.InitialPriceUnits(); err != nil {
		return fmt.Errorf("fund.initial_price: %w", err)
	} else if !p.IsPositive() {
		return fmt.Errorf("fund.initial_price must be positive")
	}
	if _, err := c.CapUnits(); err != nil {
		return fmt.Errorf("fund.cap: %w", err)
	}
	if _, err := SnapshotParser.Parse(c.Schedule.SnapshotCron); err != nil {
		return fmt.Errorf("schedule.snapshot_cron: %w", err)
	}
	return nil
}

// InitialPriceUnits returns the configured starting price at 8 decimals.
func (c *Config) InitialPriceUnits() (decimal.Decimal, error) {
	return fixedpoint.ToBaseUnits(c.Fund.InitialPrice, fixedpoint.PriceDecimals)
}

// CapUnits returns the configured share cap at 18 decimals.
func (c *Config) CapUnits() (decimal.Decimal, error) {
	return fixedpoint.ToBaseUnits(c.Fund.Cap, fixedpoint.ShareDecimals)
}
