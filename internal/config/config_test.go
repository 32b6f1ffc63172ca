package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner   = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	account = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int32(6), cfg.Asset.Decimals)
	assert.Equal(t, "USDC", cfg.Asset.Symbol)
	assert.Equal(t, "1", cfg.Fund.InitialPrice)
	assert.Equal(t, "0", cfg.Fund.Cap)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, "0 0 * * * *", cfg.Schedule.SnapshotCron)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, `
server:
  port: "9000"
fund:
  name: Test Fund
  symbol: TF
  owner: `+owner+`
  account: `+account+`
  initial_price: "1.25"
  cap: "1000000"
  whitelist:
    - "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
asset:
  decimals: 18
redis:
  cache_ttl: 5s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "Test Fund", cfg.Fund.Name)
	assert.Equal(t, int32(18), cfg.Asset.Decimals)
	assert.Equal(t, 5*time.Second, cfg.Redis.CacheTTL)

	price, err := cfg.InitialPriceUnits()
	require.NoError(t, err)
	assert.Equal(t, "125000000", price.String())

	cp, err := cfg.CapUnits()
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000000", cp.String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "server:\n  port: \"9000\"\n")
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://localhost/fund")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("FUND_OWNER", owner)
	t.Setenv("FUND_ACCOUNT", account)
	t.Setenv("FUND_CAP", "500")
	t.Setenv("ASSET_DECIMALS", "8")
	t.Setenv("SNAPSHOT_CRON", "@every 1m")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/fund", cfg.Database.URL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, owner, cfg.Fund.Owner)
	assert.Equal(t, "500", cfg.Fund.Cap)
	assert.Equal(t, int32(8), cfg.Asset.Decimals)
	assert.Equal(t, "@every 1m", cfg.Schedule.SnapshotCron)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeFile(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.Fund.Owner = owner
		cfg.Fund.Account = account
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing owner", func(c *Config) { c.Fund.Owner = "" }},
		{"bad account", func(c *Config) { c.Fund.Account = "0x1234" }},
		{"bad custodian", func(c *Config) { c.Fund.Custodian = "custodian" }},
		{"bad whitelist entry", func(c *Config) { c.Fund.Whitelist = []string{"nope"} }},
		{"asset decimals too large", func(c *Config) { c.Asset.Decimals = 19 }},
		{"zero price", func(c *Config) { c.Fund.InitialPrice = "0" }},
		{"price too precise", func(c *Config) { c.Fund.InitialPrice = "1.000000001" }},
		{"negative cap", func(c *Config) { c.Fund.Cap = "-1" }},
		{"bad cron", func(c *Config) { c.Schedule.SnapshotCron = "every hour" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
