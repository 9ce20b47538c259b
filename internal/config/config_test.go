package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trader/internal/domain"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTP.Addr())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.Account.OpeningBalance)
	assert.Equal(t, 0.04, cfg.Sizing.DefaultPositionSizePct)
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := writeFile(t, `
account:
  opening_balance: 25
  cost_basis: first_lot
sizing:
  default_position_size_pct: 0.045
orchestrator:
  tick_interval: 15s
exit:
  levels:
    - {threshold: 0.5, fraction: 0.3}
    - {threshold: 1.0, fraction: 0.4}
    - {threshold: 3.0, fraction: 0.3}
alpha:
  weights:
    momentum: 0.5
    mean_reversion: 0.5
storage:
  backend: memory
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 25.0, cfg.Account.OpeningBalance)
	assert.Equal(t, "first_lot", cfg.Account.CostBasis)
	assert.Equal(t, 0.045, cfg.Sizing.DefaultPositionSizePct)
	assert.Equal(t, 0.05, cfg.Sizing.MaxPositionSizePct, "unset fields keep defaults")
	assert.Equal(t, 15*time.Second, cfg.Orchestrator.TickInterval)
	assert.Len(t, cfg.Exit.Levels, 3)
	assert.Len(t, cfg.Alpha.Weights, 2, "weights replace the default table")
	assert.Len(t, cfg.Alpha.FactorLimits, 4, "absent table keeps defaults")
}

func TestLoad_ParseErrorIsConfigError(t *testing.T) {
	path := writeFile(t, "sizing: [unbalanced")
	_, err := Load(path)
	var ce *domain.ConfigError
	require.True(t, errors.As(err, &ce))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TRADER_STORAGE_BACKEND": "postgres",
		"TRADER_POSTGRES_DSN":    "postgres://u:p@db/trader",
		"TRADER_HTTP_PORT":       "8080",
		"TRADER_OPENING_BALANCE": "3.5",
		"TRADER_TICK_INTERVAL":   "1m",
	}
	cfg := Default()
	require.NoError(t, applyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))

	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, "postgres://u:p@db/trader", cfg.Storage.PostgresDSN)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 3.5, cfg.Account.OpeningBalance)
	assert.Equal(t, time.Minute, cfg.Orchestrator.TickInterval)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_BadNumber(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, func(k string) (string, bool) {
		if k == "TRADER_HTTP_PORT" {
			return "eighty", true
		}
		return "", false
	})
	var ce *domain.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "TRADER_HTTP_PORT", ce.Field)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"weights off", func(c *Config) { c.Alpha.Weights["momentum"] = 0.9 }, "alpha.weights"},
		{"sizing order", func(c *Config) { c.Sizing.MinPositionSizePct = 0.2 }, "sizing"},
		{"cost basis", func(c *Config) { c.Account.CostBasis = "lifo" }, "account.cost_basis"},
		{"backend", func(c *Config) { c.Storage.Backend = "mongo" }, "storage.backend"},
		{"postgres dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, "storage.postgres_dsn"},
		{"exec mode", func(c *Config) { c.Execution.Mode = "paper" }, "execution.mode"},
		{"live gateway", func(c *Config) { c.Execution.Mode = "live" }, "execution.gateway_url"},
		{"http feed url", func(c *Config) { c.Discovery.Kind = FeedHTTP }, "discovery.url"},
		{"feed kind", func(c *Config) { c.Discovery.Kind = "kafka" }, "discovery.kind"},
		{"exchange", func(c *Config) { c.Events.AMQPURL = "amqp://x"; c.Events.Exchange = "" }, "events.exchange"},
		{"timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, "schedule.timezone"},
		{"tick", func(c *Config) { c.Orchestrator.TickInterval = 0 }, "orchestrator.tick_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			var ce *domain.ConfigError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestValidate_LiveWallet(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	cfg := Default()
	cfg.Execution.Mode = "live"
	cfg.Execution.GatewayURL = "http://gateway"
	cfg.Execution.RPCURL = "http://rpc"
	cfg.Execution.Wallet = base58.Encode(pub)
	require.NoError(t, cfg.Validate())

	cfg.Execution.Wallet = "not-a-key"
	err = cfg.Validate()
	var ce *domain.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "execution.wallet", ce.Field)

	cfg.Execution.Wallet = base58.Encode(pub)
	cfg.Execution.Commitment = "eventual"
	require.Error(t, cfg.Validate())
}

func TestLoad_EmptyPathSkipsFile(t *testing.T) {
	t.Setenv("TRADER_EXECUTION_MODE", "simulated")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "simulated", cfg.Execution.Mode)
}
