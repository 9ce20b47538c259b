// Package config loads the trader's YAML document once at startup.
//
// Load starts from defaults, decodes the file over them and then applies
// TRADER_* environment overrides. The result is immutable for the run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"solana-trader/internal/alpha"
	"solana-trader/internal/domain"
	"solana-trader/internal/execution"
	"solana-trader/internal/exit"
	"solana-trader/internal/ledger"
	"solana-trader/internal/orchestrator"
	"solana-trader/internal/safety"
	"solana-trader/internal/sizing"
	"solana-trader/internal/solana"
)

// Config holds all application configuration.
type Config struct {
	Account      AccountConfig       `yaml:"account"`
	Sizing       sizing.Config       `yaml:"sizing"`
	Exit         exit.Config         `yaml:"exit"`
	Alpha        alpha.Config        `yaml:"alpha"`
	Orchestrator orchestrator.Config `yaml:"orchestrator"`
	Safety       safety.Config       `yaml:"safety"`
	Storage      StorageConfig       `yaml:"storage"`
	Execution    ExecutionConfig     `yaml:"execution"`
	Discovery    DiscoveryConfig     `yaml:"discovery"`
	Model        ModelConfig         `yaml:"model"`
	Events       EventsConfig        `yaml:"events"`
	HTTP         HTTPConfig          `yaml:"http"`
	Schedule     ScheduleConfig      `yaml:"schedule"`
}

// AccountConfig seeds the ledger on first start.
type AccountConfig struct {
	OpeningBalance float64 `yaml:"opening_balance"`
	CostBasis      string  `yaml:"cost_basis"` // average | first_lot
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// StorageConfig selects the ledger backend. ClickHouseDSN is optional and
// only enables the price snapshot sink.
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	SQLitePath    string `yaml:"sqlite_path"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

// ExecutionConfig selects and configures the execution client.
type ExecutionConfig struct {
	Mode             string        `yaml:"mode"` // simulated | live
	GatewayURL       string        `yaml:"gateway_url"`
	RPCURL           string        `yaml:"rpc_url"`
	WSURL            string        `yaml:"ws_url"`
	Wallet           string        `yaml:"wallet"`
	SlippageBps      int           `yaml:"slippage_bps"`
	Commitment       string        `yaml:"commitment"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	SimulatedLatency time.Duration `yaml:"simulated_latency"`
}

// Discovery feed kinds.
const (
	FeedStatic = "static"
	FeedHTTP   = "http"
	FeedStream = "stream"
)

// DiscoveryConfig selects the candidate feed and its optional Redis cache.
type DiscoveryConfig struct {
	Kind         string        `yaml:"kind"`
	URL          string        `yaml:"url"`
	Limit        int           `yaml:"limit"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAge       time.Duration `yaml:"max_age"`
	Redis        RedisConfig   `yaml:"redis"`
	CandidateTTL time.Duration `yaml:"candidate_ttl"`
	PriceTTL     time.Duration `yaml:"price_ttl"`
}

// RedisConfig. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ModelConfig points at an ONNX confidence model. Empty Path runs without one.
type ModelConfig struct {
	Path        string `yaml:"path"`
	LibraryPath string `yaml:"library_path"`
}

// EventsConfig. An empty AMQPURL disables publishing.
type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

// HTTPConfig for the health, metrics and status server.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// ScheduleConfig holds six-field cron specs (seconds first).
type ScheduleConfig struct {
	DailyResetCron string `yaml:"daily_reset_cron"`
	SummaryCron    string `yaml:"summary_cron"`
	Timezone       string `yaml:"timezone"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Account: AccountConfig{
			OpeningBalance: 10,
			CostBasis:      string(ledger.CostBasisAverage),
		},
		Sizing:       sizing.DefaultConfig(),
		Exit:         exit.DefaultConfig(),
		Alpha:        alpha.DefaultConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
		Safety:       safety.DefaultConfig(),
		Storage: StorageConfig{
			Backend:    BackendSQLite,
			SQLitePath: "data/trader.db",
		},
		Execution: ExecutionConfig{
			Mode:         string(execution.ModeSimulated),
			SlippageBps:  100,
			Commitment:   string(solana.CommitmentConfirmed),
			PollInterval: 2 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Kind:         FeedStatic,
			Limit:        20,
			Timeout:      10 * time.Second,
			MaxAge:       2 * time.Minute,
			CandidateTTL: 30 * time.Second,
			PriceTTL:     5 * time.Second,
		},
		Events: EventsConfig{
			Exchange: "trader.events",
		},
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 9090,
		},
		Schedule: ScheduleConfig{
			DailyResetCron: "0 0 0 * * *",
			SummaryCron:    "0 0 * * * *",
			Timezone:       "UTC",
		},
	}
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. A missing file is not an error; an empty
// path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := decode(data, &cfg); err != nil {
				return nil, err
			}
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decode unmarshals data over cfg. Tables (weights, factor limits, exit
// levels) are replaced as a whole when present rather than merged key by key.
func decode(data []byte, cfg *Config) error {
	defaults := *cfg
	cfg.Alpha.Weights = nil
	cfg.Alpha.FactorLimits = nil
	cfg.Exit.Levels = nil

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &domain.ConfigError{Reason: fmt.Sprintf("parse: %v", err)}
	}

	if cfg.Alpha.Weights == nil {
		cfg.Alpha.Weights = defaults.Alpha.Weights
	}
	if cfg.Alpha.FactorLimits == nil {
		cfg.Alpha.FactorLimits = defaults.Alpha.FactorLimits
	}
	if cfg.Exit.Levels == nil {
		cfg.Exit.Levels = defaults.Exit.Levels
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides connection settings and secrets from TRADER_* variables.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("TRADER_STORAGE_BACKEND", &cfg.Storage.Backend)
	str("TRADER_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("TRADER_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	str("TRADER_CLICKHOUSE_DSN", &cfg.Storage.ClickHouseDSN)

	str("TRADER_EXECUTION_MODE", &cfg.Execution.Mode)
	str("TRADER_GATEWAY_URL", &cfg.Execution.GatewayURL)
	str("TRADER_RPC_URL", &cfg.Execution.RPCURL)
	str("TRADER_WS_URL", &cfg.Execution.WSURL)
	str("TRADER_WALLET", &cfg.Execution.Wallet)

	str("TRADER_DISCOVERY_KIND", &cfg.Discovery.Kind)
	str("TRADER_DISCOVERY_URL", &cfg.Discovery.URL)
	str("TRADER_REDIS_ADDR", &cfg.Discovery.Redis.Addr)
	str("TRADER_REDIS_PASSWORD", &cfg.Discovery.Redis.Password)

	str("TRADER_MODEL_PATH", &cfg.Model.Path)
	str("TRADER_ONNX_LIBRARY", &cfg.Model.LibraryPath)
	str("TRADER_AMQP_URL", &cfg.Events.AMQPURL)
	str("TRADER_HTTP_HOST", &cfg.HTTP.Host)

	if v, ok := lookup("TRADER_HTTP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &domain.ConfigError{Field: "TRADER_HTTP_PORT", Reason: fmt.Sprintf("not an integer: %q", v)}
		}
		cfg.HTTP.Port = port
	}
	if v, ok := lookup("TRADER_OPENING_BALANCE"); ok && v != "" {
		bal, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &domain.ConfigError{Field: "TRADER_OPENING_BALANCE", Reason: fmt.Sprintf("not a number: %q", v)}
		}
		cfg.Account.OpeningBalance = bal
	}
	if v, ok := lookup("TRADER_TICK_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &domain.ConfigError{Field: "TRADER_TICK_INTERVAL", Reason: fmt.Sprintf("not a duration: %q", v)}
		}
		cfg.Orchestrator.TickInterval = d
	}
	return nil
}

// Validate checks every section. The first problem found is returned as a
// *domain.ConfigError.
func (c *Config) Validate() error {
	if c.Account.OpeningBalance < 0 {
		return &domain.ConfigError{Field: "account.opening_balance", Reason: "must be >= 0"}
	}
	if _, err := ledger.ParseCostBasis(c.Account.CostBasis); err != nil {
		return &domain.ConfigError{Field: "account.cost_basis", Reason: err.Error()}
	}

	for _, v := range []interface{ Validate() error }{c.Sizing, c.Exit, c.Alpha, c.Orchestrator, c.Safety} {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateExecution(); err != nil {
		return err
	}
	if err := c.validateDiscovery(); err != nil {
		return err
	}

	if c.Events.AMQPURL != "" && c.Events.Exchange == "" {
		return &domain.ConfigError{Field: "events.exchange", Reason: "required when amqp_url is set"}
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return &domain.ConfigError{Field: "http.port", Reason: "out of range"}
	}
	if c.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return &domain.ConfigError{Field: "schedule.timezone", Reason: err.Error()}
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch strings.ToLower(c.Storage.Backend) {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return &domain.ConfigError{Field: "storage.sqlite_path", Reason: "required for sqlite backend"}
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return &domain.ConfigError{Field: "storage.postgres_dsn", Reason: "required for postgres backend"}
		}
	default:
		return &domain.ConfigError{Field: "storage.backend", Reason: fmt.Sprintf("unknown backend %q", c.Storage.Backend)}
	}
	return nil
}

func (c *Config) validateExecution() error {
	e := c.Execution
	switch execution.Mode(e.Mode) {
	case execution.ModeSimulated:
		return nil
	case execution.ModeLive:
	default:
		return &domain.ConfigError{Field: "execution.mode", Reason: fmt.Sprintf("unknown mode %q", e.Mode)}
	}

	if e.GatewayURL == "" {
		return &domain.ConfigError{Field: "execution.gateway_url", Reason: "required in live mode"}
	}
	if e.RPCURL == "" {
		return &domain.ConfigError{Field: "execution.rpc_url", Reason: "required in live mode"}
	}
	if err := solana.ValidateWallet(e.Wallet); err != nil {
		return &domain.ConfigError{Field: "execution.wallet", Reason: err.Error()}
	}
	if e.SlippageBps <= 0 || e.SlippageBps > 10_000 {
		return &domain.ConfigError{Field: "execution.slippage_bps", Reason: "must be in (0, 10000]"}
	}
	switch solana.Commitment(e.Commitment) {
	case solana.CommitmentProcessed, solana.CommitmentConfirmed, solana.CommitmentFinalized:
	default:
		return &domain.ConfigError{Field: "execution.commitment", Reason: fmt.Sprintf("unknown commitment %q", e.Commitment)}
	}
	return nil
}

func (c *Config) validateDiscovery() error {
	d := c.Discovery
	switch d.Kind {
	case FeedStatic:
	case FeedHTTP, FeedStream:
		if d.URL == "" {
			return &domain.ConfigError{Field: "discovery.url", Reason: fmt.Sprintf("required for %s feed", d.Kind)}
		}
	default:
		return &domain.ConfigError{Field: "discovery.kind", Reason: fmt.Sprintf("unknown feed %q", d.Kind)}
	}
	if d.Limit < 0 {
		return &domain.ConfigError{Field: "discovery.limit", Reason: "must be >= 0"}
	}
	return nil
}
