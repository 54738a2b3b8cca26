// Package config defines the scanner configuration and its layering:
// built-in defaults, then an optional TOML file, then environment variables,
// then command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"deribitarb/internal/domain"
	"deribitarb/internal/venue/deribit"
)

// Config is the raw configuration as loaded. Fields map 1:1 to the TOML file;
// API credentials are environment-only and never read from TOML.
type Config struct {
	Env                 string   `toml:"env"`
	Currencies          []string `toml:"currencies"`
	Linears             []string `toml:"linears"`
	DryRun              bool     `toml:"dry_run"`
	MaxTicketUSD        int64    `toml:"max_ticket_usd"`
	MinEdgeUSD          int64    `toml:"min_edge_usd"`
	MinEdgeRatio        float64  `toml:"min_edge_ratio"`
	HoldToExpiry        bool     `toml:"hold_to_expiry"`
	Only                []string `toml:"only"`
	MaxConcurrentCombos int      `toml:"max_concurrent_combos"`
	MinDepthContracts   int      `toml:"min_depth_contracts"`

	Mode       string `toml:"mode"`
	LogLevel   string `toml:"log_level"`
	TableLimit int    `toml:"table_limit"`
	CSVPath    string `toml:"csv_path"`

	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Record   RecordConfig   `toml:"record"`

	APIKey    string `toml:"-"`
	APISecret string `toml:"-"`
}

// PostgresConfig holds the tick store connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds the quote cache connection parameters.
type RedisConfig struct {
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	PoolSize int      `toml:"pool_size"`
	QuoteTTL duration `toml:"quote_ttl"`
}

// S3Config holds the segment archive parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// RecordConfig holds recording-mode parameters.
type RecordConfig struct {
	FlushInterval duration `toml:"flush_interval"`
	RetentionDays int      `toml:"retention_days"`
}

// duration wraps time.Duration so the TOML decoder accepts strings like "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the configuration used when nothing else is specified:
// testnet, both currencies and settlements, dry-run on, every detector
// enabled.
func Defaults() Config {
	return Config{
		Env:                 "test",
		Currencies:          []string{"BTC", "ETH"},
		Linears:             []string{"usdc", "coin"},
		DryRun:              true,
		MaxTicketUSD:        20_000,
		MinEdgeUSD:          50,
		MinEdgeRatio:        2.0,
		HoldToExpiry:        false,
		Only:                []string{"vertical", "butterfly", "calendar", "box", "jelly"},
		MaxConcurrentCombos: 3,
		MinDepthContracts:   1,
		Mode:                "scan",
		LogLevel:            "info",
		TableLimit:          20,
		Postgres: PostgresConfig{
			DSN:           "",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 20,
			QuoteTTL: duration{30 * time.Second},
		},
		S3: S3Config{
			Region: "us-east-1",
			Bucket: "deribitarb-data",
			Prefix: "ticks",
		},
		Record: RecordConfig{
			FlushInterval: duration{5 * time.Second},
			RetentionDays: 30,
		},
	}
}

// Settings is the resolved, typed configuration every component consumes.
type Settings struct {
	Environment         deribit.Environment
	Credentials         *deribit.Credentials
	Currencies          []domain.Currency
	Settlements         []domain.Settlement
	DryRun              bool
	MaxTicketUSD        decimal.Decimal
	MinEdgeUSD          decimal.Decimal
	MinEdgeRatio        float64
	HoldToExpiry        bool
	StrategyFilter      domain.StrategyFilter
	MaxConcurrentCombos int
	MinDepthContracts   int

	Mode       string
	LogLevel   string
	TableLimit int
	CSVPath    string

	Postgres PostgresConfig
	Redis    RedisConfig
	S3       S3Config
	Record   RecordConfig
}

var validModes = map[string]bool{
	"scan":   true,
	"watch":  true,
	"record": true,
}

// Resolve validates the raw configuration and converts it into typed settings.
func (c *Config) Resolve() (Settings, error) {
	env, err := deribit.ParseEnvironment(c.Env)
	if err != nil {
		return Settings{}, err
	}

	if len(c.Currencies) == 0 {
		return Settings{}, fmt.Errorf("config: %w: at least one currency required", domain.ErrInvalidInput)
	}
	currencies := make([]domain.Currency, 0, len(c.Currencies))
	for _, raw := range c.Currencies {
		currency, err := domain.ParseCurrency(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("config: %w", err)
		}
		currencies = append(currencies, currency)
	}

	settlements := make([]domain.Settlement, 0, len(c.Linears))
	for _, raw := range c.Linears {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "usdc":
			settlements = append(settlements, domain.SettlementUSDC)
		case "coin":
			settlements = append(settlements, domain.SettlementCoin)
		default:
			return Settings{}, fmt.Errorf("config: %w: unknown settlement %q", domain.ErrInvalidInput, raw)
		}
	}

	if c.MinEdgeRatio < 1.0 {
		return Settings{}, fmt.Errorf("config: %w: min edge ratio must be >= 1.0, got %v", domain.ErrInvalidInput, c.MinEdgeRatio)
	}

	include := make([]domain.StrategyKind, 0, len(c.Only))
	for _, raw := range c.Only {
		kind, err := domain.ParseStrategyKind(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("config: %w", err)
		}
		include = append(include, kind)
	}
	if len(include) == 0 {
		return Settings{}, fmt.Errorf("config: %w: must enable at least one detector", domain.ErrInvalidInput)
	}

	if !validModes[strings.ToLower(c.Mode)] {
		return Settings{}, fmt.Errorf("config: %w: unknown mode %q (valid: scan, watch, record)", domain.ErrInvalidInput, c.Mode)
	}

	var creds *deribit.Credentials
	if c.APIKey != "" && c.APISecret != "" {
		creds = &deribit.Credentials{ClientID: c.APIKey, ClientSecret: c.APISecret}
	}

	return Settings{
		Environment:         env,
		Credentials:         creds,
		Currencies:          currencies,
		Settlements:         settlements,
		DryRun:              c.DryRun,
		MaxTicketUSD:        decimal.NewFromInt(c.MaxTicketUSD),
		MinEdgeUSD:          decimal.NewFromInt(c.MinEdgeUSD),
		MinEdgeRatio:        c.MinEdgeRatio,
		HoldToExpiry:        c.HoldToExpiry,
		StrategyFilter:      domain.StrategyFilter{Include: include},
		MaxConcurrentCombos: c.MaxConcurrentCombos,
		MinDepthContracts:   c.MinDepthContracts,
		Mode:                strings.ToLower(c.Mode),
		LogLevel:            c.LogLevel,
		TableLimit:          c.TableLimit,
		CSVPath:             c.CSVPath,
		Postgres:            c.Postgres,
		Redis:               c.Redis,
		S3:                  c.S3,
		Record:              c.Record,
	}, nil
}

// AllowsSettlement reports whether a settlement is enabled by the linears
// filter.
func (s Settings) AllowsSettlement(settlement domain.Settlement) bool {
	for _, enabled := range s.Settlements {
		if enabled == settlement {
			return true
		}
	}
	return false
}
