package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds the raw configuration: defaults, then the TOML file at path if
// one is given, then environment variables. The result has not been resolved;
// callers apply flag overrides and then call Config.Resolve.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env if present so API_KEY/API_SECRET can live next to the binary.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads the scanner's environment variables and overwrites
// the corresponding fields when set. Credentials are only ever read here.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Env, "DERIBIT_ENV")
	setStringSlice(&cfg.Currencies, "CURRENCIES")
	setStringSlice(&cfg.Linears, "LINEARS")
	setBool(&cfg.DryRun, "DRY_RUN")
	setInt64(&cfg.MaxTicketUSD, "MAX_TICKET_USD")
	setInt64(&cfg.MinEdgeUSD, "MIN_EDGE_USD")
	setFloat64(&cfg.MinEdgeRatio, "MIN_EDGE_RATIO")
	setBool(&cfg.HoldToExpiry, "HOLD_TO_EXPIRY")
	setStringSlice(&cfg.Only, "ONLY")
	setInt(&cfg.MaxConcurrentCombos, "MAX_CONCURRENT_COMBOS")
	setInt(&cfg.MinDepthContracts, "MIN_DEPTH_CONTRACTS")

	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setInt(&cfg.TableLimit, "TABLE_LIMIT")
	setStr(&cfg.CSVPath, "CSV_PATH")

	setStr(&cfg.APIKey, "API_KEY")
	setStr(&cfg.APISecret, "API_SECRET")

	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setInt(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setDuration(&cfg.Redis.QuoteTTL, "REDIS_QUOTE_TTL")

	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.Prefix, "S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	setDuration(&cfg.Record.FlushInterval, "RECORD_FLUSH_INTERVAL")
	setInt(&cfg.Record.RetentionDays, "RECORD_RETENTION_DAYS")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
