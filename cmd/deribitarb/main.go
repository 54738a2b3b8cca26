// Command deribitarb scans Deribit option chains for multi-leg arbitrage. It
// layers configuration (defaults, TOML file, environment, flags), sets up the
// JSON logger, and runs the configured mode until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"deribitarb/internal/app"
	"deribitarb/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to optional TOML configuration file")

	env := flag.String("env", "", "venue environment: test or prod")
	currencies := flag.String("currencies", "", "comma-separated currencies (BTC,ETH)")
	linears := flag.String("linears", "", "comma-separated settlements (usdc,coin)")
	dryRun := flag.Bool("dry-run", true, "preview execution plans without submitting")
	maxTicket := flag.Int64("max-ticket", 0, "per-combo notional cap in USD")
	minEdgeUSD := flag.Int64("min-edge-usd", 0, "minimum net edge in USD")
	minEdgeRatio := flag.Float64("min-edge-ratio", 0, "minimum edge-to-fee ratio (>= 1.0)")
	holdToExpiry := flag.Bool("hold-to-expiry", false, "assume positions settle at expiry")
	only := flag.String("only", "", "comma-separated detector filter (vertical,butterfly,calendar,box,jelly,stale)")
	maxCombos := flag.Int("max-concurrent-combos", 0, "maximum simultaneously live combos")
	minDepth := flag.Int("min-depth-contracts", 0, "minimum resting contracts per touch")

	mode := flag.String("mode", "", "operating mode: scan, watch, or record")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	tableLimit := flag.Int("table-limit", 0, "rows shown in the opportunity table")
	csvPath := flag.String("csv", "", "optional CSV export path")
	flag.Parse()

	logger := newLogger("info")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Explicit flags win over file and environment values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "env":
			cfg.Env = *env
		case "currencies":
			cfg.Currencies = splitList(*currencies)
		case "linears":
			cfg.Linears = splitList(*linears)
		case "dry-run":
			cfg.DryRun = *dryRun
		case "max-ticket":
			cfg.MaxTicketUSD = *maxTicket
		case "min-edge-usd":
			cfg.MinEdgeUSD = *minEdgeUSD
		case "min-edge-ratio":
			cfg.MinEdgeRatio = *minEdgeRatio
		case "hold-to-expiry":
			cfg.HoldToExpiry = *holdToExpiry
		case "only":
			cfg.Only = splitList(*only)
		case "max-concurrent-combos":
			cfg.MaxConcurrentCombos = *maxCombos
		case "min-depth-contracts":
			cfg.MinDepthContracts = *minDepth
		case "mode":
			cfg.Mode = *mode
		case "log-level":
			cfg.LogLevel = *logLevel
		case "table-limit":
			cfg.TableLimit = *tableLimit
		case "csv":
			cfg.CSVPath = *csvPath
		}
	})

	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	settings, err := cfg.Resolve()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("scanner starting",
		slog.String("mode", settings.Mode),
		slog.Any("config", config.Redacted(cfg)),
	)

	application := app.New(&settings, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("scanner shut down gracefully")
		} else {
			logger.Error("scanner exited with error", slog.String("error", err.Error()))
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("scanner stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
