// Package app owns the top-level lifecycle of the scanner. It wires the venue
// client, chain store, detector suite, risk gate, planner, and the optional
// storage backends, then runs the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"deribitarb/internal/config"
)

// App is the root application object. It owns the resolved settings, the
// logger, and a list of cleanup functions called in reverse order on shutdown.
type App struct {
	settings *config.Settings
	logger   *slog.Logger
	closers  []func()
}

// New creates an App from resolved settings.
func New(settings *config.Settings, logger *slog.Logger) *App {
	return &App{
		settings: settings,
		logger:   logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, selects the operating mode, and blocks until the
// mode returns or the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting scanner",
		slog.String("mode", a.settings.Mode),
		slog.String("env", string(a.settings.Environment)),
		slog.Bool("dry_run", a.settings.DryRun),
	)

	deps, cleanup, err := Wire(ctx, a.settings, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch a.settings.Mode {
	case "scan":
		return a.ScanMode(ctx, deps)
	case "watch":
		return a.WatchMode(ctx, deps)
	case "record":
		return a.RecordMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.settings.Mode)
	}
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
