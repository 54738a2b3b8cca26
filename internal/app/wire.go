package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "deribitarb/internal/blob/s3"
	"deribitarb/internal/chain"
	"deribitarb/internal/config"
	"deribitarb/internal/detect"
	"deribitarb/internal/domain"
	"deribitarb/internal/exec"
	"deribitarb/internal/optstore/postgres"
	"deribitarb/internal/optstore/rediscache"
	"deribitarb/internal/risk"
	"deribitarb/internal/venue/deribit"
)

// VenueAPI is the slice of the venue client the operating modes call directly.
type VenueAPI interface {
	GetInstruments(ctx context.Context, currency string) ([]domain.Instrument, error)
	GetTicker(ctx context.Context, instrumentName string) (domain.Quote, error)
}

// Dependencies bundles everything the operating modes need. Constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Venue   VenueAPI
	Chain   *chain.OptionChain
	Suite   *detect.Suite
	Risk    *risk.Manager
	Planner *exec.Planner

	// Storage, wired only in record mode.
	TickStore  domain.TickStore
	QuoteCache domain.QuoteCache
	Archiver   domain.SegmentArchiver
}

// needsPostgres reports whether the mode persists ticks.
func needsPostgres(mode string) bool {
	return mode == "record"
}

// needsRedis reports whether the mode maintains the hot quote cache.
func needsRedis(mode string) bool {
	return mode == "record"
}

// needsS3 reports whether the mode archives tick segments.
func needsS3(mode string) bool {
	return mode == "record"
}

// Wire constructs the concrete dependency implementations from the resolved
// settings. The returned cleanup function must be called on shutdown.
func Wire(ctx context.Context, s *config.Settings, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	venueClient := deribit.NewClient(s.Environment, s.Credentials)
	deps := &Dependencies{
		Venue: venueClient,
		Chain: chain.New(),
		Suite: detect.NewSuite(detect.Config{
			MaxTicketUSD:      s.MaxTicketUSD,
			MinEdgeUSD:        s.MinEdgeUSD,
			MinEdgeRatio:      s.MinEdgeRatio,
			HoldToExpiry:      s.HoldToExpiry,
			MinDepthContracts: s.MinDepthContracts,
			DryRun:            s.DryRun,
			Filter:            s.StrategyFilter,
		}),
		Risk: risk.New(risk.Limits{
			MaxConcurrentCombos: s.MaxConcurrentCombos,
			MaxTicketUSD:        s.MaxTicketUSD,
		}, logger),
	}
	deps.Planner = exec.New(venueClient, exec.Config{
		MinDepthContracts: s.MinDepthContracts,
		DryRun:            s.DryRun,
	}, logger)

	if needsPostgres(s.Mode) {
		if s.Postgres.DSN == "" {
			cleanup()
			return nil, nil, fmt.Errorf("wire: record mode requires postgres.dsn")
		}
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      s.Postgres.DSN,
			MaxConns: s.Postgres.PoolMaxConns,
			MinConns: s.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if s.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.TickStore = postgres.NewTickStore(pgClient.Pool())
	}

	if needsRedis(s.Mode) && s.Redis.Addr != "" {
		redisClient, err := rediscache.New(ctx, rediscache.ClientConfig{
			Addr:     s.Redis.Addr,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
			PoolSize: s.Redis.PoolSize,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.QuoteCache = rediscache.NewQuoteCache(redisClient, s.Redis.QuoteTTL.Duration)
	}

	if needsS3(s.Mode) && s.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       s.S3.Endpoint,
			Region:         s.S3.Region,
			Bucket:         s.S3.Bucket,
			AccessKey:      s.S3.AccessKey,
			SecretKey:      s.S3.SecretKey,
			ForcePathStyle: s.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewSegmentArchiver(s3Client, s.S3.Prefix)
	}

	return deps, cleanup, nil
}
