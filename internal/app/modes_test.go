package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deribitarb/internal/chain"
	"deribitarb/internal/config"
	"deribitarb/internal/detect"
	"deribitarb/internal/domain"
)

type fakeVenue struct {
	instruments []domain.Instrument
	tickerErr   error
	tickerCalls int
}

func (f *fakeVenue) GetInstruments(context.Context, string) ([]domain.Instrument, error) {
	return f.instruments, nil
}

func (f *fakeVenue) GetTicker(_ context.Context, _ string) (domain.Quote, error) {
	f.tickerCalls++
	if f.tickerErr != nil {
		return domain.Quote{}, f.tickerErr
	}
	return domain.Quote{
		Timestamp:  time.Now().UTC(),
		IndexPrice: decimal.NewFromInt(40_000),
	}, nil
}

func testApp() *App {
	settings := config.Settings{
		Currencies:  []domain.Currency{domain.CurrencyBTC},
		Settlements: []domain.Settlement{domain.SettlementUSDC},
		TableLimit:  10,
	}
	return New(&settings, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testDeps(venue *fakeVenue) *Dependencies {
	return &Dependencies{
		Venue: venue,
		Chain: chain.New(),
		Suite: detect.NewSuite(detect.Config{
			MaxTicketUSD:      decimal.NewFromInt(20_000),
			MinEdgeUSD:        decimal.NewFromInt(50),
			MinEdgeRatio:      2.0,
			MinDepthContracts: 1,
			DryRun:            true,
			Filter:            domain.StrategyFilter{Include: domain.AllStrategies},
		}),
	}
}

func discoveredInstrument() domain.Instrument {
	return domain.Instrument{
		Name:         "BTC_USDC-25DEC24-40000-C",
		Currency:     domain.CurrencyBTC,
		OptionKind:   domain.OptionCall,
		Strike:       decimal.NewFromInt(40_000),
		Expiry:       time.Date(2024, time.December, 25, 8, 0, 0, 0, time.UTC),
		ContractSize: decimal.NewFromInt(1),
		Settlement:   domain.SettlementUSDC,
	}
}

func TestRefreshTickersPropagatesFailure(t *testing.T) {
	venue := &fakeVenue{
		instruments: []domain.Instrument{discoveredInstrument()},
		tickerErr:   domain.ErrRateLimited,
	}
	app := testApp()
	deps := testDeps(venue)

	instruments, err := app.discoverInstruments(context.Background(), deps)
	require.NoError(t, err)

	err = app.refreshTickers(context.Background(), deps, instruments)
	require.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Contains(t, err.Error(), "BTC_USDC-25DEC24-40000-C")
}

func TestScanModeAbortsOnTickerFailure(t *testing.T) {
	venue := &fakeVenue{
		instruments: []domain.Instrument{discoveredInstrument()},
		tickerErr:   errors.New("connection reset"),
	}

	err := testApp().ScanMode(context.Background(), testDeps(venue))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan mode")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestWatchModeAbortsOnTickerFailure(t *testing.T) {
	venue := &fakeVenue{
		instruments: []domain.Instrument{discoveredInstrument()},
		tickerErr:   errors.New("connection reset"),
	}

	err := testApp().WatchMode(context.Background(), testDeps(venue))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch mode")
}

func TestScanModeCompletesWithHealthyTickers(t *testing.T) {
	venue := &fakeVenue{instruments: []domain.Instrument{discoveredInstrument()}}
	deps := testDeps(venue)

	require.NoError(t, testApp().ScanMode(context.Background(), deps))
	assert.Equal(t, 1, venue.tickerCalls)

	// The refreshed quote is visible in the chain.
	snapshot := deps.Chain.Snapshot()
	require.Len(t, snapshot.Instruments, 1)
	assert.True(t, snapshot.Instruments[0].Quote.IndexPrice.Equal(decimal.NewFromInt(40_000)))
}
