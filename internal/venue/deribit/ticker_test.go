package deribit

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deribitarb/internal/domain"
)

func TestParseTickerQuote(t *testing.T) {
	raw := []byte(`{
		"method": "subscription",
		"params": {
			"channel": "ticker.BTC-25DEC24-40000-C.raw",
			"data": {
				"instrument_name": "BTC-25DEC24-40000-C",
				"best_bid_price": 0.145,
				"best_bid_amount": 10,
				"best_ask_price": 0.15,
				"best_ask_amount": 7.5,
				"mark_iv": 62.4,
				"timestamp": 1735113600000,
				"index_price": 40000
			}
		}
	}`)

	name, quote, ok := ParseTickerQuote(raw)
	require.True(t, ok)
	assert.Equal(t, "BTC-25DEC24-40000-C", name)
	require.NotNil(t, quote.BestBid)
	assert.True(t, quote.BestBid.Price.Equal(decimal.RequireFromString("0.145")))
	assert.True(t, quote.BestBid.Amount.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, quote.BestAsk)
	assert.True(t, quote.BestAsk.Amount.Equal(decimal.RequireFromString("7.5")))
	require.NotNil(t, quote.MarkIV)
	assert.Equal(t, 62.4, *quote.MarkIV)
	assert.True(t, quote.IndexPrice.Equal(decimal.NewFromInt(40_000)))
	assert.Equal(t, time.UnixMilli(1735113600000).UTC(), quote.Timestamp)
}

func TestParseTickerQuoteOneSidedBook(t *testing.T) {
	raw := []byte(`{
		"method": "subscription",
		"params": {
			"channel": "ticker.BTC-25DEC24-40000-C.raw",
			"data": {
				"instrument_name": "BTC-25DEC24-40000-C",
				"best_bid_price": 0.145,
				"best_bid_amount": 10,
				"timestamp": 1735113600000,
				"index_price": 40000
			}
		}
	}`)

	_, quote, ok := ParseTickerQuote(raw)
	require.True(t, ok)
	assert.NotNil(t, quote.BestBid)
	assert.Nil(t, quote.BestAsk)
}

func TestParseTickerQuoteNameFromChannel(t *testing.T) {
	raw := []byte(`{
		"method": "subscription",
		"params": {
			"channel": "ticker.ETH-25DEC24-2200-P.raw",
			"data": {"timestamp": 1735113600000, "index_price": 2200}
		}
	}`)

	name, _, ok := ParseTickerQuote(raw)
	require.True(t, ok)
	assert.Equal(t, "ETH-25DEC24-2200-P", name)
}

func TestParseTickerQuoteRejectsOtherFrames(t *testing.T) {
	for _, raw := range []string{
		`{"id": 1, "result": ["ticker.BTC-25DEC24-40000-C.raw"]}`,
		`{"method": "heartbeat", "params": {"type": "test_request"}}`,
		`{"method": "subscription", "params": {"channel": "book.BTC-PERPETUAL.raw", "data": {}}}`,
		`not json`,
	} {
		_, _, ok := ParseTickerQuote([]byte(raw))
		assert.False(t, ok, raw)
	}
}

func TestTickerChannel(t *testing.T) {
	assert.Equal(t, "ticker.BTC-25DEC24-40000-C.raw", TickerChannel("BTC-25DEC24-40000-C"))
}

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in   string
		want Environment
	}{
		{"test", EnvTestnet},
		{"testnet", EnvTestnet},
		{" Prod ", EnvProduction},
		{"production", EnvProduction},
		{"main", EnvProduction},
	}
	for _, tt := range tests {
		got, err := ParseEnvironment(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseEnvironment("staging")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEnvironmentEndpoints(t *testing.T) {
	assert.Equal(t, "https://test.deribit.com/api/v2", EnvTestnet.HTTPBase())
	assert.Equal(t, "wss://test.deribit.com/ws/api/v2", EnvTestnet.WebsocketURL())
	assert.Equal(t, "https://www.deribit.com/api/v2", EnvProduction.HTTPBase())
	assert.Equal(t, "wss://www.deribit.com/ws/api/v2", EnvProduction.WebsocketURL())
}
