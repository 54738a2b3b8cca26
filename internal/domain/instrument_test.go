package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstrumentName(t *testing.T) {
	tests := []struct {
		name     string
		currency Currency
		day      int
		month    string
		year     int
		strike   string
		kind     OptionKind
	}{
		{"BTC-25MAR23-42000-C", CurrencyBTC, 25, "MAR", 2023, "42000", OptionCall},
		{"ETH-5JAN24-2200-P", CurrencyETH, 5, "JAN", 2024, "2200", OptionPut},
		{"BTC-25DEC24-40000-C", CurrencyBTC, 25, "DEC", 2024, "40000", OptionCall},
		{"eth-25dec24-2000-p", CurrencyETH, 25, "DEC", 2024, "2000", OptionPut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseInstrumentName(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.currency, parsed.Currency)
			assert.Equal(t, tt.day, parsed.Day)
			assert.Equal(t, tt.month, parsed.Month)
			assert.Equal(t, tt.year, parsed.Year)
			assert.True(t, parsed.Strike.Equal(decimal.RequireFromString(tt.strike)))
			assert.Equal(t, tt.kind, parsed.OptionKind)
		})
	}
}

func TestParseInstrumentNameErrors(t *testing.T) {
	tests := []struct {
		name    string
		wantErr error
	}{
		{"BTC-25MAR23-42000", ErrInvalidFormat},
		{"BTC-25MAR23-42000-C-extra", ErrInvalidFormat},
		{"SOL-25MAR23-42000-C", ErrUnknownCurrency},
		{"BTC-MAR23-42000-C", ErrInvalidExpiry},
		{"BTC-2523-42000-C", ErrInvalidExpiry},
		{"BTC-25MAR23-abc-C", ErrInvalidStrike},
		{"BTC-25MAR23-42000-X", ErrUnknownOptionKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInstrumentName(tt.name)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExpiryDateSettlesAtEightUTC(t *testing.T) {
	parsed, err := ParseInstrumentName("BTC-25DEC24-40000-C")
	require.NoError(t, err)

	expiry, err := parsed.ExpiryDate()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.December, 25, 8, 0, 0, 0, time.UTC), expiry)
}

func TestExpiryDateRejectsImpossibleDay(t *testing.T) {
	parsed, err := ParseInstrumentName("BTC-31FEB24-40000-C")
	require.NoError(t, err)

	_, err = parsed.ExpiryDate()
	require.ErrorIs(t, err, ErrInvalidExpiry)
}

func TestParseStrategyKindAliases(t *testing.T) {
	tests := []struct {
		in   string
		want StrategyKind
	}{
		{"vertical", StrategyVertical},
		{"jelly", StrategyJellyRoll},
		{"jelly-roll", StrategyJellyRoll},
		{"stale", StrategyStale},
		{"stale-quote", StrategyStale},
		{" BOX ", StrategyBox},
	}
	for _, tt := range tests {
		got, err := ParseStrategyKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseStrategyKind("straddle")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseSettlementAndCurrency(t *testing.T) {
	s, err := ParseSettlement("USDC")
	require.NoError(t, err)
	assert.Equal(t, SettlementUSDC, s)

	s, err = ParseSettlement("Coin")
	require.NoError(t, err)
	assert.Equal(t, SettlementCoin, s)

	_, err = ParseSettlement("eur")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseCurrency("DOGE")
	require.ErrorIs(t, err, ErrUnknownCurrency)
}
