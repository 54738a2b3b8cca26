package fees

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deribitarb/internal/domain"
)

var farExpiry = time.Now().UTC().Add(30 * 24 * time.Hour)

func usdcLeg(name string, side domain.ComboSide, price, contracts string) LegInput {
	return LegInput{
		InstrumentName: name,
		Side:           side,
		Settlement:     domain.SettlementUSDC,
		Role:           domain.RoleTaker,
		OptionPrice:    decimal.RequireFromString(price),
		IndexPrice:     decimal.NewFromInt(40_000),
		Contracts:      decimal.RequireFromString(contracts),
		ContractSize:   decimal.NewFromInt(1),
		Expiry:         farExpiry,
	}
}

func coinLeg(name string, side domain.ComboSide, price, contracts string) LegInput {
	leg := usdcLeg(name, side, price, contracts)
	leg.Settlement = domain.SettlementCoin
	return leg
}

func TestComputeRejectsEmptyAndMixed(t *testing.T) {
	engine := New()

	_, err := engine.Compute(Context{})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = engine.Compute(Context{Legs: []LegInput{
		usdcLeg("BTC_USDC-25DEC24-40000-C", domain.SideBuy, "6000", "1"),
		coinLeg("BTC-25DEC24-40000-C", domain.SideSell, "0.15", "1"),
	}})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestComputeUSDCTradeFee(t *testing.T) {
	engine := New()

	// 0.0003 x 40000 = 12 USD per contract, below the 12.5% price cap.
	breakdown, err := engine.Compute(Context{Legs: []LegInput{
		usdcLeg("BTC_USDC-25DEC24-40000-C", domain.SideBuy, "6000", "0.5"),
		usdcLeg("BTC_USDC-25DEC24-45000-C", domain.SideSell, "5400", "0.5"),
	}})
	require.NoError(t, err)

	// Both sides price at 6 USD; the tie waives the buy side.
	assert.True(t, breakdown.TotalUSD.Equal(decimal.NewFromInt(6)), breakdown.TotalUSD.String())
	assert.True(t, breakdown.ComboDiscountUSD.Equal(decimal.NewFromInt(6)))
	require.Len(t, breakdown.Legs, 2)
	assert.True(t, breakdown.Legs[0].TradeFeeUSD.IsZero())
	assert.True(t, breakdown.Legs[1].TradeFeeUSD.Equal(decimal.NewFromInt(6)))
}

func TestComputeFeeCapOnCheapOptions(t *testing.T) {
	engine := New()

	// Option price 10 USD: cap = 1.25, below the 12 USD flat rate.
	breakdown, err := engine.Compute(Context{Legs: []LegInput{
		usdcLeg("BTC_USDC-25DEC24-80000-C", domain.SideBuy, "10", "2"),
	}})
	require.NoError(t, err)

	// With no sell side, the empty sell total is the cheaper one and is the
	// side waived; the buy leg keeps its capped fee.
	assert.True(t, breakdown.TotalUSD.Equal(decimal.RequireFromString("2.5")), breakdown.TotalUSD.String())
	assert.True(t, breakdown.ComboDiscountUSD.IsZero())
}

func TestComputeCoinSettlement(t *testing.T) {
	engine := New()

	breakdown, err := engine.Compute(Context{Legs: []LegInput{
		coinLeg("BTC-25DEC24-40000-C", domain.SideBuy, "0.15", "1"),
		coinLeg("BTC-25DEC24-45000-C", domain.SideSell, "0.13", "1"),
	}})
	require.NoError(t, err)

	// 0.0003 BTC per contract on the surviving sell side, 12 USD at 40000.
	assert.True(t, breakdown.TotalNative.Equal(decimal.RequireFromString("0.0003")))
	assert.True(t, breakdown.TotalUSD.Equal(decimal.NewFromInt(12)))
}

func TestComputeWaivesExactlyOneSide(t *testing.T) {
	engine := New()

	breakdown, err := engine.Compute(Context{Legs: []LegInput{
		usdcLeg("BTC_USDC-25DEC24-38000-C", domain.SideBuy, "900", "1"),
		usdcLeg("BTC_USDC-25DEC24-40000-C", domain.SideSell, "2200", "2"),
		usdcLeg("BTC_USDC-25DEC24-42000-C", domain.SideBuy, "1000", "1"),
	}})
	require.NoError(t, err)

	var buyUSD, sellUSD decimal.Decimal
	for _, leg := range breakdown.Legs {
		switch leg.Side {
		case domain.SideBuy:
			buyUSD = buyUSD.Add(leg.TradeFeeUSD)
		case domain.SideSell:
			sellUSD = sellUSD.Add(leg.TradeFeeUSD)
		}
	}
	// Exactly one side carries fees after the combo discount.
	assert.True(t, buyUSD.IsZero() != sellUSD.IsZero())
}

func TestComputeDeliveryFee(t *testing.T) {
	engine := New()

	leg := usdcLeg("BTC_USDC-25DEC24-40000-C", domain.SideBuy, "6000", "1")
	breakdown, err := engine.Compute(Context{Legs: []LegInput{leg}, HoldToExpiry: true})
	require.NoError(t, err)

	// min(0.00015 x 40000, 0.125 x 6000) = 6 USD on top of the 12 USD trade
	// fee that survives on the only populated side.
	assert.True(t, breakdown.DeliveryFeeUSD.Equal(decimal.NewFromInt(6)), breakdown.DeliveryFeeUSD.String())
	assert.True(t, breakdown.TotalUSD.Equal(decimal.NewFromInt(18)), breakdown.TotalUSD.String())
}

func TestComputeDeliverySkipsDailies(t *testing.T) {
	engine := New()

	leg := usdcLeg("BTC_USDC-25DEC24-40000-C", domain.SideBuy, "6000", "1")
	leg.IsDaily = true
	breakdown, err := engine.Compute(Context{Legs: []LegInput{leg}, HoldToExpiry: true})
	require.NoError(t, err)

	assert.True(t, breakdown.DeliveryFeeUSD.IsZero())
}

func TestComputeZeroContracts(t *testing.T) {
	engine := New()

	breakdown, err := engine.Compute(Context{Legs: []LegInput{
		usdcLeg("BTC_USDC-25DEC24-40000-C", domain.SideBuy, "6000", "0"),
	}})
	require.NoError(t, err)
	assert.True(t, breakdown.TotalUSD.IsZero())
}

func TestIsDailyOption(t *testing.T) {
	assert.True(t, IsDailyOption("BTC-D-40000-C", farExpiry))
	assert.True(t, IsDailyOption("BTC-25DEC24-40000-C", time.Now().Add(2*time.Hour)))
	assert.False(t, IsDailyOption("BTC-25DEC24-40000-C", farExpiry))
}
