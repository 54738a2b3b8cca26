package detect

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deribitarb/internal/domain"
)

var (
	decExpiry = time.Date(2030, time.December, 25, 8, 0, 0, 0, time.UTC)
	janExpiry = time.Date(2031, time.January, 25, 8, 0, 0, 0, time.UTC)
	testIndex = decimal.NewFromInt(40_000)
)

func testConfig(kinds ...domain.StrategyKind) Config {
	if len(kinds) == 0 {
		kinds = domain.AllStrategies
	}
	return Config{
		MaxTicketUSD:      decimal.NewFromInt(20_000),
		MinEdgeUSD:        decimal.NewFromInt(50),
		MinEdgeRatio:      1.5,
		MinDepthContracts: 1,
		DryRun:            true,
		Filter:            domain.StrategyFilter{Include: kinds},
	}
}

// optSnap builds a USDC snapshot with contract size 1, index 40000, and depth
// 10 on each populated level. Empty bid or ask leaves that side absent.
func optSnap(name string, kind domain.OptionKind, strike int64, expiry time.Time, bid, ask string) domain.InstrumentSnapshot {
	quote := domain.Quote{
		Timestamp:  time.Now().UTC(),
		IndexPrice: testIndex,
	}
	if bid != "" {
		quote.BestBid = &domain.QuoteLevel{
			Price:  decimal.RequireFromString(bid),
			Amount: decimal.NewFromInt(10),
		}
	}
	if ask != "" {
		quote.BestAsk = &domain.QuoteLevel{
			Price:  decimal.RequireFromString(ask),
			Amount: decimal.NewFromInt(10),
		}
	}
	return domain.InstrumentSnapshot{
		Instrument: domain.Instrument{
			Name:         name,
			Currency:     domain.CurrencyBTC,
			OptionKind:   kind,
			Strike:       decimal.NewFromInt(strike),
			Expiry:       expiry,
			ContractSize: decimal.NewFromInt(1),
			Settlement:   domain.SettlementUSDC,
		},
		Quote: quote,
	}
}

func TestVerticalCallDebit(t *testing.T) {
	snapshot := []domain.InstrumentSnapshot{
		optSnap("BTC_USDC-25DEC30-40000-C", domain.OptionCall, 40_000, decExpiry, "5800", "6000"),
		optSnap("BTC_USDC-25DEC30-45000-C", domain.OptionCall, 45_000, decExpiry, "5400", "5600"),
	}

	opps := NewSuite(testConfig(domain.StrategyVertical)).Scan(snapshot)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.StrategyVertical, opp.Strategy)
	// Ticket cap: 20000 / 40000 = 0.5 contracts.
	assert.True(t, opp.SizeContracts.Equal(decimal.RequireFromString("0.5")), opp.SizeContracts.String())
	// Debit (6000-5400) x 0.5 = 300; payout 5000 x 0.5 = 2500; fees 6.
	assert.True(t, opp.TotalCost.Equal(decimal.NewFromInt(300)), opp.TotalCost.String())
	assert.True(t, opp.MaxPayout.Equal(decimal.NewFromInt(2500)), opp.MaxPayout.String())
	assert.True(t, opp.NetEdgeUSD.Equal(decimal.NewFromInt(2194)), opp.NetEdgeUSD.String())
	require.Len(t, opp.Legs, 2)
	assert.Equal(t, domain.SideBuy, opp.Legs[0].Side)
	assert.Equal(t, "BTC_USDC-25DEC30-40000-C", opp.Legs[0].InstrumentName)
	assert.Equal(t, domain.SideSell, opp.Legs[1].Side)
}

func TestVerticalDebitBoundedByPayout(t *testing.T) {
	for _, opp := range NewSuite(testConfig(domain.StrategyVertical)).Scan([]domain.InstrumentSnapshot{
		optSnap("BTC_USDC-25DEC30-40000-C", domain.OptionCall, 40_000, decExpiry, "5800", "6000"),
		optSnap("BTC_USDC-25DEC30-45000-C", domain.OptionCall, 45_000, decExpiry, "5400", "5600"),
	}) {
		assert.True(t, opp.TotalCost.LessThanOrEqual(opp.MaxPayout.Add(verticalTolerance)))
	}
}

func TestVerticalIgnoresMixedKinds(t *testing.T) {
	snapshot := []domain.InstrumentSnapshot{
		optSnap("BTC_USDC-25DEC30-40000-C", domain.OptionCall, 40_000, decExpiry, "5800", "6000"),
		optSnap("BTC_USDC-25DEC30-45000-P", domain.OptionPut, 45_000, decExpiry, "5400", "5600"),
	}
	assert.Empty(t, NewSuite(testConfig(domain.StrategyVertical)).Scan(snapshot))
}

func TestCalendarCredit(t *testing.T) {
	snapshot := []domain.InstrumentSnapshot{
		optSnap("BTC_USDC-25DEC30-40000-C", domain.OptionCall, 40_000, decExpiry, "1600", "1700"),
		optSnap("BTC_USDC-25JAN31-40000-C", domain.OptionCall, 40_000, janExpiry, "1200", "1300"),
	}

	opps := NewSuite(testConfig(domain.StrategyCalendar)).Scan(snapshot)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.StrategyCalendar, opp.Strategy)
	// Credit (1600-1300) x 0.5 = 150; fees 6.
	assert.True(t, opp.NetEdgeUSD.Equal(decimal.NewFromInt(144)), opp.NetEdgeUSD.String())
	assert.Equal(t, domain.SideSell, opp.Legs[0].Side)
	assert.Equal(t, "BTC_USDC-25DEC30-40000-C", opp.Legs[0].InstrumentName)
	assert.Equal(t, domain.SideBuy, opp.Legs[1].Side)
	assert.Equal(t, []time.Time{decExpiry, janExpiry}, opp.Expiries)
}

func TestCalendarRejectsMixedKindsAtSameStrike(t *testing.T) {
	// Identical expiry and strike but opposite kinds: grouping by option kind
	// must keep these apart.
	snapshot := []domain.InstrumentSnapshot{
		optSnap("BTC_USDC-25DEC30-40000-C", domain.OptionCall, 40_000, decExpiry, "1600", "1700"),
		optSnap("BTC_USDC-25DEC30-40000-P", domain.OptionPut, 40_000, decExpiry, "1200", "1300"),
	}
	assert.Empty(t, NewSuite(testConfig(domain.StrategyCalendar)).Scan(snapshot))
}

func TestFreeButterfly(t *testing.T) {
	snapshot := []domain.InstrumentSnapshot{
		optSnap("BTC_USDC-25DEC30-38000-C", domain.OptionCall, 38_000, decExpiry, "800", "900"),
		optSnap("BTC_USDC-25DEC30-40000-C", domain.OptionCall, 40_000, decExpiry, "2200", "2300"),
		optSnap("BTC_USDC-25DEC30-42000-C", domain.OptionCall, 42_000, decExpiry, "900", "1000"),
	}

	opps := NewSuite(testConfig(domain.StrategyButterfly)).Scan(snapshot)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.StrategyButterfly, opp.Strategy)
	// Fly cost 900 + 1000 - 2x2200 = -2500 per contract; size 0.5; fees 12.
	assert.True(t, opp.TotalCost.Equal(decimal.NewFromInt(-1250)), opp.TotalCost.String())
	assert.True(t, opp.NetEdgeUSD.Equal(decimal.NewFromInt(1238)), opp.NetEdgeUSD.String())
	require.Len(t, opp.Legs, 3)
	assert.Equal(t, 2, opp.Legs[1].Ratio)
	assert.Equal(t, domain.SideSell, opp.Legs[1].Side)
	// The middle touch consumes twice the per-wing size.
	assert.True(t, opp.Touches[1].SizeContracts.Equal(decimal.NewFromInt(1)))
}

func TestBoxParityGap(t *testing.T) {
	snapshot := []domain.InstrumentSnapshot{
		optSnap("BTC_USDC-25DEC30-40000-C", domain.OptionCall, 40_000, decExpiry, "1800", "2000"),
		optSnap("BTC_USDC-25DEC30-45000-C", domain.OptionCall, 45_000, decExpiry, "1500", "1700"),
		optSnap("BTC_USDC-25DEC30-40000-P", domain.OptionPut, 40_000, decExpiry, "1500", "1700"),
		optSnap("BTC_USDC-25DEC30-45000-P", domain.OptionPut, 45_000, decExpiry, "1800", "2000"),
	}

	opps := NewSuite(testConfig(domain.StrategyBox)).Scan(snapshot)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.StrategyBox, opp.Strategy)
	// Combo price per contract 2000-1500-1500+2000 = 1000 vs fair value 5000;
	// size 0.5; fees 12.
	assert.True(t, opp.MaxPayout.Equal(decimal.NewFromInt(2500)), opp.MaxPayout.String())
	assert.True(t, opp.TotalCost.Equal(decimal.NewFromInt(500)), opp.TotalCost.String())
	assert.True(t, opp.NetEdgeUSD.Equal(decimal.NewFromInt(1988)), opp.NetEdgeUSD.String())
	require.Len(t, opp.Legs, 4)
}

func TestBoxSkipsCoinSettlement(t *testing.T) {
	coin := func(name string, kind domain.OptionKind, strike int64, bid, ask string) domain.InstrumentSnapshot {
		snap := optSnap(name, kind, strike, decExpiry, bid, ask)
		snap.Instrument.Settlement = domain.SettlementCoin
		return snap
	}
	snapshot := []domain.InstrumentSnapshot{
		coin("BTC-25DEC30-40000-C", domain.OptionCall, 40_000, "0.045", "0.05"),
		coin("BTC-25DEC30-45000-C", domain.OptionCall, 45_000, "0.0375", "0.0425"),
		coin("BTC-25DEC30-40000-P", domain.OptionPut, 40_000, "0.0375", "0.0425"),
		coin("BTC-25DEC30-45000-P", domain.OptionPut, 45_000, "0.045", "0.05"),
	}
	assert.Empty(t, NewSuite(testConfig(domain.StrategyBox)).Scan(snapshot))
}

func TestJellyRollCredit(t *testing.T) {
	snapshot := []domain.InstrumentSnapshot{
		optSnap("BTC_USDC-25DEC30-40000-C", domain.OptionCall, 40_000, decExpiry, "4", "5"),
		optSnap("BTC_USDC-25DEC30-40000-P", domain.OptionPut, 40_000, decExpiry, "150", "151"),
		optSnap("BTC_USDC-25JAN31-40000-C", domain.OptionCall, 40_000, janExpiry, "10", "11"),
		optSnap("BTC_USDC-25JAN31-40000-P", domain.OptionPut, 40_000, janExpiry, "4", "5"),
	}

	opps := NewSuite(testConfig(domain.StrategyJellyRoll)).Scan(snapshot)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.StrategyJellyRoll, opp.Strategy)
	// Debit per contract 5 - 150 - 10 + 5 = -150 (a credit); size 0.5;
	// fees 6.625 after waiving the cheap buy side.
	assert.True(t, opp.TotalCost.Equal(decimal.NewFromInt(-75)), opp.TotalCost.String())
	assert.True(t, opp.NetEdgeUSD.Equal(decimal.RequireFromString("68.375")), opp.NetEdgeUSD.String())
	require.Len(t, opp.Legs, 4)
	assert.Equal(t, domain.SideBuy, opp.Legs[0].Side)
	assert.Equal(t, domain.SideSell, opp.Legs[1].Side)
	assert.Equal(t, domain.SideSell, opp.Legs[2].Side)
	assert.Equal(t, domain.SideBuy, opp.Legs[3].Side)
}

func TestJellyRollRequiresCompletePairs(t *testing.T) {
	// The far expiry lacks a put, so no synthetic pair exists there.
	snapshot := []domain.InstrumentSnapshot{
		optSnap("BTC_USDC-25DEC30-40000-C", domain.OptionCall, 40_000, decExpiry, "4", "5"),
		optSnap("BTC_USDC-25DEC30-40000-P", domain.OptionPut, 40_000, decExpiry, "150", "151"),
		optSnap("BTC_USDC-25JAN31-40000-C", domain.OptionCall, 40_000, janExpiry, "10", "11"),
	}
	assert.Empty(t, NewSuite(testConfig(domain.StrategyJellyRoll)).Scan(snapshot))
}

func TestSuiteOrderingAndInvariants(t *testing.T) {
	snapshot := []domain.InstrumentSnapshot{
		// Vertical pair.
		optSnap("BTC_USDC-25DEC30-40000-C", domain.OptionCall, 40_000, decExpiry, "5800", "6000"),
		optSnap("BTC_USDC-25DEC30-45000-C", domain.OptionCall, 45_000, decExpiry, "5400", "5600"),
		// Calendar ladder at another strike.
		optSnap("BTC_USDC-25DEC30-50000-C", domain.OptionCall, 50_000, decExpiry, "1600", "1700"),
		optSnap("BTC_USDC-25JAN31-50000-C", domain.OptionCall, 50_000, janExpiry, "1200", "1300"),
	}

	cfg := testConfig()
	opps := NewSuite(cfg).Scan(snapshot)
	require.NotEmpty(t, opps)

	for i, opp := range opps {
		assert.True(t, opp.SizeContracts.IsPositive())
		assert.True(t, opp.NetEdgeUSD.GreaterThanOrEqual(cfg.MinEdgeUSD))
		feeGuard := decimal.Max(opp.FeeBreakdown.TotalUSD, feeFloorUSD)
		assert.GreaterOrEqual(t, opp.NetEdgeUSD.Div(feeGuard).InexactFloat64(), cfg.MinEdgeRatio)
		assert.NotEmpty(t, opp.ID)
		if i > 0 {
			assert.True(t, opps[i-1].NetEdgeUSD.GreaterThanOrEqual(opp.NetEdgeUSD),
				"opportunities must be sorted by descending net edge")
		}
	}
}

func TestSuiteFilter(t *testing.T) {
	snapshot := []domain.InstrumentSnapshot{
		optSnap("BTC_USDC-25DEC30-40000-C", domain.OptionCall, 40_000, decExpiry, "5800", "6000"),
		optSnap("BTC_USDC-25DEC30-45000-C", domain.OptionCall, 45_000, decExpiry, "5400", "5600"),
		optSnap("BTC_USDC-25DEC30-50000-C", domain.OptionCall, 50_000, decExpiry, "1600", "1700"),
		optSnap("BTC_USDC-25JAN31-50000-C", domain.OptionCall, 50_000, janExpiry, "1200", "1300"),
	}

	for _, opp := range NewSuite(testConfig(domain.StrategyCalendar)).Scan(snapshot) {
		assert.Equal(t, domain.StrategyCalendar, opp.Strategy)
	}

	// The stale kind is reserved: enabling it alone yields nothing.
	assert.Empty(t, NewSuite(testConfig(domain.StrategyStale)).Scan(snapshot))
}

func TestTicketCapContracts(t *testing.T) {
	cfg := testConfig()
	base := optSnap("BTC_USDC-25DEC30-40000-C", domain.OptionCall, 40_000, decExpiry, "5800", "6000")

	// 20000 / 40000 = 0.5, well inside the 10 contracts at the touch.
	assert.True(t, ticketCapContracts(cfg, base).Equal(decimal.RequireFromString("0.5")))

	// Cap larger than available depth clips to the touch amount.
	rich := cfg
	rich.MaxTicketUSD = decimal.NewFromInt(800_000)
	assert.True(t, ticketCapContracts(rich, base).Equal(decimal.NewFromInt(10)))

	// Zero index degrades to the configured minimum depth.
	zeroIndex := base
	zeroIndex.Quote.IndexPrice = decimal.Zero
	assert.True(t, ticketCapContracts(cfg, zeroIndex).Equal(decimal.NewFromInt(1)))

	// No touch at all falls back to the minimum depth.
	bare := base
	bare.Quote.BestBid = nil
	bare.Quote.BestAsk = nil
	assert.True(t, ticketCapContracts(rich, bare).Equal(decimal.NewFromInt(1)))
}

func TestCoinSettlementNativeEdge(t *testing.T) {
	coinSnap := func(name string, strike int64, bid, ask string) domain.InstrumentSnapshot {
		snap := optSnap(name, domain.OptionCall, strike, decExpiry, bid, ask)
		snap.Instrument.Settlement = domain.SettlementCoin
		return snap
	}
	snapshot := []domain.InstrumentSnapshot{
		coinSnap("BTC-25DEC30-40000-C", 40_000, "0.145", "0.15"),
		coinSnap("BTC-25DEC30-45000-C", 45_000, "0.135", "0.14"),
	}

	opps := NewSuite(testConfig(domain.StrategyVertical)).Scan(snapshot)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.SettlementCoin, opp.Settlement)
	// Native edge converts back through the index.
	expected := opp.NetEdgeUSD.Div(testIndex)
	assert.True(t, opp.NetEdgeNative.Equal(expected), opp.NetEdgeNative.String())
}
