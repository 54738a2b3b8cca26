package detect

import (
	"time"

	"github.com/shopspring/decimal"

	"deribitarb/internal/domain"
	"deribitarb/internal/fees"
)

// verticalDetector finds adjacent-strike spreads priced below their maximum
// payout. For calls it buys the low strike at the ask and sells the high
// strike at the bid; for puts it buys the high strike and sells the low one.
type verticalDetector struct {
	cfg  Config
	fees fees.Engine
}

var verticalTolerance = decimal.RequireFromString("0.000001")

func (d *verticalDetector) Kind() domain.StrategyKind { return domain.StrategyVertical }

func (d *verticalDetector) Detect(snapshot []domain.InstrumentSnapshot) []domain.StrategyOpportunity {
	var out []domain.StrategyOpportunity
	for _, group := range groupByExpiryKind(snapshot) {
		out = append(out, d.detectGroup(group)...)
	}
	return out
}

func (d *verticalDetector) detectGroup(group expiryGroup) []domain.StrategyOpportunity {
	snaps := append([]domain.InstrumentSnapshot(nil), group.snaps...)
	sortByStrike(snaps)

	var out []domain.StrategyOpportunity
	for i := 0; i+1 < len(snaps); i++ {
		low, high := snaps[i], snaps[i+1]
		if low.Instrument.OptionKind != high.Instrument.OptionKind {
			continue
		}

		// The long leg always pays the ask, the short leg receives the bid.
		var buy, sell domain.InstrumentSnapshot
		var buyTouch, sellTouch domain.QuoteLevel
		var ok bool
		switch low.Instrument.OptionKind {
		case domain.OptionCall:
			buy, sell = low, high
		case domain.OptionPut:
			buy, sell = high, low
		default:
			continue
		}
		if buyTouch, ok = depthLevel(buy.Quote.BestAsk, d.cfg.MinDepthContracts); !ok {
			continue
		}
		if sellTouch, ok = depthLevel(sell.Quote.BestBid, d.cfg.MinDepthContracts); !ok {
			continue
		}

		size := decimal.Min(buyTouch.Amount, sellTouch.Amount, ticketCapContracts(d.cfg, buy))
		if !size.IsPositive() {
			continue
		}

		debitNative := buyTouch.Price.Mul(size).Mul(buy.Instrument.ContractSize).
			Sub(sellTouch.Price.Mul(size).Mul(sell.Instrument.ContractSize))
		if debitNative.IsNegative() {
			continue
		}

		referenceIndex := buy.Quote.IndexPrice
		debitUSD := toUSD(group.settlement, debitNative, referenceIndex)

		strikeDiff := high.Instrument.Strike.Sub(low.Instrument.Strike)
		if !strikeDiff.IsPositive() {
			continue
		}
		maxPayoutUSD := strikeDiff.Mul(size).Mul(low.Instrument.ContractSize)
		if debitUSD.GreaterThan(maxPayoutUSD.Add(verticalTolerance)) {
			continue
		}

		breakdown, err := d.fees.Compute(fees.Context{
			Legs: []fees.LegInput{
				feeLeg(buy, domain.SideBuy, buyTouch.Price, size),
				feeLeg(sell, domain.SideSell, sellTouch.Price, size),
			},
			HoldToExpiry: d.cfg.HoldToExpiry,
		})
		if err != nil {
			continue
		}

		netEdgeUSD := maxPayoutUSD.Sub(debitUSD).Sub(breakdown.TotalUSD)
		if !passesEdgeGates(d.cfg, netEdgeUSD, breakdown.TotalUSD) {
			continue
		}

		legs := []domain.ComboLeg{
			{InstrumentName: buy.Instrument.Name, Ratio: 1, Side: domain.SideBuy},
			{InstrumentName: sell.Instrument.Name, Ratio: 1, Side: domain.SideSell},
		}
		touches := []domain.LegTouch{
			{InstrumentName: buy.Instrument.Name, Side: domain.SideBuy, Price: buyTouch.Price, SizeContracts: size},
			{InstrumentName: sell.Instrument.Name, Side: domain.SideSell, Price: sellTouch.Price, SizeContracts: size},
		}

		out = append(out, domain.StrategyOpportunity{
			ID:             newOpportunityID(),
			Strategy:       domain.StrategyVertical,
			Currency:       group.currency,
			Settlement:     group.settlement,
			Expiries:       []time.Time{group.expiry},
			Strikes:        []decimal.Decimal{low.Instrument.Strike, high.Instrument.Strike},
			Legs:           legs,
			Touches:        touches,
			TotalCost:      debitNative,
			MaxPayout:      toNative(group.settlement, maxPayoutUSD, referenceIndex),
			FeeBreakdown:   breakdown,
			NetEdgeNative:  toNative(group.settlement, netEdgeUSD, referenceIndex),
			NetEdgeUSD:     netEdgeUSD,
			NotionalUSD:    referenceIndex.Mul(size).Mul(buy.Instrument.ContractSize),
			ReferenceIndex: referenceIndex,
			EdgeBps:        edgeBps(netEdgeUSD, size, referenceIndex),
			SizeContracts:  size,
			ExecutionPlan:  buildPlan(d.cfg, legs, size, debitNative),
		})
	}
	return out
}
