package detect

import (
	"time"

	"github.com/shopspring/decimal"

	"deribitarb/internal/domain"
	"deribitarb/internal/fees"
)

// butterflyDetector looks for negative-cost butterflies over three adjacent
// strikes: buy the wings at the ask, sell two middles at the bid. A butterfly
// can never pay out less than zero, so any net credit after fees is an edge.
type butterflyDetector struct {
	cfg  Config
	fees fees.Engine
}

var two = decimal.NewFromInt(2)

func (d *butterflyDetector) Kind() domain.StrategyKind { return domain.StrategyButterfly }

func (d *butterflyDetector) Detect(snapshot []domain.InstrumentSnapshot) []domain.StrategyOpportunity {
	var out []domain.StrategyOpportunity
	for _, group := range groupByExpiryKind(snapshot) {
		out = append(out, d.detectGroup(group)...)
	}
	return out
}

func (d *butterflyDetector) detectGroup(group expiryGroup) []domain.StrategyOpportunity {
	snaps := append([]domain.InstrumentSnapshot(nil), group.snaps...)
	sortByStrike(snaps)

	var out []domain.StrategyOpportunity
	for i := 0; i+2 < len(snaps); i++ {
		low, mid, high := snaps[i], snaps[i+1], snaps[i+2]

		askLow, ok := depthLevel(low.Quote.BestAsk, d.cfg.MinDepthContracts)
		if !ok {
			continue
		}
		bidMid, ok := depthLevel(mid.Quote.BestBid, d.cfg.MinDepthContracts)
		if !ok {
			continue
		}
		askHigh, ok := depthLevel(high.Quote.BestAsk, d.cfg.MinDepthContracts)
		if !ok {
			continue
		}

		// The middle leg trades twice the size, so only half its depth counts.
		size := decimal.Min(
			askLow.Amount,
			askHigh.Amount,
			bidMid.Amount.Div(two),
			ticketCapContracts(d.cfg, low),
		)
		if !size.IsPositive() {
			continue
		}

		flyCost := askLow.Price.Add(askHigh.Price).Sub(bidMid.Price.Mul(two))
		debitNative := flyCost.Mul(size).Mul(low.Instrument.ContractSize)
		referenceIndex := low.Quote.IndexPrice
		debitUSD := toUSD(group.settlement, debitNative, referenceIndex)

		breakdown, err := d.fees.Compute(fees.Context{
			Legs: []fees.LegInput{
				feeLeg(low, domain.SideBuy, askLow.Price, size),
				feeLeg(mid, domain.SideSell, bidMid.Price, size.Mul(two)),
				feeLeg(high, domain.SideBuy, askHigh.Price, size),
			},
			HoldToExpiry: d.cfg.HoldToExpiry,
		})
		if err != nil {
			continue
		}

		netEdgeUSD := debitUSD.Add(breakdown.TotalUSD).Neg()
		if !passesEdgeGates(d.cfg, netEdgeUSD, breakdown.TotalUSD) {
			continue
		}

		legs := []domain.ComboLeg{
			{InstrumentName: low.Instrument.Name, Ratio: 1, Side: domain.SideBuy},
			{InstrumentName: mid.Instrument.Name, Ratio: 2, Side: domain.SideSell},
			{InstrumentName: high.Instrument.Name, Ratio: 1, Side: domain.SideBuy},
		}
		touches := []domain.LegTouch{
			{InstrumentName: low.Instrument.Name, Side: domain.SideBuy, Price: askLow.Price, SizeContracts: size},
			{InstrumentName: mid.Instrument.Name, Side: domain.SideSell, Price: bidMid.Price, SizeContracts: size.Mul(two)},
			{InstrumentName: high.Instrument.Name, Side: domain.SideBuy, Price: askHigh.Price, SizeContracts: size},
		}

		out = append(out, domain.StrategyOpportunity{
			ID:         newOpportunityID(),
			Strategy:   domain.StrategyButterfly,
			Currency:   group.currency,
			Settlement: group.settlement,
			Expiries:   []time.Time{group.expiry},
			Strikes: []decimal.Decimal{
				low.Instrument.Strike,
				mid.Instrument.Strike,
				high.Instrument.Strike,
			},
			Legs:           legs,
			Touches:        touches,
			TotalCost:      debitNative,
			MaxPayout:      high.Instrument.Strike.Sub(low.Instrument.Strike).Mul(size).Mul(low.Instrument.ContractSize),
			FeeBreakdown:   breakdown,
			NetEdgeNative:  toNative(group.settlement, netEdgeUSD, referenceIndex),
			NetEdgeUSD:     netEdgeUSD,
			NotionalUSD:    referenceIndex.Mul(size).Mul(low.Instrument.ContractSize),
			ReferenceIndex: referenceIndex,
			EdgeBps:        edgeBps(netEdgeUSD, size, referenceIndex),
			SizeContracts:  size,
			ExecutionPlan:  buildPlan(d.cfg, legs, size, debitNative),
		})
	}
	return out
}
