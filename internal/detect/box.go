package detect

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"deribitarb/internal/domain"
	"deribitarb/internal/fees"
)

// boxDetector prices long boxes on adjacent strikes: long the call spread,
// short the put spread, all four legs at the touch. A box pays the strike
// width at expiry regardless of spot, so any discount to that width beyond
// fees is riskless. Only linear (USDC) instruments are considered; coin
// settlement reintroduces spot exposure on the payout.
type boxDetector struct {
	cfg  Config
	fees fees.Engine
}

func (d *boxDetector) Kind() domain.StrategyKind { return domain.StrategyBox }

func (d *boxDetector) Detect(snapshot []domain.InstrumentSnapshot) []domain.StrategyOpportunity {
	type key struct {
		expiry     int64
		settlement domain.Settlement
		currency   domain.Currency
	}
	buckets := make(map[key][]domain.InstrumentSnapshot)
	var order []key
	for _, snap := range snapshot {
		if snap.Instrument.Settlement != domain.SettlementUSDC {
			continue
		}
		k := key{
			expiry:     snap.Instrument.Expiry.UnixMilli(),
			settlement: snap.Instrument.Settlement,
			currency:   snap.Instrument.Currency,
		}
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], snap)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.currency != b.currency {
			return a.currency < b.currency
		}
		return a.expiry < b.expiry
	})

	var out []domain.StrategyOpportunity
	for _, k := range order {
		out = append(out, d.detectExpiry(k.currency, buckets[k])...)
	}
	return out
}

func (d *boxDetector) detectExpiry(currency domain.Currency, snaps []domain.InstrumentSnapshot) []domain.StrategyOpportunity {
	var calls, puts []domain.InstrumentSnapshot
	for _, snap := range snaps {
		switch snap.Instrument.OptionKind {
		case domain.OptionCall:
			calls = append(calls, snap)
		case domain.OptionPut:
			puts = append(puts, snap)
		}
	}
	sortByStrike(calls)
	sortByStrike(puts)

	putByStrike := func(strike decimal.Decimal) (domain.InstrumentSnapshot, bool) {
		for _, p := range puts {
			if p.Instrument.Strike.Equal(strike) {
				return p, true
			}
		}
		return domain.InstrumentSnapshot{}, false
	}

	var out []domain.StrategyOpportunity
	for i := 0; i+1 < len(calls); i++ {
		cLow, cHigh := calls[i], calls[i+1]
		pLow, ok := putByStrike(cLow.Instrument.Strike)
		if !ok {
			continue
		}
		pHigh, ok := putByStrike(cHigh.Instrument.Strike)
		if !ok {
			continue
		}

		askCallLow, ok := depthLevel(cLow.Quote.BestAsk, d.cfg.MinDepthContracts)
		if !ok {
			continue
		}
		bidCallHigh, ok := depthLevel(cHigh.Quote.BestBid, d.cfg.MinDepthContracts)
		if !ok {
			continue
		}
		askPutHigh, ok := depthLevel(pHigh.Quote.BestAsk, d.cfg.MinDepthContracts)
		if !ok {
			continue
		}
		bidPutLow, ok := depthLevel(pLow.Quote.BestBid, d.cfg.MinDepthContracts)
		if !ok {
			continue
		}

		size := decimal.Min(
			askCallLow.Amount,
			bidCallHigh.Amount,
			askPutHigh.Amount,
			bidPutLow.Amount,
			ticketCapContracts(d.cfg, cLow),
		)
		if !size.IsPositive() {
			continue
		}

		breakdown, err := d.fees.Compute(fees.Context{
			Legs: []fees.LegInput{
				feeLeg(cLow, domain.SideBuy, askCallLow.Price, size),
				feeLeg(cHigh, domain.SideSell, bidCallHigh.Price, size),
				feeLeg(pLow, domain.SideSell, bidPutLow.Price, size),
				feeLeg(pHigh, domain.SideBuy, askPutHigh.Price, size),
			},
			HoldToExpiry: d.cfg.HoldToExpiry,
		})
		if err != nil {
			continue
		}

		fairValue := cHigh.Instrument.Strike.Sub(cLow.Instrument.Strike).
			Mul(size).Mul(cLow.Instrument.ContractSize)
		comboPrice := askCallLow.Price.Sub(bidCallHigh.Price).Sub(bidPutLow.Price).Add(askPutHigh.Price)
		comboPriceUSD := comboPrice.Mul(size).Mul(cLow.Instrument.ContractSize)

		netEdgeUSD := fairValue.Sub(comboPriceUSD).Sub(breakdown.TotalUSD)
		if !passesEdgeGates(d.cfg, netEdgeUSD, breakdown.TotalUSD) {
			continue
		}

		legs := []domain.ComboLeg{
			{InstrumentName: cLow.Instrument.Name, Ratio: 1, Side: domain.SideBuy},
			{InstrumentName: cHigh.Instrument.Name, Ratio: 1, Side: domain.SideSell},
			{InstrumentName: pLow.Instrument.Name, Ratio: 1, Side: domain.SideSell},
			{InstrumentName: pHigh.Instrument.Name, Ratio: 1, Side: domain.SideBuy},
		}
		touches := []domain.LegTouch{
			{InstrumentName: cLow.Instrument.Name, Side: domain.SideBuy, Price: askCallLow.Price, SizeContracts: size},
			{InstrumentName: cHigh.Instrument.Name, Side: domain.SideSell, Price: bidCallHigh.Price, SizeContracts: size},
			{InstrumentName: pLow.Instrument.Name, Side: domain.SideSell, Price: bidPutLow.Price, SizeContracts: size},
			{InstrumentName: pHigh.Instrument.Name, Side: domain.SideBuy, Price: askPutHigh.Price, SizeContracts: size},
		}

		totalCost := comboPrice.Mul(size)
		referenceIndex := cLow.Quote.IndexPrice
		out = append(out, domain.StrategyOpportunity{
			ID:             newOpportunityID(),
			Strategy:       domain.StrategyBox,
			Currency:       currency,
			Settlement:     domain.SettlementUSDC,
			Expiries:       []time.Time{cLow.Instrument.Expiry},
			Strikes:        []decimal.Decimal{cLow.Instrument.Strike, cHigh.Instrument.Strike},
			Legs:           legs,
			Touches:        touches,
			TotalCost:      totalCost,
			MaxPayout:      fairValue,
			FeeBreakdown:   breakdown,
			NetEdgeNative:  netEdgeUSD,
			NetEdgeUSD:     netEdgeUSD,
			NotionalUSD:    referenceIndex.Mul(size).Mul(cLow.Instrument.ContractSize),
			ReferenceIndex: referenceIndex,
			EdgeBps:        edgeBps(netEdgeUSD, size, referenceIndex),
			SizeContracts:  size,
			ExecutionPlan:  buildPlan(d.cfg, legs, size, totalCost),
		})
	}
	return out
}
