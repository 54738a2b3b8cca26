package detect

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"deribitarb/internal/domain"
	"deribitarb/internal/fees"
)

// jellyRollDetector trades the synthetic forward between two expiries at the
// same strike: buy the near synthetic (long call, short put), sell the far
// one. Entering the four legs for a net credit is the arbitrage.
type jellyRollDetector struct {
	cfg  Config
	fees fees.Engine
}

// expiryPair is the call/put pair quoted at one expiry for a strike bucket.
type expiryPair struct {
	expiry time.Time
	call   domain.InstrumentSnapshot
	put    domain.InstrumentSnapshot
}

func (d *jellyRollDetector) Kind() domain.StrategyKind { return domain.StrategyJellyRoll }

func (d *jellyRollDetector) Detect(snapshot []domain.InstrumentSnapshot) []domain.StrategyOpportunity {
	type key struct {
		currency   domain.Currency
		strike     string
		settlement domain.Settlement
	}
	type bucket struct {
		call, put map[int64]domain.InstrumentSnapshot
		expiries  map[int64]time.Time
	}
	buckets := make(map[key]*bucket)
	var order []key
	for _, snap := range snapshot {
		k := key{
			currency:   snap.Instrument.Currency,
			strike:     snap.Instrument.Strike.String(),
			settlement: snap.Instrument.Settlement,
		}
		b, ok := buckets[k]
		if !ok {
			b = &bucket{
				call:     make(map[int64]domain.InstrumentSnapshot),
				put:      make(map[int64]domain.InstrumentSnapshot),
				expiries: make(map[int64]time.Time),
			}
			buckets[k] = b
			order = append(order, k)
		}
		at := snap.Instrument.Expiry.UnixMilli()
		b.expiries[at] = snap.Instrument.Expiry
		switch snap.Instrument.OptionKind {
		case domain.OptionCall:
			b.call[at] = snap
		case domain.OptionPut:
			b.put[at] = snap
		}
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.currency != b.currency {
			return a.currency < b.currency
		}
		if a.strike != b.strike {
			return a.strike < b.strike
		}
		return a.settlement < b.settlement
	})

	var out []domain.StrategyOpportunity
	for _, k := range order {
		b := buckets[k]
		var pairs []expiryPair
		for at, expiry := range b.expiries {
			call, haveCall := b.call[at]
			put, havePut := b.put[at]
			if !haveCall || !havePut {
				continue
			}
			pairs = append(pairs, expiryPair{expiry: expiry, call: call, put: put})
		}
		if len(pairs) < 2 {
			continue
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].expiry.Before(pairs[j].expiry) })
		out = append(out, d.detectLadder(k.currency, k.settlement, pairs)...)
	}
	return out
}

func (d *jellyRollDetector) detectLadder(currency domain.Currency, settlement domain.Settlement, pairs []expiryPair) []domain.StrategyOpportunity {
	var out []domain.StrategyOpportunity
	for i := 0; i+1 < len(pairs); i++ {
		near, far := pairs[i], pairs[i+1]

		askCallNear, ok := depthLevel(near.call.Quote.BestAsk, d.cfg.MinDepthContracts)
		if !ok {
			continue
		}
		bidPutNear, ok := depthLevel(near.put.Quote.BestBid, d.cfg.MinDepthContracts)
		if !ok {
			continue
		}
		bidCallFar, ok := depthLevel(far.call.Quote.BestBid, d.cfg.MinDepthContracts)
		if !ok {
			continue
		}
		askPutFar, ok := depthLevel(far.put.Quote.BestAsk, d.cfg.MinDepthContracts)
		if !ok {
			continue
		}

		size := decimal.Min(
			askCallNear.Amount,
			bidPutNear.Amount,
			bidCallFar.Amount,
			askPutFar.Amount,
			ticketCapContracts(d.cfg, near.call),
		)
		if !size.IsPositive() {
			continue
		}

		debitNative := askCallNear.Price.Mul(size).Mul(near.call.Instrument.ContractSize).
			Sub(bidPutNear.Price.Mul(size).Mul(near.put.Instrument.ContractSize)).
			Sub(bidCallFar.Price.Mul(size).Mul(far.call.Instrument.ContractSize)).
			Add(askPutFar.Price.Mul(size).Mul(far.put.Instrument.ContractSize))

		referenceIndex := near.call.Quote.IndexPrice
		debitUSD := toUSD(settlement, debitNative, referenceIndex)
		if !debitUSD.IsNegative() {
			continue
		}

		breakdown, err := d.fees.Compute(fees.Context{
			Legs: []fees.LegInput{
				feeLeg(near.call, domain.SideBuy, askCallNear.Price, size),
				feeLeg(near.put, domain.SideSell, bidPutNear.Price, size),
				feeLeg(far.call, domain.SideSell, bidCallFar.Price, size),
				feeLeg(far.put, domain.SideBuy, askPutFar.Price, size),
			},
			HoldToExpiry: d.cfg.HoldToExpiry,
		})
		if err != nil {
			continue
		}

		netEdgeUSD := debitUSD.Neg().Sub(breakdown.TotalUSD)
		if !passesEdgeGates(d.cfg, netEdgeUSD, breakdown.TotalUSD) {
			continue
		}

		legs := []domain.ComboLeg{
			{InstrumentName: near.call.Instrument.Name, Ratio: 1, Side: domain.SideBuy},
			{InstrumentName: near.put.Instrument.Name, Ratio: 1, Side: domain.SideSell},
			{InstrumentName: far.call.Instrument.Name, Ratio: 1, Side: domain.SideSell},
			{InstrumentName: far.put.Instrument.Name, Ratio: 1, Side: domain.SideBuy},
		}
		touches := []domain.LegTouch{
			{InstrumentName: near.call.Instrument.Name, Side: domain.SideBuy, Price: askCallNear.Price, SizeContracts: size},
			{InstrumentName: near.put.Instrument.Name, Side: domain.SideSell, Price: bidPutNear.Price, SizeContracts: size},
			{InstrumentName: far.call.Instrument.Name, Side: domain.SideSell, Price: bidCallFar.Price, SizeContracts: size},
			{InstrumentName: far.put.Instrument.Name, Side: domain.SideBuy, Price: askPutFar.Price, SizeContracts: size},
		}

		out = append(out, domain.StrategyOpportunity{
			ID:             newOpportunityID(),
			Strategy:       domain.StrategyJellyRoll,
			Currency:       currency,
			Settlement:     settlement,
			Expiries:       []time.Time{near.expiry, far.expiry},
			Strikes:        []decimal.Decimal{near.call.Instrument.Strike},
			Legs:           legs,
			Touches:        touches,
			TotalCost:      debitNative,
			MaxPayout:      decimal.Zero,
			FeeBreakdown:   breakdown,
			NetEdgeNative:  toNative(settlement, netEdgeUSD, referenceIndex),
			NetEdgeUSD:     netEdgeUSD,
			NotionalUSD:    referenceIndex.Mul(size).Mul(near.call.Instrument.ContractSize),
			ReferenceIndex: referenceIndex,
			EdgeBps:        edgeBps(netEdgeUSD, size, referenceIndex),
			SizeContracts:  size,
			ExecutionPlan:  buildPlan(d.cfg, legs, size, debitNative),
		})
	}
	return out
}
