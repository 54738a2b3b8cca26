package detect

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"deribitarb/internal/domain"
	"deribitarb/internal/fees"
)

// calendarDetector sells the near expiry at the bid and buys the far expiry at
// the ask for the same currency, strike, settlement, and kind. Time value
// normally makes the far leg dearer; a net credit means the curve is inverted
// enough to lock in.
type calendarDetector struct {
	cfg  Config
	fees fees.Engine
}

func (d *calendarDetector) Kind() domain.StrategyKind { return domain.StrategyCalendar }

func (d *calendarDetector) Detect(snapshot []domain.InstrumentSnapshot) []domain.StrategyOpportunity {
	type key struct {
		currency   domain.Currency
		strike     string
		settlement domain.Settlement
		kind       domain.OptionKind
	}
	buckets := make(map[key][]domain.InstrumentSnapshot)
	var order []key
	for _, snap := range snapshot {
		k := key{
			currency:   snap.Instrument.Currency,
			strike:     snap.Instrument.Strike.String(),
			settlement: snap.Instrument.Settlement,
			kind:       snap.Instrument.OptionKind,
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
		if a.strike != b.strike {
			return a.strike < b.strike
		}
		if a.settlement != b.settlement {
			return a.settlement < b.settlement
		}
		return a.kind < b.kind
	})

	var out []domain.StrategyOpportunity
	for _, k := range order {
		snaps := buckets[k]
		if len(snaps) < 2 {
			continue
		}
		sortByExpiry(snaps)
		out = append(out, d.detectLadder(k.currency, k.settlement, snaps)...)
	}
	return out
}

func (d *calendarDetector) detectLadder(currency domain.Currency, settlement domain.Settlement, snaps []domain.InstrumentSnapshot) []domain.StrategyOpportunity {
	var out []domain.StrategyOpportunity
	for i := 0; i+1 < len(snaps); i++ {
		near, far := snaps[i], snaps[i+1]
		if near.Instrument.Expiry.Equal(far.Instrument.Expiry) {
			continue
		}

		nearBid, ok := depthLevel(near.Quote.BestBid, d.cfg.MinDepthContracts)
		if !ok {
			continue
		}
		farAsk, ok := depthLevel(far.Quote.BestAsk, d.cfg.MinDepthContracts)
		if !ok {
			continue
		}

		size := decimal.Min(nearBid.Amount, farAsk.Amount, ticketCapContracts(d.cfg, near))
		if !size.IsPositive() {
			continue
		}

		creditNative := nearBid.Price.Mul(size).Mul(near.Instrument.ContractSize).
			Sub(farAsk.Price.Mul(size).Mul(far.Instrument.ContractSize))
		referenceIndex := near.Quote.IndexPrice
		creditUSD := toUSD(settlement, creditNative, referenceIndex)
		if !creditUSD.IsPositive() {
			continue
		}

		breakdown, err := d.fees.Compute(fees.Context{
			Legs: []fees.LegInput{
				feeLeg(near, domain.SideSell, nearBid.Price, size),
				feeLeg(far, domain.SideBuy, farAsk.Price, size),
			},
			HoldToExpiry: d.cfg.HoldToExpiry,
		})
		if err != nil {
			continue
		}

		netEdgeUSD := creditUSD.Sub(breakdown.TotalUSD)
		if !passesEdgeGates(d.cfg, netEdgeUSD, breakdown.TotalUSD) {
			continue
		}

		legs := []domain.ComboLeg{
			{InstrumentName: near.Instrument.Name, Ratio: 1, Side: domain.SideSell},
			{InstrumentName: far.Instrument.Name, Ratio: 1, Side: domain.SideBuy},
		}
		touches := []domain.LegTouch{
			{InstrumentName: near.Instrument.Name, Side: domain.SideSell, Price: nearBid.Price, SizeContracts: size},
			{InstrumentName: far.Instrument.Name, Side: domain.SideBuy, Price: farAsk.Price, SizeContracts: size},
		}

		out = append(out, domain.StrategyOpportunity{
			ID:             newOpportunityID(),
			Strategy:       domain.StrategyCalendar,
			Currency:       currency,
			Settlement:     settlement,
			Expiries:       []time.Time{near.Instrument.Expiry, far.Instrument.Expiry},
			Strikes:        []decimal.Decimal{near.Instrument.Strike},
			Legs:           legs,
			Touches:        touches,
			TotalCost:      creditNative,
			MaxPayout:      decimal.Zero,
			FeeBreakdown:   breakdown,
			NetEdgeNative:  toNative(settlement, netEdgeUSD, referenceIndex),
			NetEdgeUSD:     netEdgeUSD,
			NotionalUSD:    referenceIndex.Mul(size).Mul(near.Instrument.ContractSize),
			ReferenceIndex: referenceIndex,
			EdgeBps:        edgeBps(netEdgeUSD, size, referenceIndex),
			SizeContracts:  size,
			ExecutionPlan:  buildPlan(d.cfg, legs, size, creditNative),
		})
	}
	return out
}
