// Package detect provides selectable options-arbitrage detectors and a suite
// that runs the enabled detectors over a chain snapshot, producing sized,
// fee-adjusted opportunities ranked by net USD edge.
package detect

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"deribitarb/internal/domain"
	"deribitarb/internal/fees"
)

// Config holds the tunable parameters shared by every detector.
type Config struct {
	MaxTicketUSD      decimal.Decimal
	MinEdgeUSD        decimal.Decimal
	MinEdgeRatio      float64
	HoldToExpiry      bool
	MinDepthContracts int
	DryRun            bool
	Filter            domain.StrategyFilter
}

// Detector is a single strategy family. Detect returns zero or more
// opportunities for the given snapshot; it never fails on malformed data, it
// skips the combination and moves on.
type Detector interface {
	Kind() domain.StrategyKind
	Detect(snapshot []domain.InstrumentSnapshot) []domain.StrategyOpportunity
}

// Suite runs the detectors enabled by the configured filter.
type Suite struct {
	cfg       Config
	detectors []Detector
}

// NewSuite builds a suite with the five strategy families, filtered by
// cfg.Filter. StaleQuote is a reserved kind with no detector.
func NewSuite(cfg Config) *Suite {
	engine := fees.New()
	all := []Detector{
		&verticalDetector{cfg: cfg, fees: engine},
		&butterflyDetector{cfg: cfg, fees: engine},
		&calendarDetector{cfg: cfg, fees: engine},
		&boxDetector{cfg: cfg, fees: engine},
		&jellyRollDetector{cfg: cfg, fees: engine},
	}
	s := &Suite{cfg: cfg}
	for _, d := range all {
		if cfg.Filter.Allows(d.Kind()) {
			s.detectors = append(s.detectors, d)
		}
	}
	return s
}

// Scan runs every enabled detector and merges the results, sorted by
// descending net USD edge. The sort is stable so ties keep insertion order.
func (s *Suite) Scan(snapshot []domain.InstrumentSnapshot) []domain.StrategyOpportunity {
	var out []domain.StrategyOpportunity
	for _, d := range s.detectors {
		out = append(out, d.Detect(snapshot)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NetEdgeUSD.GreaterThan(out[j].NetEdgeUSD)
	})
	return out
}

// depthLevel returns the level when it exists and carries at least the
// configured minimum resting amount.
func depthLevel(lvl *domain.QuoteLevel, minDepth int) (domain.QuoteLevel, bool) {
	if lvl == nil {
		return domain.QuoteLevel{}, false
	}
	if lvl.Amount.LessThan(decimal.NewFromInt(int64(minDepth))) {
		return domain.QuoteLevel{}, false
	}
	return *lvl, true
}

// ticketCapContracts converts the USD ticket cap into a contract quantity
// using the base leg's index and contract size, clipped by the best available
// touch amount. A zero index or zero per-contract notional falls back to the
// minimum depth so sizing degrades rather than divides by zero.
func ticketCapContracts(cfg Config, base domain.InstrumentSnapshot) decimal.Decimal {
	minDepth := decimal.NewFromInt(int64(cfg.MinDepthContracts))
	indexPrice := base.Quote.IndexPrice
	if indexPrice.IsZero() {
		return minDepth
	}
	perContract := indexPrice.Mul(base.Instrument.ContractSize)
	if perContract.IsZero() {
		return minDepth
	}
	var available decimal.Decimal
	haveTouch := false
	if ask := base.Quote.BestAsk; ask != nil {
		available = ask.Amount
		haveTouch = true
	}
	if bid := base.Quote.BestBid; bid != nil && (!haveTouch || bid.Amount.GreaterThan(available)) {
		available = bid.Amount
		haveTouch = true
	}
	if !haveTouch {
		available = minDepth
	}
	cap := cfg.MaxTicketUSD.Div(perContract)
	if cap.GreaterThan(available) {
		cap = available
	}
	if cap.IsNegative() {
		return decimal.Zero
	}
	return cap
}

// toUSD converts a native amount to USD for the given settlement.
func toUSD(settlement domain.Settlement, native, index decimal.Decimal) decimal.Decimal {
	if settlement == domain.SettlementCoin {
		return native.Mul(index)
	}
	return native
}

// toNative converts a USD amount back to the settlement's native unit. A zero
// index reports zero rather than failing.
func toNative(settlement domain.Settlement, usd, index decimal.Decimal) decimal.Decimal {
	if settlement == domain.SettlementUSDC {
		return usd
	}
	if index.IsZero() {
		return decimal.Zero
	}
	return usd.Div(index)
}

var feeFloorUSD = decimal.RequireFromString("0.01")

// passesEdgeGates applies the shared opportunity filters: positive edge, the
// USD floor, and the edge-to-fee ratio with a one-cent fee guard.
func passesEdgeGates(cfg Config, netEdgeUSD, feesUSD decimal.Decimal) bool {
	if !netEdgeUSD.IsPositive() {
		return false
	}
	if netEdgeUSD.LessThan(cfg.MinEdgeUSD) {
		return false
	}
	feeGuard := decimal.Max(feesUSD, feeFloorUSD)
	return netEdgeUSD.Div(feeGuard).InexactFloat64() >= cfg.MinEdgeRatio
}

// edgeBps reports the informational edge in basis points of deployed notional.
func edgeBps(netEdgeUSD, contracts, index decimal.Decimal) float64 {
	if contracts.IsZero() || index.IsZero() {
		return 0
	}
	return netEdgeUSD.Div(index.Mul(contracts)).InexactFloat64() * 10_000
}

// buildPlan assembles the IOC execution plan attached to every opportunity.
func buildPlan(cfg Config, legs []domain.ComboLeg, amount, priceLimit decimal.Decimal) domain.ComboExecutionPlan {
	return domain.ComboExecutionPlan{
		CreatePayload: domain.ComboCreatePayload{
			Legs:   legs,
			Amount: amount,
		},
		TimeInForce: domain.TifIOC,
		PriceLimit:  priceLimit,
		DryRun:      cfg.DryRun,
	}
}

// feeLeg builds the fee-engine input for one physical leg.
func feeLeg(snap domain.InstrumentSnapshot, side domain.ComboSide, price, contracts decimal.Decimal) fees.LegInput {
	return fees.LegInput{
		InstrumentName: snap.Instrument.Name,
		Side:           side,
		Settlement:     snap.Instrument.Settlement,
		Role:           domain.RoleTaker,
		OptionPrice:    price,
		IndexPrice:     snap.Quote.IndexPrice,
		Contracts:      contracts,
		ContractSize:   snap.Instrument.ContractSize,
		Expiry:         snap.Instrument.Expiry,
		IsDaily:        fees.IsDailyOption(snap.Instrument.Name, snap.Instrument.Expiry),
	}
}

func newOpportunityID() string {
	return uuid.NewString()
}

// expiryGroup is one (currency, expiry, settlement, kind) bucket of the chain,
// the working set for single-expiry detectors.
type expiryGroup struct {
	currency   domain.Currency
	expiry     time.Time
	settlement domain.Settlement
	kind       domain.OptionKind
	snaps      []domain.InstrumentSnapshot
}

// groupByExpiryKind buckets the snapshot by currency, expiry, settlement, and
// option kind. Groups come back in a deterministic order so repeated scans of
// the same chain produce identical output.
func groupByExpiryKind(snapshot []domain.InstrumentSnapshot) []expiryGroup {
	type key struct {
		currency   domain.Currency
		expiry     int64
		settlement domain.Settlement
		kind       domain.OptionKind
	}
	buckets := make(map[key]*expiryGroup)
	var order []key
	for _, snap := range snapshot {
		k := key{
			currency:   snap.Instrument.Currency,
			expiry:     snap.Instrument.Expiry.UnixMilli(),
			settlement: snap.Instrument.Settlement,
			kind:       snap.Instrument.OptionKind,
		}
		g, ok := buckets[k]
		if !ok {
			g = &expiryGroup{
				currency:   snap.Instrument.Currency,
				expiry:     snap.Instrument.Expiry,
				settlement: snap.Instrument.Settlement,
				kind:       snap.Instrument.OptionKind,
			}
			buckets[k] = g
			order = append(order, k)
		}
		g.snaps = append(g.snaps, snap)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.currency != b.currency {
			return a.currency < b.currency
		}
		if a.expiry != b.expiry {
			return a.expiry < b.expiry
		}
		if a.settlement != b.settlement {
			return a.settlement < b.settlement
		}
		return a.kind < b.kind
	})
	out := make([]expiryGroup, 0, len(order))
	for _, k := range order {
		out = append(out, *buckets[k])
	}
	return out
}

// sortByStrike orders snapshots ascending by strike, in place.
func sortByStrike(snaps []domain.InstrumentSnapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].Instrument.Strike.LessThan(snaps[j].Instrument.Strike)
	})
}

// sortByExpiry orders snapshots ascending by expiry, in place.
func sortByExpiry(snaps []domain.InstrumentSnapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].Instrument.Expiry.Before(snaps[j].Instrument.Expiry)
	})
}
