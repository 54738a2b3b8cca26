package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StrategyKind enumerates the detector families. StaleQuote is reserved: it is
// accepted in filters but no detector produces it.
type StrategyKind string

const (
	StrategyVertical  StrategyKind = "vertical"
	StrategyButterfly StrategyKind = "butterfly"
	StrategyCalendar  StrategyKind = "calendar"
	StrategyBox       StrategyKind = "box"
	StrategyStale     StrategyKind = "stale"
	StrategyJellyRoll StrategyKind = "jelly"
)

// AllStrategies lists the strategies enabled by default.
var AllStrategies = []StrategyKind{
	StrategyVertical,
	StrategyButterfly,
	StrategyCalendar,
	StrategyBox,
	StrategyJellyRoll,
}

// ParseStrategyKind resolves a filter token, accepting the short aliases used
// on the CLI ("stale", "jelly") as well as hyphenated long forms.
func ParseStrategyKind(s string) (StrategyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vertical":
		return StrategyVertical, nil
	case "butterfly":
		return StrategyButterfly, nil
	case "calendar":
		return StrategyCalendar, nil
	case "box":
		return StrategyBox, nil
	case "stale", "stalequote", "stale-quote":
		return StrategyStale, nil
	case "jelly", "jellyroll", "jelly-roll":
		return StrategyJellyRoll, nil
	default:
		return "", fmt.Errorf("%w: unknown strategy filter %q", ErrInvalidInput, s)
	}
}

// Title returns the human-readable strategy name used in rendered output.
func (k StrategyKind) Title() string {
	switch k {
	case StrategyVertical:
		return "Vertical"
	case StrategyButterfly:
		return "Butterfly"
	case StrategyCalendar:
		return "Calendar"
	case StrategyBox:
		return "Box"
	case StrategyStale:
		return "Stale"
	case StrategyJellyRoll:
		return "Jelly Roll"
	default:
		return string(k)
	}
}

// StrategyFilter is the detector allow-list.
type StrategyFilter struct {
	Include []StrategyKind
}

// Allows reports whether the given strategy is enabled.
func (f StrategyFilter) Allows(kind StrategyKind) bool {
	for _, k := range f.Include {
		if k == kind {
			return true
		}
	}
	return false
}

// LegTouch records the exact touch (price and resting quantity consumed) used
// to size one leg of an opportunity.
type LegTouch struct {
	InstrumentName string
	Side           ComboSide
	Price          decimal.Decimal
	SizeContracts  decimal.Decimal
}

// StrategyOpportunity is a sized, fee-adjusted, risk-filterable combo the
// detector suite considers deployable. Cost and payout are in the settlement's
// native unit; edges are reported both native and USD.
type StrategyOpportunity struct {
	ID             string
	Strategy       StrategyKind
	Currency       Currency
	Settlement     Settlement
	Expiries       []time.Time
	Strikes        []decimal.Decimal
	Legs           []ComboLeg
	Touches        []LegTouch
	TotalCost      decimal.Decimal
	MaxPayout      decimal.Decimal
	FeeBreakdown   FeeBreakdown
	NetEdgeNative  decimal.Decimal
	NetEdgeUSD     decimal.Decimal
	NotionalUSD    decimal.Decimal
	ReferenceIndex decimal.Decimal
	EdgeBps        float64
	SizeContracts  decimal.Decimal
	ExecutionPlan  ComboExecutionPlan
}
