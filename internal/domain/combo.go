package domain

import "github.com/shopspring/decimal"

// ComboSide is the direction of a combo leg.
type ComboSide string

const (
	SideBuy  ComboSide = "BUY"
	SideSell ComboSide = "SELL"
)

// ComboLeg references one instrument inside a multi-leg order. Ratio is a
// positive multiplicity; legs within a combo reference distinct instruments.
type ComboLeg struct {
	InstrumentName string
	Ratio          int
	Side           ComboSide
}

// ComboDefinition is a venue-registered combo.
type ComboDefinition struct {
	ComboID     string
	Currency    Currency
	Settlement  Settlement
	Description string
	Legs        []ComboLeg
}

// TimeInForce is the order lifetime policy.
type TimeInForce string

const (
	TifIOC TimeInForce = "IOC"
	TifFOK TimeInForce = "FOK"
	TifGTC TimeInForce = "GTC"
)

// ComboCreatePayload is the structured combo-create request attached to an
// execution plan. ComboID is set when an existing combo should be reused.
type ComboCreatePayload struct {
	ComboID string
	Legs    []ComboLeg
	Amount  decimal.Decimal
}

// ComboExecutionPlan describes how an opportunity would be deployed. Every
// opportunity carries one; nothing is submitted unless a later layer does so.
type ComboExecutionPlan struct {
	CreatePayload ComboCreatePayload
	TimeInForce   TimeInForce
	PriceLimit    decimal.Decimal
	DryRun        bool
}
