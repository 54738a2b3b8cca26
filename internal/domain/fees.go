package domain

import "github.com/shopspring/decimal"

// FillRole distinguishes maker from taker fills for fee purposes.
type FillRole string

const (
	RoleMaker FillRole = "maker"
	RoleTaker FillRole = "taker"
)

// LegFee is the trade fee charged on one combo leg, after any combo discount.
type LegFee struct {
	InstrumentName string
	Side           ComboSide
	Settlement     Settlement
	ExecutionRole  FillRole
	TradeFeeNative decimal.Decimal
	TradeFeeUSD    decimal.Decimal
}

// FeeBreakdown is the full fee picture for a combo: per-leg trade fees with
// the cheaper side waived, plus an optional delivery term for held positions.
// Totals equal the sum of leg fees (post waiver) plus delivery.
type FeeBreakdown struct {
	Legs             []LegFee
	ComboDiscount    decimal.Decimal
	ComboDiscountUSD decimal.Decimal
	DeliveryFee      decimal.Decimal
	DeliveryFeeUSD   decimal.Decimal
	TotalNative      decimal.Decimal
	TotalUSD         decimal.Decimal
}
