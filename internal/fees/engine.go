// Package fees implements Deribit's options fee schedule: per-leg trade fees
// with a settlement-dependent cap, the combo discount that waives the cheaper
// side of a multi-leg order, and the delivery fee charged on held positions.
package fees

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"deribitarb/internal/domain"
)

var (
	tradeFeeRate    = decimal.RequireFromString("0.0003")
	tradeFeeCapPct  = decimal.RequireFromString("0.125")
	deliveryFeeRate = decimal.RequireFromString("0.00015")
)

// LegInput carries everything the engine needs to price one leg.
type LegInput struct {
	InstrumentName string
	Side           domain.ComboSide
	Settlement     domain.Settlement
	Role           domain.FillRole
	OptionPrice    decimal.Decimal
	IndexPrice     decimal.Decimal
	Contracts      decimal.Decimal
	ContractSize   decimal.Decimal
	Expiry         time.Time
	IsDaily        bool
}

// Context is one fee computation request. All legs must share a settlement.
type Context struct {
	Legs         []LegInput
	HoldToExpiry bool
}

// Engine is stateless; the zero value is ready to use.
type Engine struct{}

// New returns a fee engine.
func New() Engine {
	return Engine{}
}

// Compute prices every leg, applies the combo discount (the side with the
// smaller-or-equal USD total is waived, ties waiving Buy), and adds delivery
// fees for held non-daily legs. It returns domain.ErrInvalidInput for an empty
// leg list or mixed settlements.
func (Engine) Compute(ctx Context) (domain.FeeBreakdown, error) {
	if len(ctx.Legs) == 0 {
		return domain.FeeBreakdown{}, fmt.Errorf("fees: %w: no legs provided", domain.ErrInvalidInput)
	}
	settlement := ctx.Legs[0].Settlement
	for _, leg := range ctx.Legs[1:] {
		if leg.Settlement != settlement {
			return domain.FeeBreakdown{}, fmt.Errorf("fees: %w: mixed settlement combos not supported", domain.ErrInvalidInput)
		}
	}

	legFees := make([]domain.LegFee, len(ctx.Legs))
	for i, leg := range ctx.Legs {
		legFees[i] = tradeFee(leg)
	}

	var buyNative, sellNative, buyUSD, sellUSD decimal.Decimal
	for _, fee := range legFees {
		switch fee.Side {
		case domain.SideBuy:
			buyNative = buyNative.Add(fee.TradeFeeNative)
			buyUSD = buyUSD.Add(fee.TradeFeeUSD)
		case domain.SideSell:
			sellNative = sellNative.Add(fee.TradeFeeNative)
			sellUSD = sellUSD.Add(fee.TradeFeeUSD)
		}
	}

	var discountNative, discountUSD decimal.Decimal
	waived := domain.SideBuy
	if buyUSD.LessThanOrEqual(sellUSD) {
		discountNative, discountUSD = buyNative, buyUSD
	} else {
		waived = domain.SideSell
		discountNative, discountUSD = sellNative, sellUSD
	}
	for i := range legFees {
		if legFees[i].Side == waived {
			legFees[i].TradeFeeNative = decimal.Zero
			legFees[i].TradeFeeUSD = decimal.Zero
		}
	}

	var deliveryNative, deliveryUSD decimal.Decimal
	if ctx.HoldToExpiry {
		for _, leg := range ctx.Legs {
			if leg.IsDaily {
				continue
			}
			feeUSD, feeNative := deliveryFee(leg)
			deliveryUSD = deliveryUSD.Add(feeUSD)
			deliveryNative = deliveryNative.Add(feeNative)
		}
	}

	totalNative := deliveryNative
	totalUSD := deliveryUSD
	for _, fee := range legFees {
		totalNative = totalNative.Add(fee.TradeFeeNative)
		totalUSD = totalUSD.Add(fee.TradeFeeUSD)
	}

	return domain.FeeBreakdown{
		Legs:             legFees,
		ComboDiscount:    discountNative,
		ComboDiscountUSD: discountUSD,
		DeliveryFee:      deliveryNative,
		DeliveryFeeUSD:   deliveryUSD,
		TotalNative:      totalNative,
		TotalUSD:         totalUSD,
	}, nil
}

// tradeFee prices a single leg. Per contract the fee is capped at 12.5% of the
// option price; coin-settled legs pay in base coin, USDC legs in USD.
func tradeFee(leg LegInput) domain.LegFee {
	fee := domain.LegFee{
		InstrumentName: leg.InstrumentName,
		Side:           leg.Side,
		Settlement:     leg.Settlement,
		ExecutionRole:  leg.Role,
	}
	contracts := leg.Contracts.Abs()
	if contracts.IsZero() {
		return fee
	}

	cap := leg.OptionPrice.Mul(tradeFeeCapPct)
	switch leg.Settlement {
	case domain.SettlementCoin:
		perContract := decimal.Min(tradeFeeRate, cap)
		fee.TradeFeeNative = perContract.Mul(contracts).Mul(leg.ContractSize)
		fee.TradeFeeUSD = fee.TradeFeeNative.Mul(leg.IndexPrice)
	case domain.SettlementUSDC:
		perContract := decimal.Min(leg.IndexPrice.Mul(tradeFeeRate), cap)
		fee.TradeFeeNative = perContract.Mul(contracts).Mul(leg.ContractSize)
		fee.TradeFeeUSD = fee.TradeFeeNative
	}
	return fee
}

// deliveryFee prices the settlement-at-expiry fee for one held leg:
// min(0.015% of notional, 12.5% of option value), reported in USD and in the
// leg's native unit. A zero index collapses the coin-native part to zero.
func deliveryFee(leg LegInput) (feeUSD, feeNative decimal.Decimal) {
	qty := leg.Contracts.Abs().Mul(leg.ContractSize)
	notionalUSD := leg.IndexPrice.Mul(qty)
	optionValueUSD := leg.OptionPrice.Mul(qty)
	if leg.Settlement == domain.SettlementCoin {
		optionValueUSD = optionValueUSD.Mul(leg.IndexPrice)
	}
	feeUSD = decimal.Min(notionalUSD.Mul(deliveryFeeRate), optionValueUSD.Mul(tradeFeeCapPct))
	switch {
	case leg.Settlement == domain.SettlementUSDC:
		feeNative = feeUSD
	case leg.IndexPrice.IsZero():
		feeNative = decimal.Zero
	default:
		feeNative = feeUSD.Div(leg.IndexPrice)
	}
	return feeUSD, feeNative
}

// IsDailyOption reports whether an instrument is a daily: its name carries the
// "-D" marker or it expires within 24 hours.
func IsDailyOption(name string, expiry time.Time) bool {
	if strings.Contains(name, "-D") {
		return true
	}
	return time.Until(expiry) <= 24*time.Hour
}
