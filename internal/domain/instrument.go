// Package domain defines the core entities of the options scanner: currencies,
// instruments, quotes, combos, fees, and strategy opportunities. All prices,
// sizes, and money are fixed-point decimals; floats appear only for implied
// volatility and informational basis-point figures.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is the underlying coin of an option.
type Currency string

const (
	CurrencyBTC Currency = "BTC"
	CurrencyETH Currency = "ETH"
)

// ParseCurrency parses "BTC"/"ETH" case-insensitively.
func ParseCurrency(s string) (Currency, error) {
	switch strings.ToUpper(s) {
	case "BTC":
		return CurrencyBTC, nil
	case "ETH":
		return CurrencyETH, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, s)
	}
}

// OptionKind distinguishes calls from puts.
type OptionKind string

const (
	OptionCall OptionKind = "C"
	OptionPut  OptionKind = "P"
)

// ParseOptionKind accepts "C"/"CALL" and "P"/"PUT" case-insensitively.
func ParseOptionKind(s string) (OptionKind, error) {
	switch strings.ToUpper(s) {
	case "C", "CALL":
		return OptionCall, nil
	case "P", "PUT":
		return OptionPut, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOptionKind, s)
	}
}

// Settlement is the settlement currency of an option. USDC options are linear
// (USD-quoted); coin-settled options are inverse (quoted in the base coin).
type Settlement string

const (
	SettlementUSDC Settlement = "USDC"
	SettlementCoin Settlement = "COIN"
)

// ParseSettlement parses "usdc"/"coin" case-insensitively.
func ParseSettlement(s string) (Settlement, error) {
	switch strings.ToLower(s) {
	case "usdc":
		return SettlementUSDC, nil
	case "coin":
		return SettlementCoin, nil
	default:
		return "", fmt.Errorf("%w: unknown settlement %q", ErrInvalidInput, s)
	}
}

// Instrument is a single listed option. The name is the identity; instruments
// are never mutated after creation.
type Instrument struct {
	Name           string
	Currency       Currency
	IsUSDCSettled  bool
	IsCombo        bool
	OptionKind     OptionKind
	Strike         decimal.Decimal
	Expiry         time.Time
	ContractSize   decimal.Decimal
	Settlement     Settlement
	TickSize       decimal.Decimal
	MinTradeAmount decimal.Decimal
}

// ParsedInstrumentName is the decomposition of a Deribit option name such as
// "BTC-25MAR23-42000-C".
type ParsedInstrumentName struct {
	Currency   Currency
	Day        int
	Month      string
	Year       int
	Strike     decimal.Decimal
	OptionKind OptionKind
}

var monthNumbers = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// ParseInstrumentName splits a name of the form CCY-dMMMyy-STRIKE-K into its
// parts. The date part carries a 1-2 digit day, a 3-letter month, and a
// 2-digit year interpreted as 20yy. Any other shape is rejected.
func ParseInstrumentName(name string) (ParsedInstrumentName, error) {
	parts := strings.Split(name, "-")
	if len(parts) != 4 {
		return ParsedInstrumentName{}, fmt.Errorf("%w: %q", ErrInvalidFormat, name)
	}
	currency, err := ParseCurrency(parts[0])
	if err != nil {
		return ParsedInstrumentName{}, err
	}
	datePart := parts[1]
	if len(datePart) < 6 {
		return ParsedInstrumentName{}, fmt.Errorf("%w: %q", ErrInvalidExpiry, datePart)
	}
	yearSuffix := datePart[len(datePart)-2:]
	month := strings.ToUpper(datePart[len(datePart)-5 : len(datePart)-2])
	dayStr := datePart[:len(datePart)-5]
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return ParsedInstrumentName{}, fmt.Errorf("%w: %q", ErrInvalidExpiry, datePart)
	}
	year, err := strconv.Atoi("20" + yearSuffix)
	if err != nil {
		return ParsedInstrumentName{}, fmt.Errorf("%w: %q", ErrInvalidExpiry, datePart)
	}
	strike, err := decimal.NewFromString(parts[2])
	if err != nil {
		return ParsedInstrumentName{}, fmt.Errorf("%w: %q", ErrInvalidStrike, parts[2])
	}
	kind, err := ParseOptionKind(parts[3])
	if err != nil {
		return ParsedInstrumentName{}, err
	}
	return ParsedInstrumentName{
		Currency:   currency,
		Day:        day,
		Month:      month,
		Year:       year,
		Strike:     strike,
		OptionKind: kind,
	}, nil
}

// ExpiryDate resolves the parsed date to the venue's settlement time of
// 08:00 UTC on the encoded day.
func (p ParsedInstrumentName) ExpiryDate() (time.Time, error) {
	month, ok := monthNumbers[p.Month]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidExpiry, p.Month)
	}
	t := time.Date(p.Year, month, p.Day, 8, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range days (e.g. 31FEB), so reject any
	// round-trip mismatch.
	if t.Day() != p.Day || t.Month() != month || t.Year() != p.Year {
		return time.Time{}, fmt.Errorf("%w: %d-%s-%d", ErrInvalidExpiry, p.Year, p.Month, p.Day)
	}
	return t, nil
}
