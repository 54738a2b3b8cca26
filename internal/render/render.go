// Package render writes scan results for humans (aligned table on a writer)
// and for spreadsheets (CSV export).
package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"deribitarb/internal/domain"
)

// PrintTable writes the top opportunities as an aligned table.
func PrintTable(w io.Writer, opportunities []domain.StrategyOpportunity, limit int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Strategy\tCcy\tSettlement\tExpiry\tStrikes\tLeg Count\tLegs\tTouch Prices\tNotional ($)\tNet Edge ($)\tFees ($)\tEdge bps")

	if limit > len(opportunities) {
		limit = len(opportunities)
	}
	for _, opp := range opportunities[:limit] {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%.2f\n",
			opp.Strategy.Title(),
			opp.Currency,
			opp.Settlement,
			formatExpiries(opp, "2006-01-02"),
			formatStrikes(opp),
			len(opp.Legs),
			formatLegs(opp),
			formatTouches(opp, true),
			formatDecimal(opp.NotionalUSD),
			formatDecimal(opp.NetEdgeUSD),
			formatDecimal(opp.FeeBreakdown.TotalUSD),
			opp.EdgeBps,
		)
	}
	return tw.Flush()
}

// ExportCSV writes every opportunity to a CSV file at path.
func ExportCSV(opportunities []domain.StrategyOpportunity, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("render: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"strategy", "currency", "settlement", "expiry", "strikes", "leg_count",
		"touch_prices", "net_edge_usd", "notional_usd", "fees_usd", "size_contracts",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("render: write csv header: %w", err)
	}

	for _, opp := range opportunities {
		record := []string{
			opp.Strategy.Title(),
			string(opp.Currency),
			string(opp.Settlement),
			formatExpiries(opp, "2006-01-02T15:04:05Z07:00"),
			formatStrikes(opp),
			strconv.Itoa(len(opp.Legs)),
			formatTouches(opp, false),
			normalize(opp.NetEdgeUSD),
			normalize(opp.NotionalUSD),
			normalize(opp.FeeBreakdown.TotalUSD),
			normalize(opp.SizeContracts),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("render: write csv record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("render: flush csv: %w", err)
	}
	return nil
}

func formatExpiries(opp domain.StrategyOpportunity, layout string) string {
	parts := make([]string, 0, len(opp.Expiries))
	for _, e := range opp.Expiries {
		parts = append(parts, e.UTC().Format(layout))
	}
	return strings.Join(parts, "/")
}

func formatStrikes(opp domain.StrategyOpportunity) string {
	parts := make([]string, 0, len(opp.Strikes))
	for _, s := range opp.Strikes {
		parts = append(parts, normalize(s))
	}
	return strings.Join(parts, "/")
}

func formatLegs(opp domain.StrategyOpportunity) string {
	parts := make([]string, 0, len(opp.Legs))
	for _, leg := range opp.Legs {
		parts = append(parts, fmt.Sprintf("%s:%s@%d", leg.Side, leg.InstrumentName, leg.Ratio))
	}
	return strings.Join(parts, " ")
}

func formatTouches(opp domain.StrategyOpportunity, withSize bool) string {
	if len(opp.Touches) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(opp.Touches))
	for _, touch := range opp.Touches {
		if withSize {
			parts = append(parts, fmt.Sprintf("%s:%s@%s (%sc)",
				touch.Side, touch.InstrumentName,
				formatDecimal(touch.Price), formatDecimal(touch.SizeContracts)))
		} else {
			parts = append(parts, fmt.Sprintf("%s:%s@%s",
				touch.Side, touch.InstrumentName, normalize(touch.Price)))
		}
	}
	return strings.Join(parts, " ")
}

var smallValue = decimal.RequireFromString("0.01")

// formatDecimal keeps four places for sub-cent values, two otherwise.
func formatDecimal(v decimal.Decimal) string {
	if v.Abs().LessThan(smallValue) {
		return v.StringFixed(4)
	}
	return v.StringFixed(2)
}

func normalize(v decimal.Decimal) string {
	return v.String()
}
