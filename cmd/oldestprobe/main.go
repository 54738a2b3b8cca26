// Command oldestprobe finds the oldest expired ETH option on Deribit that
// still has recorded trades. It queries both the history host and the main
// host, deduplicates the instrument universe, and probes instruments in
// creation order until one returns trades.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"
)

var apiHosts = []string{
	"https://history.deribit.com/api/v2",
	"https://www.deribit.com/api/v2",
}

const (
	instrumentsPath = "/public/get_instruments"
	tradesPath      = "/public/get_last_trades_by_instrument_and_time"
	tradeCount      = 100
	printedTrades   = 10
)

type instrument struct {
	Name             string   `json:"instrument_name"`
	CreationMs       int64    `json:"creation_timestamp"`
	ExpirationMs     *int64   `json:"expiration_timestamp"`
	Strike           *float64 `json:"strike"`
	OptionType       *string  `json:"option_type"`
	SettlementPeriod *string  `json:"settlement_period"`
	BaseCurrency     *string  `json:"base_currency"`
	QuoteCurrency    *string  `json:"quote_currency"`
	UnderlyingIndex  *string  `json:"underlying_index"`
}

type trade struct {
	TradeID   *string  `json:"trade_id"`
	Direction *string  `json:"direction"`
	Price     *float64 `json:"price"`
	Amount    *float64 `json:"amount"`
	Timestamp *int64   `json:"timestamp"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("probe failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	client := &http.Client{Timeout: 30 * time.Second}

	instruments, err := fetchAllInstruments(ctx, client, logger)
	if err != nil {
		return err
	}
	if len(instruments) == 0 {
		return fmt.Errorf("no expired ETH option instruments found from either host")
	}
	sort.Slice(instruments, func(i, j int) bool {
		return instruments[i].CreationMs < instruments[j].CreationMs
	})

	fmt.Printf("Total unique expired ETH options discovered: %d\n", len(instruments))

	probed := 0
	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Only log the first few probes to keep output readable.
		if probed < 3 {
			fmt.Printf("Probing %s (created %s)\n", inst.Name, formatMs(inst.CreationMs))
			probed++
			if probed == 3 {
				fmt.Println("Further probes suppressed until trades are found...")
			}
		}

		trades := fetchOldestTrades(ctx, client, logger, inst.Name)
		if len(trades) == 0 {
			continue
		}

		printSummary(inst, trades)
		return nil
	}

	fmt.Println("Unable to locate any ETH option with recorded trades via the public API.")
	return nil
}

// fetchAllInstruments merges the expired ETH option universe from every host,
// keeping the earliest creation timestamp per name.
func fetchAllInstruments(ctx context.Context, client *http.Client, logger *slog.Logger) ([]instrument, error) {
	byName := make(map[string]instrument)
	for _, host := range apiHosts {
		var result []instrument
		err := getJSON(ctx, client, host, instrumentsPath, url.Values{
			"currency": {"ETH"},
			"kind":     {"option"},
			"expired":  {"true"},
		}, &result)
		if err != nil {
			logger.Warn("instrument fetch failed",
				slog.String("host", host),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Info("fetched instruments", slog.String("host", host), slog.Int("count", len(result)))
		for _, inst := range result {
			if existing, ok := byName[inst.Name]; ok {
				if existing.CreationMs <= inst.CreationMs {
					continue
				}
			}
			byName[inst.Name] = inst
		}
	}

	out := make([]instrument, 0, len(byName))
	for _, inst := range byName {
		out = append(out, inst)
	}
	return out, nil
}

// fetchOldestTrades tries every host and returns the first non-empty batch of
// oldest trades for the instrument.
func fetchOldestTrades(ctx context.Context, client *http.Client, logger *slog.Logger, name string) []trade {
	for _, host := range apiHosts {
		var result struct {
			Trades []trade `json:"trades"`
		}
		err := getJSON(ctx, client, host, tradesPath, url.Values{
			"instrument_name": {name},
			"start_timestamp": {"0"},
			"count":           {fmt.Sprint(tradeCount)},
			"include_oldest":  {"true"},
		}, &result)
		if err != nil {
			logger.Warn("trade fetch failed",
				slog.String("host", host),
				slog.String("instrument", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(result.Trades) > 0 {
			return result.Trades
		}
	}
	return nil
}

// getJSON issues a GET and decodes the JSON-RPC "result" member into out.
func getJSON(ctx context.Context, client *http.Client, host, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func printSummary(inst instrument, trades []trade) {
	fmt.Println()
	fmt.Println("Earliest ETH option with recorded trades:")
	fmt.Printf("Instrument:  %s\n", inst.Name)
	fmt.Printf("Creation:    %s (%d ms since epoch)\n", formatMs(inst.CreationMs), inst.CreationMs)
	fmt.Printf("Expiration:  %s\n", formatOptMs(inst.ExpirationMs))
	fmt.Printf("Strike:      %s\n", formatOptFloat(inst.Strike))
	fmt.Printf("Option Type: %s\n", formatOptStr(inst.OptionType))
	fmt.Printf("Settlement:  %s\n", formatOptStr(inst.SettlementPeriod))
	fmt.Printf("Quote/Base:  %s/%s\n", formatOptStr(inst.QuoteCurrency), formatOptStr(inst.BaseCurrency))
	fmt.Printf("Underlying:  %s\n", formatOptStr(inst.UnderlyingIndex))

	fmt.Println()
	fmt.Println("Oldest trades:")
	for i, t := range trades {
		if i >= printedTrades {
			break
		}
		id := "<unknown>"
		if t.TradeID != nil {
			id = *t.TradeID
		}
		ts := "unknown"
		if t.Timestamp != nil {
			ts = formatMs(*t.Timestamp)
		}
		fmt.Printf("- %s | %s | price %s | amount %s | %s\n",
			id, ts, formatOptFloat(t.Price), formatOptFloat(t.Amount), formatOptStr(t.Direction))
	}
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func formatOptMs(ms *int64) string {
	if ms == nil {
		return "unknown"
	}
	return formatMs(*ms)
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}

func formatOptStr(s *string) string {
	if s == nil {
		return "unknown"
	}
	return *s
}
