package deribit

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"deribitarb/internal/domain"
)

// tickerDTO is the shared shape of public/ticker results and the data field of
// ticker.* subscription notifications.
type tickerDTO struct {
	InstrumentName string   `json:"instrument_name"`
	BestBidPrice   *float64 `json:"best_bid_price"`
	BestBidAmount  *float64 `json:"best_bid_amount"`
	BestAskPrice   *float64 `json:"best_ask_price"`
	BestAskAmount  *float64 `json:"best_ask_amount"`
	MarkIV         *float64 `json:"mark_iv"`
	BidIV          *float64 `json:"bid_iv"`
	AskIV          *float64 `json:"ask_iv"`
	InterestRate   *float64 `json:"interest_rate"`
	Timestamp      int64    `json:"timestamp"`
	IndexPrice     float64  `json:"index_price"`
}

func (dto tickerDTO) toQuote() domain.Quote {
	q := domain.Quote{
		MarkIV:       dto.MarkIV,
		BidIV:        dto.BidIV,
		AskIV:        dto.AskIV,
		InterestRate: dto.InterestRate,
		IndexPrice:   decimal.NewFromFloat(dto.IndexPrice),
	}
	if dto.Timestamp > 0 {
		q.Timestamp = time.UnixMilli(dto.Timestamp).UTC()
	} else {
		q.Timestamp = time.Now().UTC()
	}
	if dto.BestBidPrice != nil && dto.BestBidAmount != nil {
		q.BestBid = &domain.QuoteLevel{
			Price:  decimal.NewFromFloat(*dto.BestBidPrice),
			Amount: decimal.NewFromFloat(*dto.BestBidAmount),
		}
	}
	if dto.BestAskPrice != nil && dto.BestAskAmount != nil {
		q.BestAsk = &domain.QuoteLevel{
			Price:  decimal.NewFromFloat(*dto.BestAskPrice),
			Amount: decimal.NewFromFloat(*dto.BestAskAmount),
		}
	}
	return q
}

// notification is the envelope of subscription messages.
type notification struct {
	Method string `json:"method"`
	Params struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	} `json:"params"`
}

// ParseTickerQuote extracts the instrument name and quote from a raw
// subscription message. It returns false for non-ticker frames (heartbeats,
// subscribe acks, other channels).
func ParseTickerQuote(raw []byte) (string, domain.Quote, bool) {
	var note notification
	if err := json.Unmarshal(raw, &note); err != nil {
		return "", domain.Quote{}, false
	}
	if note.Method != "subscription" || !strings.HasPrefix(note.Params.Channel, "ticker.") {
		return "", domain.Quote{}, false
	}

	var dto tickerDTO
	if err := json.Unmarshal(note.Params.Data, &dto); err != nil {
		return "", domain.Quote{}, false
	}

	name := dto.InstrumentName
	if name == "" {
		// Fall back to the channel: ticker.{instrument}.{interval}.
		parts := strings.Split(note.Params.Channel, ".")
		if len(parts) >= 2 {
			name = parts[1]
		}
	}
	if name == "" {
		return "", domain.Quote{}, false
	}
	return name, dto.toQuote(), true
}

// TickerChannel names the streaming channel for one instrument at the raw
// update interval.
func TickerChannel(instrumentName string) string {
	return "ticker." + instrumentName + ".raw"
}
