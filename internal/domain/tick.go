package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one persisted top-of-book observation for an instrument. Ticks are
// what the storage toolkit writes, queries, and archives.
type Tick struct {
	InstrumentName string
	Timestamp      time.Time
	BidPrice       *decimal.Decimal
	BidAmount      *decimal.Decimal
	AskPrice       *decimal.Decimal
	AskAmount      *decimal.Decimal
	MarkIV         *float64
	IndexPrice     decimal.Decimal
}

// TickFromSnapshot flattens a chain snapshot entry into a storable tick.
func TickFromSnapshot(s InstrumentSnapshot) Tick {
	t := Tick{
		InstrumentName: s.Instrument.Name,
		Timestamp:      s.Quote.Timestamp,
		MarkIV:         s.Quote.MarkIV,
		IndexPrice:     s.Quote.IndexPrice,
	}
	if s.Quote.BestBid != nil {
		p, a := s.Quote.BestBid.Price, s.Quote.BestBid.Amount
		t.BidPrice, t.BidAmount = &p, &a
	}
	if s.Quote.BestAsk != nil {
		p, a := s.Quote.BestAsk.Price, s.Quote.BestAsk.Amount
		t.AskPrice, t.AskAmount = &p, &a
	}
	return t
}

// TickRange filters tick queries.
type TickRange struct {
	Since time.Time
	Until time.Time
	Limit int
}

// TickStore persists options ticks.
type TickStore interface {
	InsertBatch(ctx context.Context, ticks []Tick) error
	ListByInstrument(ctx context.Context, name string, rng TickRange) ([]Tick, error)
	LastTimestamp(ctx context.Context, name string) (time.Time, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// QuoteCache provides fast access to the latest quote per instrument.
type QuoteCache interface {
	SetQuote(ctx context.Context, name string, q Quote) error
	GetQuote(ctx context.Context, name string) (Quote, error)
	GetQuotes(ctx context.Context, names []string) (map[string]Quote, error)
}

// SegmentArchiver uploads rotated tick segments to cold storage.
type SegmentArchiver interface {
	ArchiveSegment(ctx context.Context, key string, data []byte) (string, error)
	ListSegments(ctx context.Context, prefix string) ([]string, error)
	PruneSegments(ctx context.Context, prefix string, olderThan time.Time) (int, error)
}
