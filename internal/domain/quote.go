package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteLevel is a single price+amount entry at the touch of a book.
type QuoteLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// Quote is the venue's latest top-of-book view for one instrument. Bid/ask may
// be absent when one side of the book is empty. Implied-vol fields are venue
// floats, not money.
type Quote struct {
	BestBid      *QuoteLevel
	BestAsk      *QuoteLevel
	MarkIV       *float64
	BidIV        *float64
	AskIV        *float64
	InterestRate *float64
	Timestamp    time.Time
	IndexPrice   decimal.Decimal
}

// HasQuote reports whether at least one side of the book is present.
func (q Quote) HasQuote() bool {
	return q.BestBid != nil || q.BestAsk != nil
}

// Clone returns a deep copy so snapshot readers never alias store state.
func (q Quote) Clone() Quote {
	out := q
	if q.BestBid != nil {
		lvl := *q.BestBid
		out.BestBid = &lvl
	}
	if q.BestAsk != nil {
		lvl := *q.BestAsk
		out.BestAsk = &lvl
	}
	out.MarkIV = cloneFloat(q.MarkIV)
	out.BidIV = cloneFloat(q.BidIV)
	out.AskIV = cloneFloat(q.AskIV)
	out.InterestRate = cloneFloat(q.InterestRate)
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// OrderBook is a depth snapshot beyond the touch.
type OrderBook struct {
	Bids      []QuoteLevel
	Asks      []QuoteLevel
	Timestamp time.Time
}

// Clone returns a deep copy of the book.
func (b OrderBook) Clone() OrderBook {
	out := OrderBook{Timestamp: b.Timestamp}
	out.Bids = append(out.Bids, b.Bids...)
	out.Asks = append(out.Asks, b.Asks...)
	return out
}

// InstrumentSnapshot pairs an instrument with its latest quote and optional
// order book. The chain store holds exactly one per live instrument name.
type InstrumentSnapshot struct {
	Instrument Instrument
	Quote      Quote
	OrderBook  *OrderBook
}

// Clone returns a deep copy of the snapshot.
func (s InstrumentSnapshot) Clone() InstrumentSnapshot {
	out := InstrumentSnapshot{
		Instrument: s.Instrument,
		Quote:      s.Quote.Clone(),
	}
	if s.OrderBook != nil {
		book := s.OrderBook.Clone()
		out.OrderBook = &book
	}
	return out
}

// ChainSnapshot is a point-in-time fan-out of the chain store. The set of
// per-instrument values is consistent per name but not globally atomic.
type ChainSnapshot struct {
	Timestamp   time.Time
	Instruments []InstrumentSnapshot
}
