// Package chain maintains the latest per-instrument market snapshot under
// concurrent updates from market-data producers.
package chain

import (
	"sync"
	"time"

	"deribitarb/internal/domain"
)

// freshnessHorizon is how recent a quote must be to count as fresh in Stats.
const freshnessHorizon = 10 * time.Second

// OptionChain maps instrument name to its latest snapshot. Writers take the
// exclusive lock; Snapshot and Stats take shared access and clone out, so
// readers never observe in-place mutation.
type OptionChain struct {
	mu        sync.RWMutex
	snapshots map[string]domain.InstrumentSnapshot
}

// Stats summarizes chain freshness against wall-clock now.
type Stats struct {
	InstrumentCount int
	WithQuote       int
	FreshWithin10s  int
	BidLevels       int
	AskLevels       int
}

// New returns an empty chain.
func New() *OptionChain {
	return &OptionChain{snapshots: make(map[string]domain.InstrumentSnapshot)}
}

// UpsertInstrument creates a snapshot with an empty quote when the name is
// new; otherwise it replaces only the instrument metadata, preserving the
// existing quote and order book.
func (c *OptionChain) UpsertInstrument(inst domain.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if snap, ok := c.snapshots[inst.Name]; ok {
		snap.Instrument = inst
		c.snapshots[inst.Name] = snap
		return
	}
	c.snapshots[inst.Name] = domain.InstrumentSnapshot{
		Instrument: inst,
		Quote:      domain.Quote{Timestamp: time.Now().UTC()},
	}
}

// UpdateQuote replaces the quote on an existing entry. Unknown names are
// ignored: producers upsert the instrument first.
func (c *OptionChain) UpdateQuote(name string, quote domain.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snapshots[name]
	if !ok {
		return
	}
	snap.Quote = quote
	c.snapshots[name] = snap
}

// UpdateOrderBook replaces the order book on an existing entry, with the same
// unknown-name semantics as UpdateQuote.
func (c *OptionChain) UpdateOrderBook(name string, book domain.OrderBook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snapshots[name]
	if !ok {
		return
	}
	snap.OrderBook = &book
	c.snapshots[name] = snap
}

// Snapshot clones out every instrument snapshot. Order is unspecified; the
// result is a consistent per-name view, not a globally atomic one.
func (c *OptionChain) Snapshot() domain.ChainSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := domain.ChainSnapshot{
		Timestamp:   time.Now().UTC(),
		Instruments: make([]domain.InstrumentSnapshot, 0, len(c.snapshots)),
	}
	for _, snap := range c.snapshots {
		out.Instruments = append(out.Instruments, snap.Clone())
	}
	return out
}

// Stats computes chain freshness counters against wall-clock now.
func (c *OptionChain) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now().UTC()
	stats := Stats{InstrumentCount: len(c.snapshots)}
	for _, snap := range c.snapshots {
		if snap.Quote.HasQuote() {
			stats.WithQuote++
		}
		if now.Sub(snap.Quote.Timestamp) <= freshnessHorizon {
			stats.FreshWithin10s++
		}
		if snap.Quote.BestBid != nil {
			stats.BidLevels++
		}
		if snap.Quote.BestAsk != nil {
			stats.AskLevels++
		}
	}
	return stats
}
