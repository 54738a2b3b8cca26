package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"deribitarb/internal/domain"
	"deribitarb/internal/render"
	"deribitarb/internal/venue/deribit"
)

const (
	// statsInterval is how often watch and record modes log chain freshness.
	statsInterval = 5 * time.Second
	// rescanInterval is the snapshot-and-detect cadence in watch mode.
	rescanInterval = 15 * time.Second
	// tickerConcurrency bounds the parallel ticker fetch during discovery.
	tickerConcurrency = 8
	// subscribeBatch is the number of channels sent per subscribe request.
	subscribeBatch = 200
	// segmentRotateInterval is how often record mode ships a segment to S3.
	segmentRotateInterval = time.Hour
	// pruneInterval is how often record mode enforces retention.
	pruneInterval = 24 * time.Hour
	// previewLimit is how many top opportunities get an execution preview.
	previewLimit = 3
)

// ScanMode runs one discovery-detect-render pass and previews execution for
// the top opportunities, then exits.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	instruments, err := a.discoverInstruments(ctx, deps)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}
	if err := a.refreshTickers(ctx, deps, instruments); err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}

	snapshot := deps.Chain.Snapshot()
	opportunities := deps.Suite.Scan(snapshot.Instruments)
	if len(opportunities) == 0 {
		a.logger.InfoContext(ctx, "no actionable opportunities at this snapshot")
		return nil
	}

	if err := render.PrintTable(os.Stdout, opportunities, a.settings.TableLimit); err != nil {
		return fmt.Errorf("scan mode: render table: %w", err)
	}
	if a.settings.CSVPath != "" {
		if err := render.ExportCSV(opportunities, a.settings.CSVPath); err != nil {
			return fmt.Errorf("scan mode: export csv: %w", err)
		}
		a.logger.InfoContext(ctx, "exported opportunities",
			slog.String("path", a.settings.CSVPath),
			slog.Int("count", len(opportunities)),
		)
	}

	a.previewTop(ctx, deps, opportunities)
	return nil
}

// WatchMode streams ticker updates into the chain over the websocket and
// rescans periodically until the context is cancelled.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	instruments, err := a.discoverInstruments(ctx, deps)
	if err != nil {
		return fmt.Errorf("watch mode: %w", err)
	}
	if err := a.refreshTickers(ctx, deps, instruments); err != nil {
		return fmt.Errorf("watch mode: %w", err)
	}

	ws, err := a.startTickerFeed(ctx, deps, instruments)
	if err != nil {
		return fmt.Errorf("watch mode: %w", err)
	}
	defer func() { _ = ws.Close() }()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.statsLoop(ctx, deps) })
	g.Go(func() error {
		ticker := time.NewTicker(rescanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				snapshot := deps.Chain.Snapshot()
				opportunities := deps.Suite.Scan(snapshot.Instruments)
				if len(opportunities) == 0 {
					continue
				}
				a.logger.InfoContext(ctx, "rescan found opportunities",
					slog.Int("count", len(opportunities)),
					slog.String("best", opportunities[0].NetEdgeUSD.StringFixed(2)),
				)
				if err := render.PrintTable(os.Stdout, opportunities, a.settings.TableLimit); err != nil {
					a.logger.WarnContext(ctx, "render table failed", slog.String("error", err.Error()))
				}
			}
		}
	})
	return g.Wait()
}

// RecordMode streams tickers into the chain and periodically flushes the
// snapshot to the tick store, the quote cache, and rotated S3 segments.
func (a *App) RecordMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting record mode",
		slog.Duration("flush_interval", a.settings.Record.FlushInterval.Duration),
		slog.Int("retention_days", a.settings.Record.RetentionDays),
	)
	if deps.TickStore == nil {
		return fmt.Errorf("record mode: tick store not wired")
	}

	instruments, err := a.discoverInstruments(ctx, deps)
	if err != nil {
		return fmt.Errorf("record mode: %w", err)
	}
	if err := a.refreshTickers(ctx, deps, instruments); err != nil {
		return fmt.Errorf("record mode: %w", err)
	}

	ws, err := a.startTickerFeed(ctx, deps, instruments)
	if err != nil {
		return fmt.Errorf("record mode: %w", err)
	}
	defer func() { _ = ws.Close() }()

	recorder := newRecorder(deps, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.statsLoop(ctx, deps) })
	g.Go(func() error {
		ticker := time.NewTicker(a.settings.Record.FlushInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				recorder.flush(ctx, deps.Chain.Snapshot())
			}
		}
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			ticker := time.NewTicker(segmentRotateInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					// Ship whatever is buffered before exiting.
					recorder.rotate(context.WithoutCancel(ctx))
					return ctx.Err()
				case <-ticker.C:
					recorder.rotate(ctx)
				}
			}
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				a.enforceRetention(ctx, deps)
			}
		}
	})
	return g.Wait()
}

// discoverInstruments loads the option universe for every configured currency,
// upserts it into the chain, and returns the instruments passing the
// settlement filter.
func (a *App) discoverInstruments(ctx context.Context, deps *Dependencies) ([]domain.Instrument, error) {
	var kept []domain.Instrument
	for _, currency := range a.settings.Currencies {
		a.logger.InfoContext(ctx, "loading instruments", slog.String("currency", string(currency)))
		instruments, err := deps.Venue.GetInstruments(ctx, string(currency))
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", currency, err)
		}
		for _, inst := range instruments {
			if inst.IsCombo {
				continue
			}
			deps.Chain.UpsertInstrument(inst)
			if !a.settings.AllowsSettlement(inst.Settlement) {
				continue
			}
			kept = append(kept, inst)
		}
	}
	a.logger.InfoContext(ctx, "discovery complete", slog.Int("instruments", len(kept)))
	return kept, nil
}

// refreshTickers fetches the current ticker for every instrument with bounded
// concurrency. Any single failure aborts the refresh: the detectors must not
// run over a chain that is silently missing quotes.
func (a *App) refreshTickers(ctx context.Context, deps *Dependencies, instruments []domain.Instrument) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(tickerConcurrency)
	for _, inst := range instruments {
		inst := inst
		g.Go(func() error {
			quote, err := deps.Venue.GetTicker(ctx, inst.Name)
			if err != nil {
				a.logger.ErrorContext(ctx, "failed to load ticker",
					slog.String("instrument", inst.Name),
					slog.String("error", err.Error()),
				)
				return fmt.Errorf("ticker %s: %w", inst.Name, err)
			}
			deps.Chain.UpdateQuote(inst.Name, quote)
			return nil
		})
	}
	return g.Wait()
}

// startTickerFeed connects the websocket, subscribes the ticker channels in
// batches, and routes notifications into the chain.
func (a *App) startTickerFeed(ctx context.Context, deps *Dependencies, instruments []domain.Instrument) (*deribit.WSClient, error) {
	ws := deribit.NewWSClient(a.settings.Environment, a.logger)
	ws.OnMessage(func(raw []byte) {
		name, quote, ok := deribit.ParseTickerQuote(raw)
		if !ok {
			return
		}
		deps.Chain.UpdateQuote(name, quote)
	})
	if err := ws.Connect(ctx); err != nil {
		return nil, fmt.Errorf("ticker feed: connect: %w", err)
	}

	channels := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		channels = append(channels, deribit.TickerChannel(inst.Name))
	}
	for start := 0; start < len(channels); start += subscribeBatch {
		end := min(start+subscribeBatch, len(channels))
		if err := ws.Subscribe(channels[start:end]); err != nil {
			_ = ws.Close()
			return nil, fmt.Errorf("ticker feed: subscribe: %w", err)
		}
	}
	a.logger.InfoContext(ctx, "ticker feed started", slog.Int("channels", len(channels)))
	return ws, nil
}

// statsLoop logs chain freshness counters at a fixed cadence.
func (a *App) statsLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats := deps.Chain.Stats()
			a.logger.InfoContext(ctx, "chain stats",
				slog.Int("tot", stats.InstrumentCount),
				slog.Int("quotes", stats.WithQuote),
				slog.Int("fresh", stats.FreshWithin10s),
				slog.Int("bid", stats.BidLevels),
				slog.Int("ask", stats.AskLevels),
			)
		}
	}
}

// previewTop runs the top opportunities through the risk gate and the planner,
// logging each preview. Nothing is submitted.
func (a *App) previewTop(ctx context.Context, deps *Dependencies, opportunities []domain.StrategyOpportunity) {
	for i, opp := range opportunities {
		if i >= previewLimit {
			break
		}
		if !deps.Risk.Approve(opp) {
			continue
		}
		report, err := deps.Planner.Plan(ctx, opp)
		if err != nil {
			a.logger.ErrorContext(ctx, "failed to prepare execution plan",
				slog.String("opportunity", opp.ID),
				slog.String("error", err.Error()),
			)
		} else {
			a.logger.InfoContext(ctx, "generated execution plan",
				slog.String("combo", report.ComboID),
				slog.Bool("submitted", report.Submitted),
			)
		}
		deps.Risk.Release()
	}
}

// enforceRetention prunes the tick store and the segment archive.
func (a *App) enforceRetention(ctx context.Context, deps *Dependencies) {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.settings.Record.RetentionDays)
	removed, err := deps.TickStore.Prune(ctx, cutoff)
	if err != nil {
		a.logger.WarnContext(ctx, "tick prune failed", slog.String("error", err.Error()))
	} else if removed > 0 {
		a.logger.InfoContext(ctx, "pruned ticks", slog.Int64("removed", removed))
	}
	if deps.Archiver != nil {
		deleted, err := deps.Archiver.PruneSegments(ctx, "", cutoff)
		if err != nil {
			a.logger.WarnContext(ctx, "segment prune failed", slog.String("error", err.Error()))
		} else if deleted > 0 {
			a.logger.InfoContext(ctx, "pruned segments", slog.Int("removed", deleted))
		}
	}
}

// recorder flushes chain snapshots to storage and accumulates the current
// segment for archival. The flush and rotate loops run on separate goroutines,
// so the segment buffer is mutex-guarded.
type recorder struct {
	deps   *Dependencies
	logger *slog.Logger
	lastTs map[string]time.Time

	mu      sync.Mutex
	segment []byte
}

func newRecorder(deps *Dependencies, logger *slog.Logger) *recorder {
	return &recorder{
		deps:   deps,
		logger: logger.With(slog.String("component", "recorder")),
		lastTs: make(map[string]time.Time),
	}
}

// segmentRecord is the JSON-lines shape written to archived segments.
type segmentRecord struct {
	Instrument string   `json:"instrument"`
	Timestamp  int64    `json:"ts_ms"`
	BidPrice   *string  `json:"bid_price,omitempty"`
	BidAmount  *string  `json:"bid_amount,omitempty"`
	AskPrice   *string  `json:"ask_price,omitempty"`
	AskAmount  *string  `json:"ask_amount,omitempty"`
	MarkIV     *float64 `json:"mark_iv,omitempty"`
	IndexPrice string   `json:"index_price"`
}

func (r *recorder) flush(ctx context.Context, snapshot domain.ChainSnapshot) {
	var ticks []domain.Tick
	for _, snap := range snapshot.Instruments {
		if !snap.Quote.HasQuote() {
			continue
		}
		// Skip instruments whose quote has not moved since the last flush.
		if prev, ok := r.lastTs[snap.Instrument.Name]; ok && !snap.Quote.Timestamp.After(prev) {
			continue
		}
		r.lastTs[snap.Instrument.Name] = snap.Quote.Timestamp
		ticks = append(ticks, domain.TickFromSnapshot(snap))

		if r.deps.QuoteCache != nil {
			if err := r.deps.QuoteCache.SetQuote(ctx, snap.Instrument.Name, snap.Quote); err != nil {
				r.logger.WarnContext(ctx, "quote cache set failed",
					slog.String("instrument", snap.Instrument.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	if len(ticks) == 0 {
		return
	}

	if err := r.deps.TickStore.InsertBatch(ctx, ticks); err != nil {
		r.logger.ErrorContext(ctx, "tick insert failed",
			slog.Int("ticks", len(ticks)),
			slog.String("error", err.Error()),
		)
		return
	}
	r.appendSegment(ticks)
	r.logger.DebugContext(ctx, "flushed ticks", slog.Int("ticks", len(ticks)))
}

func (r *recorder) appendSegment(ticks []domain.Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range ticks {
		rec := segmentRecord{
			Instrument: t.InstrumentName,
			Timestamp:  t.Timestamp.UnixMilli(),
			MarkIV:     t.MarkIV,
			IndexPrice: t.IndexPrice.String(),
		}
		if t.BidPrice != nil {
			s := t.BidPrice.String()
			rec.BidPrice = &s
		}
		if t.BidAmount != nil {
			s := t.BidAmount.String()
			rec.BidAmount = &s
		}
		if t.AskPrice != nil {
			s := t.AskPrice.String()
			rec.AskPrice = &s
		}
		if t.AskAmount != nil {
			s := t.AskAmount.String()
			rec.AskAmount = &s
		}
		line, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		r.segment = append(r.segment, line...)
		r.segment = append(r.segment, '\n')
	}
}

// rotate uploads the buffered segment and starts a new one. An upload failure
// keeps the buffer for the next rotation.
func (r *recorder) rotate(ctx context.Context) {
	if r.deps.Archiver == nil {
		return
	}
	r.mu.Lock()
	segment := r.segment
	r.segment = nil
	r.mu.Unlock()
	if len(segment) == 0 {
		return
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("%s/ticks-%d.jsonl", now.Format("2006/01/02"), now.Unix())
	stored, err := r.deps.Archiver.ArchiveSegment(ctx, key, segment)
	if err != nil {
		r.logger.WarnContext(ctx, "segment archive failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		// Put the data back so the next rotation retries.
		r.mu.Lock()
		r.segment = append(segment, r.segment...)
		r.mu.Unlock()
		return
	}
	r.logger.InfoContext(ctx, "archived segment",
		slog.String("key", stored),
		slog.Int("bytes", len(segment)),
	)
}
