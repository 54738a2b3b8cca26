package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"deribitarb/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each instrument
// is one hash at "quote:{name}" with an optional TTL so stale entries expire
// on their own.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client. A zero ttl
// disables expiry.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(name string) string {
	return "quote:" + name
}

// SetQuote stores the latest quote for an instrument.
func (qc *QuoteCache) SetQuote(ctx context.Context, name string, q domain.Quote) error {
	key := quoteKey(name)
	fields := map[string]any{
		"ts":          strconv.FormatInt(q.Timestamp.UnixNano(), 10),
		"index_price": q.IndexPrice.String(),
	}
	if q.BestBid != nil {
		fields["bid_price"] = q.BestBid.Price.String()
		fields["bid_amount"] = q.BestBid.Amount.String()
	}
	if q.BestAsk != nil {
		fields["ask_price"] = q.BestAsk.Price.String()
		fields["ask_amount"] = q.BestAsk.Amount.String()
	}
	if q.MarkIV != nil {
		fields["mark_iv"] = strconv.FormatFloat(*q.MarkIV, 'f', -1, 64)
	}

	pipe := qc.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	if qc.ttl > 0 {
		pipe.Expire(ctx, key, qc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rediscache: set quote %s: %w", name, err)
	}
	return nil
}

// GetQuote retrieves the cached quote for an instrument. It returns
// domain.ErrNotFound when the key does not exist or has expired.
func (qc *QuoteCache) GetQuote(ctx context.Context, name string) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(name)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("rediscache: get quote %s: %w", name, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	q, err := quoteFromFields(vals)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("rediscache: decode quote %s: %w", name, err)
	}
	return q, nil
}

// GetQuotes retrieves quotes for multiple instruments using a pipeline.
// Missing or undecodable entries are silently omitted.
func (qc *QuoteCache) GetQuotes(ctx context.Context, names []string) (map[string]domain.Quote, error) {
	if len(names) == 0 {
		return map[string]domain.Quote{}, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(names))
	for _, name := range names {
		cmds[name] = pipe.HGetAll(ctx, quoteKey(name))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("rediscache: get quotes pipeline: %w", err)
	}

	result := make(map[string]domain.Quote, len(names))
	for name, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q, err := quoteFromFields(vals)
		if err != nil {
			continue
		}
		result[name] = q
	}
	return result, nil
}

func quoteFromFields(vals map[string]string) (domain.Quote, error) {
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse ts: %w", err)
	}
	indexPrice, err := decimal.NewFromString(vals["index_price"])
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse index_price: %w", err)
	}

	q := domain.Quote{
		Timestamp:  time.Unix(0, tsNano).UTC(),
		IndexPrice: indexPrice,
	}
	if level, ok, err := levelFromFields(vals, "bid_price", "bid_amount"); err != nil {
		return domain.Quote{}, err
	} else if ok {
		q.BestBid = level
	}
	if level, ok, err := levelFromFields(vals, "ask_price", "ask_amount"); err != nil {
		return domain.Quote{}, err
	} else if ok {
		q.BestAsk = level
	}
	if raw, ok := vals["mark_iv"]; ok {
		iv, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("parse mark_iv: %w", err)
		}
		q.MarkIV = &iv
	}
	return q, nil
}

func levelFromFields(vals map[string]string, priceField, amountField string) (*domain.QuoteLevel, bool, error) {
	rawPrice, ok := vals[priceField]
	if !ok {
		return nil, false, nil
	}
	price, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", priceField, err)
	}
	amount, err := decimal.NewFromString(vals[amountField])
	if err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", amountField, err)
	}
	return &domain.QuoteLevel{Price: price, Amount: amount}, true, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
