package rediscache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteKey(t *testing.T) {
	assert.Equal(t, "quote:BTC-25DEC24-40000-C", quoteKey("BTC-25DEC24-40000-C"))
}

func TestQuoteFromFields(t *testing.T) {
	ts := time.Date(2024, time.December, 25, 7, 59, 0, 0, time.UTC)
	q, err := quoteFromFields(map[string]string{
		"ts":          "1735113540000000000",
		"index_price": "40000",
		"bid_price":   "5800",
		"bid_amount":  "10",
		"mark_iv":     "62.4",
	})
	require.NoError(t, err)

	assert.Equal(t, ts, q.Timestamp)
	assert.Equal(t, "40000", q.IndexPrice.String())
	require.NotNil(t, q.BestBid)
	assert.Equal(t, "5800", q.BestBid.Price.String())
	assert.Nil(t, q.BestAsk)
	require.NotNil(t, q.MarkIV)
	assert.Equal(t, 62.4, *q.MarkIV)
}

func TestQuoteFromFieldsErrors(t *testing.T) {
	_, err := quoteFromFields(map[string]string{"ts": "nope", "index_price": "40000"})
	require.Error(t, err)

	_, err = quoteFromFields(map[string]string{"ts": "0", "index_price": "forty"})
	require.Error(t, err)

	_, err = quoteFromFields(map[string]string{
		"ts": "0", "index_price": "40000", "bid_price": "5800", "bid_amount": "many",
	})
	require.Error(t, err)
}
