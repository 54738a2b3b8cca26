package risk

import (
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"deribitarb/internal/domain"
)

func testManager(maxCombos int, maxTicket int64) *Manager {
	return New(Limits{
		MaxConcurrentCombos: maxCombos,
		MaxTicketUSD:        decimal.NewFromInt(maxTicket),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func opp(notional int64) domain.StrategyOpportunity {
	return domain.StrategyOpportunity{
		Strategy:    domain.StrategyVertical,
		NotionalUSD: decimal.NewFromInt(notional),
	}
}

func TestApproveReservesSlot(t *testing.T) {
	m := testManager(2, 20_000)

	assert.True(t, m.Approve(opp(10_000)))
	assert.Equal(t, 1, m.LiveCombos())
	assert.True(t, m.Approve(opp(10_000)))
	assert.Equal(t, 2, m.LiveCombos())
}

func TestApproveRefusesAtComboLimit(t *testing.T) {
	m := testManager(1, 20_000)

	assert.True(t, m.Approve(opp(10_000)))
	assert.False(t, m.Approve(opp(10_000)))

	m.Release()
	assert.True(t, m.Approve(opp(10_000)))
}

func TestApproveRefusesOverTicketCap(t *testing.T) {
	m := testManager(4, 20_000)

	assert.False(t, m.Approve(opp(20_001)))
	assert.Equal(t, 0, m.LiveCombos())

	// Exactly at the cap is allowed.
	assert.True(t, m.Approve(opp(20_000)))
}

func TestApproveRefusesOnNegativeEWMA(t *testing.T) {
	m := testManager(4, 20_000)

	m.RecordPnL(decimal.NewFromInt(-100))
	assert.False(t, m.Approve(opp(1_000)))

	// A large enough winning sample flips the EWMA positive again.
	m.RecordPnL(decimal.NewFromInt(1_000))
	assert.True(t, m.Approve(opp(1_000)))
}

func TestRecordPnLEWMA(t *testing.T) {
	m := testManager(4, 20_000)

	m.RecordPnL(decimal.NewFromInt(100))
	m.RecordPnL(decimal.NewFromInt(-50))

	// 0.8 x (0.2 x 100) + 0.2 x (-50) = 6.
	m.mu.Lock()
	got := m.ewmaPnL
	m.mu.Unlock()
	assert.True(t, got.Equal(decimal.NewFromInt(6)), got.String())
}

func TestReleaseClampsAtZero(t *testing.T) {
	m := testManager(1, 20_000)

	m.Release()
	m.Release()
	assert.Equal(t, 0, m.LiveCombos())

	assert.True(t, m.Approve(opp(1)))
	assert.Equal(t, 1, m.LiveCombos())
}
