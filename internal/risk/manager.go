// Package risk gates combo deployment behind concurrency, ticket, and
// realized-PnL limits shared by every execution path.
package risk

import (
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"deribitarb/internal/domain"
)

// Limits are the deployment caps the manager enforces.
type Limits struct {
	MaxConcurrentCombos int
	MaxTicketUSD        decimal.Decimal
}

// ewmaAlpha is the smoothing factor for the realized-PnL tracker.
var ewmaAlpha = decimal.RequireFromString("0.2")

// Manager tracks live combos and a PnL EWMA under one lock. The zero value is
// not usable; construct with New.
type Manager struct {
	limits Limits
	logger *slog.Logger

	mu         sync.Mutex
	liveCombos int
	ewmaPnL    decimal.Decimal
}

// New returns a manager with no live combos and a flat PnL history.
func New(limits Limits, logger *slog.Logger) *Manager {
	return &Manager{
		limits: limits,
		logger: logger.With("component", "risk"),
	}
}

// Approve admits an opportunity for deployment, reserving a combo slot on
// success. It refuses when the concurrency limit is reached, the notional
// exceeds the ticket cap, or the PnL EWMA has gone negative.
func (m *Manager) Approve(opp domain.StrategyOpportunity) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.liveCombos >= m.limits.MaxConcurrentCombos {
		m.logger.Warn("concurrent combo limit reached",
			"current", m.liveCombos,
			"max", m.limits.MaxConcurrentCombos)
		return false
	}
	if opp.NotionalUSD.GreaterThan(m.limits.MaxTicketUSD) {
		m.logger.Warn("ticket exceeds cap",
			"notional_usd", opp.NotionalUSD.String(),
			"max_ticket_usd", m.limits.MaxTicketUSD.String())
		return false
	}
	if m.ewmaPnL.IsNegative() {
		m.logger.Warn("recent pnl negative, pausing deployment",
			"ewma_pnl_usd", m.ewmaPnL.String())
		return false
	}

	m.liveCombos++
	m.logger.Info("combo approved",
		"strategy", string(opp.Strategy),
		"live_combos", m.liveCombos)
	return true
}

// Release returns a combo slot. Extra releases are ignored so callers can
// release unconditionally on teardown.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.liveCombos > 0 {
		m.liveCombos--
	}
}

// RecordPnL folds a realized PnL sample into the EWMA.
func (m *Manager) RecordPnL(pnlUSD decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ewmaPnL = decimal.NewFromInt(1).Sub(ewmaAlpha).Mul(m.ewmaPnL).Add(ewmaAlpha.Mul(pnlUSD))
}

// LiveCombos reports the number of reserved slots, for stats logging.
func (m *Manager) LiveCombos() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveCombos
}
