// Package exec turns a detected opportunity into a registered venue combo and
// a priced preview. Order submission stays behind dry-run.
package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"deribitarb/internal/domain"
)

// ComboAPI is the slice of the venue client the planner needs.
type ComboAPI interface {
	CreateCombo(ctx context.Context, name string, legs []domain.ComboLeg, isUSDC bool) (string, error)
	GetLegPrices(ctx context.Context, comboID string, amount decimal.Decimal) (json.RawMessage, error)
}

// Report is the outcome of planning one opportunity. Submitted stays false
// until live submission exists.
type Report struct {
	ComboID   string          `json:"combo_id,omitempty"`
	Preview   json.RawMessage `json:"preview,omitempty"`
	Submitted bool            `json:"submitted"`
}

// Config holds the planner's gates.
type Config struct {
	MinDepthContracts int
	DryRun            bool
}

// Planner registers combos and fetches leg-price previews for approved
// opportunities.
type Planner struct {
	api    ComboAPI
	cfg    Config
	logger *slog.Logger
}

// New returns a planner over the given combo API.
func New(api ComboAPI, cfg Config, logger *slog.Logger) *Planner {
	return &Planner{
		api:    api,
		cfg:    cfg,
		logger: logger.With("component", "exec"),
	}
}

// Plan ensures the opportunity's combo exists on the venue and previews its
// leg prices. Sizes below the minimum depth are rejected with ErrInvalidInput.
func (p *Planner) Plan(ctx context.Context, opp domain.StrategyOpportunity) (Report, error) {
	if opp.SizeContracts.LessThan(decimal.NewFromInt(int64(p.cfg.MinDepthContracts))) {
		return Report{}, fmt.Errorf("exec: %w: size %s below minimum depth %d",
			domain.ErrInvalidInput, opp.SizeContracts.String(), p.cfg.MinDepthContracts)
	}

	comboID, err := p.ensureCombo(ctx, opp)
	if err != nil {
		return Report{}, err
	}

	preview, err := p.api.GetLegPrices(ctx, comboID, opp.SizeContracts)
	if err != nil {
		return Report{}, fmt.Errorf("exec: preview leg prices: %w", err)
	}

	if p.cfg.DryRun {
		p.logger.Info("dry run only, not submitting order", "combo_id", comboID)
		return Report{ComboID: comboID, Preview: preview, Submitted: false}, nil
	}

	p.logger.Warn("auto-submission not implemented, dry-run recommended",
		"strategy", string(opp.Strategy))
	return Report{ComboID: comboID, Preview: preview, Submitted: false}, nil
}

// ensureCombo reuses the combo already referenced by the plan or registers a
// new one named {strategy}-{currency}-{yyyymmdd|NA}-{legs}.
func (p *Planner) ensureCombo(ctx context.Context, opp domain.StrategyOpportunity) (string, error) {
	if id := opp.ExecutionPlan.CreatePayload.ComboID; id != "" {
		return id, nil
	}

	expiry := "NA"
	if len(opp.Expiries) > 0 {
		expiry = opp.Expiries[0].UTC().Format("20060102")
	}
	name := fmt.Sprintf("%s-%s-%s-%d", opp.Strategy, opp.Currency, expiry, len(opp.Legs))

	comboID, err := p.api.CreateCombo(ctx, name, opp.Legs, opp.Settlement == domain.SettlementUSDC)
	if err != nil {
		return "", fmt.Errorf("exec: create combo %q: %w", name, err)
	}
	return comboID, nil
}
