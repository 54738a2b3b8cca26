package deribit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"deribitarb/internal/domain"
)

const jsonRPCVersion = "2.0"

// tokenRefreshMargin is subtracted from the token lifetime so a request never
// rides an about-to-expire token.
const tokenRefreshMargin = 30 * time.Second

// Credentials are the API key pair for private calls. The secret is never
// logged or echoed.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type accessToken struct {
	token     string
	expiresAt time.Time
}

// Client is the JSON-RPC HTTP client. Public methods need no credentials;
// private ones authenticate lazily via OAuth client credentials and cache the
// token.
type Client struct {
	http  *http.Client
	env   Environment
	creds *Credentials

	tokenMu sync.RWMutex
	token   *accessToken
}

// NewClient builds a client for the environment. creds may be nil for
// public-only use.
func NewClient(env Environment, creds *Credentials) *Client {
	return &Client{
		http:  &http.Client{Timeout: 30 * time.Second},
		env:   env,
		creds: creds,
	}
}

// call performs one JSON-RPC request, injecting the access token into params
// for private methods.
func (c *Client) call(ctx context.Context, method string, params map[string]any, private bool) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	if private {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return nil, err
		}
		params["access_token"] = token
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      rand.Uint64(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("deribit: marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.env.HTTPBase(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("deribit: create request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deribit: call %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deribit: read response for %s: %w", method, err)
	}
	if err := checkStatus(method, resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	var rpc rpcResponse
	if err := json.Unmarshal(respBody, &rpc); err != nil {
		return nil, fmt.Errorf("deribit: decode response for %s: %w", method, err)
	}
	if rpc.Error != nil {
		return nil, fmt.Errorf("deribit: rpc error for %s: %s (%d)", method, rpc.Error.Message, rpc.Error.Code)
	}
	if rpc.Result == nil {
		return nil, fmt.Errorf("deribit: missing result for %s", method)
	}
	return rpc.Result, nil
}

func checkStatus(method string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("deribit: %s: %w: %s", method, domain.ErrUnauthorized, body)
	case http.StatusTooManyRequests:
		return fmt.Errorf("deribit: %s: %w", method, domain.ErrRateLimited)
	default:
		return fmt.Errorf("deribit: %s: HTTP %d: %s", method, status, body)
	}
}

// ensureToken returns a cached access token, refreshing it when it is within
// the margin of expiring.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	if c.creds == nil {
		return "", fmt.Errorf("deribit: %w: API key/secret required for private call", domain.ErrUnauthorized)
	}

	c.tokenMu.RLock()
	if tok := c.token; tok != nil && time.Now().Before(tok.expiresAt.Add(-tokenRefreshMargin)) {
		c.tokenMu.RUnlock()
		return tok.token, nil
	}
	c.tokenMu.RUnlock()

	result, err := c.call(ctx, "public/auth", map[string]any{
		"grant_type":    "client_credentials",
		"client_id":     c.creds.ClientID,
		"client_secret": c.creds.ClientSecret,
	}, false)
	if err != nil {
		return "", err
	}

	var auth struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(result, &auth); err != nil {
		return "", fmt.Errorf("deribit: decode auth response: %w", err)
	}
	if auth.AccessToken == "" {
		return "", fmt.Errorf("deribit: %w: auth response missing access_token", domain.ErrUnauthorized)
	}
	if auth.ExpiresIn == 0 {
		auth.ExpiresIn = 3000
	}

	c.tokenMu.Lock()
	c.token = &accessToken{
		token:     auth.AccessToken,
		expiresAt: time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second),
	}
	c.tokenMu.Unlock()
	return auth.AccessToken, nil
}

// GetInstruments returns the live option universe for a currency.
func (c *Client) GetInstruments(ctx context.Context, currency string) ([]domain.Instrument, error) {
	result, err := c.call(ctx, "public/get_instruments", map[string]any{
		"currency": currency,
		"kind":     "option",
		"expired":  false,
	}, false)
	if err != nil {
		return nil, err
	}

	var dtos []struct {
		InstrumentName      string  `json:"instrument_name"`
		Strike              float64 `json:"strike"`
		TickSize            float64 `json:"tick_size"`
		MinTradeAmount      float64 `json:"min_trade_amount"`
		ContractSize        float64 `json:"contract_size"`
		IsCombo             bool    `json:"is_combo"`
		SettlementCurrency  string  `json:"settlement_currency"`
		ExpirationTimestamp int64   `json:"expiration_timestamp"`
	}
	if err := json.Unmarshal(result, &dtos); err != nil {
		return nil, fmt.Errorf("deribit: decode instruments: %w", err)
	}

	instruments := make([]domain.Instrument, 0, len(dtos))
	for _, dto := range dtos {
		parsed, err := domain.ParseInstrumentName(dto.InstrumentName)
		if err != nil {
			return nil, fmt.Errorf("deribit: instrument %s: %w", dto.InstrumentName, err)
		}
		isUSDC := strings.EqualFold(dto.SettlementCurrency, "usdc")
		settlement := domain.SettlementCoin
		if isUSDC {
			settlement = domain.SettlementUSDC
		}
		contractSize := decimal.NewFromFloat(dto.ContractSize)
		if contractSize.IsZero() {
			contractSize = decimal.NewFromInt(1)
		}
		tickSize := decimal.NewFromFloat(dto.TickSize)
		if tickSize.IsZero() {
			tickSize = decimal.RequireFromString("0.1")
		}
		minTrade := decimal.NewFromFloat(dto.MinTradeAmount)
		if minTrade.IsZero() {
			minTrade = decimal.NewFromInt(1)
		}
		instruments = append(instruments, domain.Instrument{
			Name:           dto.InstrumentName,
			Currency:       parsed.Currency,
			IsUSDCSettled:  isUSDC,
			IsCombo:        dto.IsCombo,
			OptionKind:     parsed.OptionKind,
			Strike:         decimal.NewFromFloat(dto.Strike),
			Expiry:         time.UnixMilli(dto.ExpirationTimestamp).UTC(),
			ContractSize:   contractSize,
			Settlement:     settlement,
			TickSize:       tickSize,
			MinTradeAmount: minTrade,
		})
	}
	return instruments, nil
}

// GetTicker fetches the current top of book for one instrument.
func (c *Client) GetTicker(ctx context.Context, instrumentName string) (domain.Quote, error) {
	result, err := c.call(ctx, "public/ticker", map[string]any{
		"instrument_name": instrumentName,
	}, false)
	if err != nil {
		return domain.Quote{}, err
	}

	var dto tickerDTO
	if err := json.Unmarshal(result, &dto); err != nil {
		return domain.Quote{}, fmt.Errorf("deribit: decode ticker: %w", err)
	}
	return dto.toQuote(), nil
}

// GetComboIDs lists the venue's registered combo IDs for a currency.
func (c *Client) GetComboIDs(ctx context.Context, currency string) ([]string, error) {
	result, err := c.call(ctx, "public/get_combo_ids", map[string]any{
		"currency": currency,
	}, false)
	if err != nil {
		return nil, err
	}

	var dtos []struct {
		ComboID string `json:"combo_id"`
	}
	if err := json.Unmarshal(result, &dtos); err != nil {
		// The endpoint returns bare strings on some deployments.
		var ids []string
		if err2 := json.Unmarshal(result, &ids); err2 == nil {
			return ids, nil
		}
		return nil, fmt.Errorf("deribit: decode combo ids: %w", err)
	}
	ids := make([]string, 0, len(dtos))
	for _, dto := range dtos {
		ids = append(ids, dto.ComboID)
	}
	return ids, nil
}

// GetComboDetails resolves one combo ID into its definition.
func (c *Client) GetComboDetails(ctx context.Context, comboID string) (domain.ComboDefinition, error) {
	result, err := c.call(ctx, "public/get_combo_details", map[string]any{
		"combo_id": comboID,
	}, false)
	if err != nil {
		return domain.ComboDefinition{}, err
	}

	var dto struct {
		Currency           string `json:"currency"`
		Description        string `json:"description"`
		SettlementCurrency string `json:"settlement_currency"`
		Legs               []struct {
			InstrumentName string `json:"instrument_name"`
			Ratio          int    `json:"ratio"`
			Direction      string `json:"direction"`
		} `json:"legs"`
	}
	if err := json.Unmarshal(result, &dto); err != nil {
		return domain.ComboDefinition{}, fmt.Errorf("deribit: decode combo details: %w", err)
	}

	currency, err := domain.ParseCurrency(dto.Currency)
	if err != nil {
		return domain.ComboDefinition{}, fmt.Errorf("deribit: combo %s: %w", comboID, err)
	}
	settlement := domain.SettlementCoin
	if strings.EqualFold(dto.SettlementCurrency, "usdc") {
		settlement = domain.SettlementUSDC
	}

	legs := make([]domain.ComboLeg, 0, len(dto.Legs))
	for _, leg := range dto.Legs {
		side := domain.SideBuy
		if leg.Direction == "sell" {
			side = domain.SideSell
		}
		legs = append(legs, domain.ComboLeg{
			InstrumentName: leg.InstrumentName,
			Ratio:          leg.Ratio,
			Side:           side,
		})
	}

	return domain.ComboDefinition{
		ComboID:     comboID,
		Currency:    currency,
		Settlement:  settlement,
		Description: dto.Description,
		Legs:        legs,
	}, nil
}

// CreateCombo registers a combo on the venue and returns its ID. Private.
func (c *Client) CreateCombo(ctx context.Context, name string, legs []domain.ComboLeg, isUSDC bool) (string, error) {
	settlement := "coin"
	if isUSDC {
		settlement = "usdc"
	}
	legDTOs := make([]map[string]any, 0, len(legs))
	for _, leg := range legs {
		direction := "buy"
		if leg.Side == domain.SideSell {
			direction = "sell"
		}
		legDTOs = append(legDTOs, map[string]any{
			"instrument_name": leg.InstrumentName,
			"ratio":           leg.Ratio,
			"direction":       direction,
		})
	}

	result, err := c.call(ctx, "private/create_combo", map[string]any{
		"name":       name,
		"settlement": settlement,
		"legs":       legDTOs,
	}, true)
	if err != nil {
		return "", err
	}

	var dto struct {
		ComboID string `json:"combo_id"`
	}
	if err := json.Unmarshal(result, &dto); err != nil {
		return "", fmt.Errorf("deribit: decode create_combo response: %w", err)
	}
	return dto.ComboID, nil
}

// GetLegPrices previews the per-leg pricing of a registered combo at the given
// amount. Private. The payload is passed through untouched for rendering.
func (c *Client) GetLegPrices(ctx context.Context, comboID string, amount decimal.Decimal) (json.RawMessage, error) {
	return c.call(ctx, "private/get_leg_prices", map[string]any{
		"combo_id": comboID,
		"amount":   amount,
	}, true)
}
