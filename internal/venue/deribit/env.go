// Package deribit implements the Deribit venue client: JSON-RPC over HTTP for
// discovery and combo management, and a websocket subscriber for streaming
// tickers.
package deribit

import (
	"fmt"
	"strings"

	"deribitarb/internal/domain"
)

// Environment selects the venue deployment.
type Environment string

const (
	EnvTestnet    Environment = "test"
	EnvProduction Environment = "prod"
)

// ParseEnvironment resolves the CLI/env token. "test"/"testnet" map to the
// testnet, "prod"/"production"/"main" to production.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "test", "testnet":
		return EnvTestnet, nil
	case "prod", "production", "main":
		return EnvProduction, nil
	default:
		return "", fmt.Errorf("deribit: %w: unknown environment %q", domain.ErrInvalidInput, s)
	}
}

// HTTPBase returns the JSON-RPC endpoint for the environment.
func (e Environment) HTTPBase() string {
	if e == EnvProduction {
		return "https://www.deribit.com/api/v2"
	}
	return "https://test.deribit.com/api/v2"
}

// WebsocketURL returns the streaming endpoint for the environment.
func (e Environment) WebsocketURL() string {
	if e == EnvProduction {
		return "wss://www.deribit.com/ws/api/v2"
	}
	return "wss://test.deribit.com/ws/api/v2"
}
