package domain

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrWSDisconnect = errors.New("websocket disconnected")

	// Instrument-name parse errors.
	ErrInvalidFormat     = errors.New("invalid instrument format")
	ErrUnknownCurrency   = errors.New("unknown currency")
	ErrUnknownOptionKind = errors.New("unknown option kind")
	ErrInvalidExpiry     = errors.New("invalid expiry")
	ErrInvalidStrike     = errors.New("invalid strike")
)
