package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSigningFailed = errors.New("signing failed")
	ErrLockHeld      = errors.New("lock already held")

	// ErrNoArbitrage is a normal negative result: nothing above the profit
	// threshold, or the intent does not touch the base token.
	ErrNoArbitrage = errors.New("no arbitrage")

	// ErrGasTooLarge is returned when the gas estimate exceeds the ceiling.
	// The transaction is never signed.
	ErrGasTooLarge = errors.New("estimated gas suspiciously large")

	ErrNoExecutor            = errors.New("no executor configured for token")
	ErrSimulationFailed      = errors.New("bundle simulation failed")
	ErrNoArbitrageSubmitted  = errors.New("no arbitrage submitted")
	ErrUnknownMarket         = errors.New("unknown market")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidToken          = errors.New("token not traded by market")
	ErrStaleReserves         = errors.New("reserves are stale")
)
