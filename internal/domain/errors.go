package domain

import "errors"

var (
	// ErrMethodNotSupported is returned when a contract does not implement
	// a requested view method (e.g. a token without a creator() accessor).
	// Callers treat this as "feature not applicable", not as a failure.
	ErrMethodNotSupported = errors.New("contract method not supported")

	// ErrTokenNotFound is returned when a token is not found in the store
	ErrTokenNotFound = errors.New("token not found")

	// ErrNoTradeDirection is returned when a pair Swap event resolves to no
	// valid trade direction for the tracked token. Such events are discarded,
	// never stored as zero-value trades.
	ErrNoTradeDirection = errors.New("swap event has no valid trade direction")

	// ErrNegativeBalance is returned when a transfer fold would drive a
	// holder balance negative, which indicates an ingestion gap.
	ErrNegativeBalance = errors.New("holder balance went negative")
)
