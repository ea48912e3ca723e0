package model

import (
	"errors"
	"fmt"
)

// Error classes. Specific errors below wrap one of these, so callers can
// match either with errors.Is.
var (
	// ErrValidation marks malformed or out-of-range input. Nothing is mutated.
	ErrValidation = errors.New("validation error")

	// ErrDataUnavailable marks a missing quote or other external input.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrInvariantViolation marks an operation that would break a ledger or
	// lifecycle invariant. The operation is rejected and state is unchanged.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrNotFound is returned by stores for unknown ids.
	ErrNotFound = errors.New("not found")
)

var (
	ErrInvalidSide      = fmt.Errorf("%w: side must be yes or no", ErrValidation)
	ErrInvalidPrice     = fmt.Errorf("%w: price out of range", ErrValidation)
	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be non-zero and within the contract cap", ErrValidation)
	ErrInvalidTicker    = fmt.Errorf("%w: ticker is required", ErrValidation)
	ErrInvalidBudget    = fmt.Errorf("%w: budget must not be negative", ErrValidation)
	ErrInvalidHorizon   = fmt.Errorf("%w: horizon must not be negative", ErrValidation)
	ErrInvalidMaxTrades = fmt.Errorf("%w: max_trades must not be negative", ErrValidation)
	ErrInvalidStatus    = fmt.Errorf("%w: unknown trade status", ErrValidation)
	ErrInvalidQuote     = fmt.Errorf("%w: quote field out of range", ErrValidation)

	ErrInvalidFill       = fmt.Errorf("%w: invalid fill", ErrInvariantViolation)
	ErrInvalidTransition = fmt.Errorf("%w: illegal status transition", ErrInvariantViolation)
)
