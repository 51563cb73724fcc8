package domain

import "errors"

var (
	// ErrInvalidEntry rejects a non-positive entry price before any mutation.
	ErrInvalidEntry = errors.New("entry price must be positive")

	// ErrInvalidPercentages rejects a malformed stop/target percentage table.
	ErrInvalidPercentages = errors.New("invalid stop/target percentages")

	ErrUnsupportedSymbol   = errors.New("unsupported symbol")
	ErrUnsupportedInterval = errors.New("unsupported interval")
)
