package core

import "errors"

// Failure taxonomy for the tree and aggregation engine. Fatal build errors
// (cycle, duplicate id) reject the whole input with no partial forest;
// the rest are recoverable and mapped to response codes by the HTTP layer.
var (
	ErrCycleDetected       = errors.New("category cycle detected")
	ErrDuplicateID         = errors.New("duplicate category id")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrInvalidRange        = errors.New("start date must not be after end date")
	ErrUnsupportedCurrency = errors.New("unsupported currency code")
)
