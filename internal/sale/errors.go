package sale

import "errors"

var (
	// ErrInvalidField is returned when a per-unit sum or fan-out write names
	// a field outside the allowed pricing fields.
	ErrInvalidField = errors.New("invalid stock unit field")

	// ErrContextMissing is returned by invoice-number generation when the
	// branch, desk, or user context has not been supplied.
	ErrContextMissing = errors.New("invoice context missing")

	// ErrLineNotFound is returned for an out-of-range line index.
	ErrLineNotFound = errors.New("sale line not found")
)
