package plan

import "errors"

var (
	// ErrInvalidPlan is returned when a plan document is malformed or fails validation.
	ErrInvalidPlan = errors.New("invalid feeding plan")
	// ErrUnknownProduct is returned when an episode component names a product missing from the catalog.
	ErrUnknownProduct = errors.New("unknown catalog product")
)
