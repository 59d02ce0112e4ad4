package nutrient

import "errors"

var (
	// ErrInvalidArgument is returned when an input is outside its domain or is
	// not a well-formed decimal number.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrMissingElement is returned when a nutrient mapping lacks N, P or K.
	ErrMissingElement = errors.New("missing nutrient element")
)
