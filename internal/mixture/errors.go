package mixture

import "errors"

// ErrInvalidArgument is returned when an input cannot be interpreted as a real number.
var ErrInvalidArgument = errors.New("invalid argument")

// Failure messages reported in Result.Error. They are shown to users verbatim.
const (
	MsgNonPositiveMass = "mass must be greater than zero"
	MsgNoComposition   = "could not find a matching composition"
)
