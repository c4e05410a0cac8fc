package toolbox

import "errors"

// Error kinds returned (wrapped) by the toolbox.  Test with errors.Is.
var (
	// ErrConstruction means a network could not be built from the given
	// topology.
	ErrConstruction = errors.New("invalid network construction")

	// ErrDimensionMismatch means two operands have non-conformant shapes.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrPrecondition means training arguments are out of range.
	ErrPrecondition = errors.New("precondition violated")

	// ErrDecode means a persisted network is malformed or truncated.
	ErrDecode = errors.New("cannot decode network")

	// ErrEncode means a network could not be written to its sink.
	ErrEncode = errors.New("cannot encode network")
)
