package tensor

import "errors"

// Common errors.
var (
	ErrInvalidSparse  = errors.New("invalid compressed sparse column structure")
	ErrNotMatrix      = errors.New("array is not two-dimensional")
	ErrEmptyMatrix    = errors.New("matrix has a zero-length dimension")
	ErrLengthMismatch = errors.New("data length does not match shape")
)
