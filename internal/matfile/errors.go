package matfile

import "errors"

// Common errors.
var (
	ErrInvalidHeader    = errors.New("invalid MAT-file header")
	ErrUnsupported      = errors.New("unsupported MAT-file content")
	ErrMalformed        = errors.New("malformed MAT-file data element")
	ErrVariableNotFound = errors.New("variable not found")
)
