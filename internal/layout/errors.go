package layout

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrInvalidLayout  = errors.New("invalid layout")
	ErrUnknownLayout  = errors.New("unknown layout")
	ErrLayoutMismatch = errors.New("bundle does not match layout")
	ErrShapeMismatch  = errors.New("field shape does not match layout")
	ErrLabelMismatch  = errors.New("label count does not match matrix dimension")
)

// Validation error types.
const (
	TypeInvalidLayout  = "invalid_layout"
	TypeLayoutMismatch = "layout_mismatch"
	TypeShapeMismatch  = "shape_mismatch"
	TypeLabelMismatch  = "label_mismatch"
)

// ValidationError provides detailed information about contract violations.
type ValidationError struct {
	Type    string // Type of error (e.g., "shape_mismatch", "label_mismatch")
	Field   string // Bundle field or layout key involved
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field %q: %s", e.Type, e.Field, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Unwrap maps the error type onto its sentinel so callers can use errors.Is.
func (e *ValidationError) Unwrap() error {
	switch e.Type {
	case TypeInvalidLayout:
		return ErrInvalidLayout
	case TypeLayoutMismatch:
		return ErrLayoutMismatch
	case TypeShapeMismatch:
		return ErrShapeMismatch
	case TypeLabelMismatch:
		return ErrLabelMismatch
	default:
		return nil
	}
}
