package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// Shape represents the dimensions of an array.
type Shape []int

// NumElements returns the total number of elements described by the shape.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that no dimension is negative.
// Zero-length dimensions are valid: MAT files store empty arrays as 0x0.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// IsMatrix reports whether the shape has exactly two dimensions.
func (s Shape) IsMatrix() bool {
	return len(s) == 2
}

// Empty reports whether the shape holds no elements.
func (s Shape) Empty() bool {
	return len(s) > 0 && s.NumElements() == 0
}

// String formats the shape as "rows×cols×...".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, dim := range s {
		parts[i] = strconv.Itoa(dim)
	}
	return strings.Join(parts, "×")
}

// ColumnMajorStrides calculates column-major (Fortran order) strides.
// stride[i] = product of all dimensions before i.
func (s Shape) ColumnMajorStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[0] = 1
	for i := 1; i < len(s); i++ {
		strides[i] = strides[i-1] * s[i-1]
	}
	return strides
}
