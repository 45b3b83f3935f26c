package matfile

import (
	"fmt"
	"strings"

	"github.com/born-ml/exiobase/internal/tensor"
)

// Value is a decoded MATLAB array.
type Value interface {
	// Class returns the MATLAB array class.
	Class() Class

	// Shape returns the array dimensions (at least two).
	Shape() tensor.Shape
}

// Variable is a named top-level array.
type Variable struct {
	Name   string
	Global bool
	Value  Value
}

// Numeric is a full (non-sparse) numeric or logical array.
// Data is stored in column-major order and widened to float64.
type Numeric struct {
	shape   tensor.Shape
	dtype   tensor.DataType
	logical bool
	data    []float64
}

// NewNumeric creates a numeric array. data must be column-major.
func NewNumeric(shape tensor.Shape, dtype tensor.DataType, data []float64) (*Numeric, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("%w: shape %v requires %d elements, got %d",
			ErrMalformed, shape, shape.NumElements(), len(data))
	}
	return &Numeric{
		shape:   shape.Clone(),
		dtype:   dtype,
		logical: dtype == tensor.Bool,
		data:    data,
	}, nil
}

// Empty returns the 0x0 double array MATLAB writes for [].
func Empty() *Numeric {
	return &Numeric{shape: tensor.Shape{0, 0}, dtype: tensor.Float64}
}

// Class returns the numeric class of the array.
func (n *Numeric) Class() Class {
	return ClassFor(n.dtype)
}

// Shape returns the array dimensions.
func (n *Numeric) Shape() tensor.Shape {
	return n.shape
}

// DType returns the element type of the MATLAB class.
func (n *Numeric) DType() tensor.DataType {
	return n.dtype
}

// Logical reports whether the array is a MATLAB logical array.
func (n *Numeric) Logical() bool {
	return n.logical
}

// Data returns the column-major elements. Callers must not modify them.
func (n *Numeric) Data() []float64 {
	return n.data
}

// At returns the element at the given subscripts.
func (n *Numeric) At(idx ...int) float64 {
	if len(idx) != len(n.shape) {
		panic(fmt.Sprintf("matfile: %d subscripts for %d-dimensional array", len(idx), len(n.shape)))
	}
	strides := n.shape.ColumnMajorStrides()
	off := 0
	for i, v := range idx {
		if v < 0 || v >= n.shape[i] {
			panic(fmt.Sprintf("matfile: subscript %d out of range for dimension %d of %v", v, i, n.shape))
		}
		off += v * strides[i]
	}
	return n.data[off]
}

// Sparse is a sparse double or logical matrix.
type Sparse struct {
	*tensor.CSC
	logical bool
}

// NewSparse wraps a CSC matrix as a MATLAB sparse array.
func NewSparse(m *tensor.CSC, logical bool) *Sparse {
	return &Sparse{CSC: m, logical: logical}
}

// Class returns ClassSparse.
func (s *Sparse) Class() Class {
	return ClassSparse
}

// Logical reports whether the matrix is a logical sparse matrix.
func (s *Sparse) Logical() bool {
	return s.logical
}

// Char is a character array.
type Char struct {
	shape tensor.Shape
	runes []rune // column-major
}

// NewChar creates a 1xN character array.
func NewChar(text string) *Char {
	runes := []rune(text)
	return &Char{shape: tensor.Shape{1, len(runes)}, runes: runes}
}

// Class returns ClassChar.
func (c *Char) Class() Class {
	return ClassChar
}

// Shape returns the array dimensions.
func (c *Char) Shape() tensor.Shape {
	return c.shape
}

// Rows returns each row of a two-dimensional character array.
func (c *Char) Rows() []string {
	if len(c.shape) != 2 {
		return []string{string(c.runes)}
	}
	rows, cols := c.shape[0], c.shape[1]
	out := make([]string, rows)
	var b strings.Builder
	for i := 0; i < rows; i++ {
		b.Reset()
		for j := 0; j < cols; j++ {
			b.WriteRune(c.runes[j*rows+i])
		}
		out[i] = b.String()
	}
	return out
}

// String returns the rows joined with newlines.
func (c *Char) String() string {
	return strings.Join(c.Rows(), "\n")
}

// Struct is a struct array. Fields are kept in file order.
type Struct struct {
	shape  tensor.Shape
	fields []string
	elems  [][]Value // [element][field]
}

// NewStruct creates a struct array. elems holds one slice of field values
// per element, in column-major element order.
func NewStruct(shape tensor.Shape, fields []string, elems [][]Value) (*Struct, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if len(elems) != shape.NumElements() {
		return nil, fmt.Errorf("%w: struct shape %v requires %d elements, got %d",
			ErrMalformed, shape, shape.NumElements(), len(elems))
	}
	for i, e := range elems {
		if len(e) != len(fields) {
			return nil, fmt.Errorf("%w: struct element %d has %d values for %d fields",
				ErrMalformed, i, len(e), len(fields))
		}
	}
	return &Struct{shape: shape.Clone(), fields: fields, elems: elems}, nil
}

// Class returns ClassStruct.
func (s *Struct) Class() Class {
	return ClassStruct
}

// Shape returns the struct array dimensions.
func (s *Struct) Shape() tensor.Shape {
	return s.shape
}

// FieldNames returns the field names in stored order.
func (s *Struct) FieldNames() []string {
	return s.fields
}

// Len returns the number of struct elements.
func (s *Struct) Len() int {
	return len(s.elems)
}

// Element returns the field values of element i in stored field order.
func (s *Struct) Element(i int) []Value {
	return s.elems[i]
}

// Field returns the named field of the first element.
func (s *Struct) Field(name string) (Value, bool) {
	if len(s.elems) == 0 {
		return nil, false
	}
	for i, f := range s.fields {
		if f == name {
			return s.elems[0][i], true
		}
	}
	return nil, false
}

// Cell is a cell array.
type Cell struct {
	shape tensor.Shape
	elems []Value // column-major
}

// NewCell creates a cell array from column-major elements.
func NewCell(shape tensor.Shape, elems []Value) (*Cell, error) {
	if len(elems) != shape.NumElements() {
		return nil, fmt.Errorf("%w: cell shape %v requires %d elements, got %d",
			ErrMalformed, shape, shape.NumElements(), len(elems))
	}
	return &Cell{shape: shape.Clone(), elems: elems}, nil
}

// Class returns ClassCell.
func (c *Cell) Class() Class {
	return ClassCell
}

// Shape returns the cell array dimensions.
func (c *Cell) Shape() tensor.Shape {
	return c.shape
}

// Elements returns the cells in column-major order.
func (c *Cell) Elements() []Value {
	return c.elems
}
