package tensor

import (
	"fmt"
	"slices"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/exiobase/internal/parallel"
)

// CSC is a compressed sparse column matrix, the layout MATLAB uses for
// sparse arrays. Storage is a *sparse.CSC whose structure has been checked
// by NewCSC.
//
// Column j owns the entries colPtr[j] .. colPtr[j+1]-1 of rowIdx and values.
// Row indices are strictly increasing within a column.
type CSC struct {
	*sparse.CSC
}

// NewCSC builds a CSC matrix from its raw arrays and validates the structure.
// The slices are retained, not copied. values may be longer than the number
// of stored entries (MAT files allocate nzmax slots); the excess is dropped.
func NewCSC(rows, cols int, colPtr, rowIdx []int, values []float64) (*CSC, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: negative dimensions %dx%d", ErrInvalidSparse, rows, cols)
	}
	if len(colPtr) != cols+1 {
		return nil, fmt.Errorf("%w: %d column pointers for %d columns", ErrInvalidSparse, len(colPtr), cols)
	}
	if colPtr[0] != 0 {
		return nil, fmt.Errorf("%w: first column pointer is %d", ErrInvalidSparse, colPtr[0])
	}

	nnz := colPtr[cols]
	if nnz < 0 {
		return nil, fmt.Errorf("%w: negative entry count %d", ErrInvalidSparse, nnz)
	}
	if nnz > len(rowIdx) || nnz > len(values) {
		return nil, fmt.Errorf("%w: %d stored entries but %d row indices and %d values",
			ErrInvalidSparse, nnz, len(rowIdx), len(values))
	}

	// Pointers must bracket [0, nnz] before any row index is read through them.
	for j := 0; j < cols; j++ {
		if colPtr[j+1] < colPtr[j] {
			return nil, fmt.Errorf("%w: column pointers decrease at column %d", ErrInvalidSparse, j)
		}
		if colPtr[j+1] > nnz {
			return nil, fmt.Errorf("%w: column %d ends at %d past %d entries", ErrInvalidSparse, j, colPtr[j+1], nnz)
		}
	}

	for j := 0; j < cols; j++ {
		prev := -1
		for k := colPtr[j]; k < colPtr[j+1]; k++ {
			i := rowIdx[k]
			if i < 0 || i >= rows {
				return nil, fmt.Errorf("%w: row index %d out of range in column %d", ErrInvalidSparse, i, j)
			}
			if i <= prev {
				return nil, fmt.Errorf("%w: row indices not increasing in column %d", ErrInvalidSparse, j)
			}
			prev = i
		}
	}

	return &CSC{sparse.NewCSC(rows, cols, colPtr, rowIdx[:nnz], values[:nnz])}, nil
}

// Shape returns the dimensions as a Shape.
func (m *CSC) Shape() Shape {
	r, c := m.Dims()
	return Shape{r, c}
}

// ColPtr returns the column pointer array. Callers must not modify it.
func (m *CSC) ColPtr() []int {
	return m.RawMatrix().Indptr
}

// RowIndices returns the row index array. Callers must not modify it.
func (m *CSC) RowIndices() []int {
	return m.RawMatrix().Ind
}

// Values returns the stored values. Callers must not modify them.
func (m *CSC) Values() []float64 {
	return m.RawMatrix().Data
}

// ToDense expands the matrix into a dense gonum matrix.
func (m *CSC) ToDense() (*mat.Dense, error) {
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyMatrix, rows, cols)
	}

	// Columns own disjoint cells, so columns fill in parallel.
	data := make([]float64, rows*cols)
	parallel.For(cols, parallel.DefaultConfig(), func(j int) {
		m.DoColNonZero(j, func(i, j int, v float64) {
			data[i*cols+j] = v
		})
	})
	return mat.NewDense(rows, cols, data), nil
}

// Equal reports whether two CSC matrices have identical dimensions and
// identical stored structure.
func (m *CSC) Equal(other *CSC) bool {
	a, b := m.RawMatrix(), other.RawMatrix()
	return a.I == b.I && a.J == b.J &&
		slices.Equal(a.Indptr, b.Indptr) &&
		slices.Equal(a.Ind, b.Ind) &&
		slices.Equal(a.Data, b.Data)
}

// FromDense compresses any gonum matrix into CSC form, dropping zeros.
func FromDense(a mat.Matrix) *CSC {
	rows, cols := a.Dims()
	colPtr := make([]int, cols+1)
	var rowIdx []int
	var values []float64

	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			if v := a.At(i, j); v != 0 {
				rowIdx = append(rowIdx, i)
				values = append(values, v)
			}
		}
		colPtr[j+1] = len(values)
	}

	return &CSC{sparse.NewCSC(rows, cols, colPtr, rowIdx, values)}
}
