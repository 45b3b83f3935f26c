package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/exiobase/internal/parallel"
)

// DenseFromColumnMajor converts a column-major two-dimensional array into a
// row-major gonum matrix.
func DenseFromColumnMajor(shape Shape, data []float64) (*mat.Dense, error) {
	if !shape.IsMatrix() {
		return nil, fmt.Errorf("%w: shape %v", ErrNotMatrix, shape)
	}
	if shape.Empty() {
		return nil, fmt.Errorf("%w: %v", ErrEmptyMatrix, shape)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("%w: shape %v requires %d elements, got %d",
			ErrLengthMismatch, shape, shape.NumElements(), len(data))
	}

	rows, cols := shape[0], shape[1]
	out := make([]float64, len(data))
	parallel.Chunks(cols, parallel.DefaultConfig(), func(start, end int) {
		for j := start; j < end; j++ {
			for i := 0; i < rows; i++ {
				out[i*cols+j] = data[j*rows+i]
			}
		}
	})
	return mat.NewDense(rows, cols, out), nil
}
