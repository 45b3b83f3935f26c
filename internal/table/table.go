// Package table holds dense matrices labeled by hierarchical row and
// column indexes.
package table

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Common errors.
var (
	ErrKeyNotFound  = errors.New("key not found in index")
	ErrUnknownLevel = errors.New("unknown index level")
	ErrKeyWidth     = errors.New("key width does not match index levels")
	ErrIndexLength  = errors.New("index length does not match matrix dimension")
)

// Table is a dense matrix with labeled rows and columns.
type Table struct {
	name string
	data *mat.Dense
	rows *Index
	cols *Index
}

// New labels a dense matrix. The index lengths must equal the matrix dimensions.
func New(name string, data *mat.Dense, rows, cols *Index) (*Table, error) {
	r, c := data.Dims()
	if rows.Len() != r {
		return nil, fmt.Errorf("%w: table %q has %d rows, row index has %d", ErrIndexLength, name, r, rows.Len())
	}
	if cols.Len() != c {
		return nil, fmt.Errorf("%w: table %q has %d columns, column index has %d", ErrIndexLength, name, c, cols.Len())
	}
	return &Table{name: name, data: data, rows: rows, cols: cols}, nil
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Dims returns the number of rows and columns.
func (t *Table) Dims() (int, int) {
	return t.data.Dims()
}

// At returns the element at row i, column j.
func (t *Table) At(i, j int) float64 {
	return t.data.At(i, j)
}

// Data returns the underlying matrix. Callers must not modify it.
func (t *Table) Data() *mat.Dense {
	return t.data
}

// Rows returns the row index.
func (t *Table) Rows() *Index {
	return t.rows
}

// Cols returns the column index.
func (t *Table) Cols() *Index {
	return t.cols
}

// Value returns the element addressed by full row and column keys.
func (t *Table) Value(rowKey, colKey []string) (float64, error) {
	i, err := t.rows.Position(rowKey...)
	if err != nil {
		return 0, fmt.Errorf("row: %w", err)
	}
	j, err := t.cols.Position(colKey...)
	if err != nil {
		return 0, fmt.Errorf("column: %w", err)
	}
	return t.data.At(i, j), nil
}

// Row returns a copy of the row addressed by rowKey.
func (t *Table) Row(rowKey ...string) ([]float64, error) {
	i, err := t.rows.Position(rowKey...)
	if err != nil {
		return nil, fmt.Errorf("row: %w", err)
	}
	return mat.Row(nil, i, t.data), nil
}
