// Package labels reads the CSV label sets that index EXIOBASE matrices.
//
// Each file has a header row naming its columns, followed by one record per
// matrix row or column. Row order and every column are preserved as read.
package labels

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Common errors.
var (
	ErrEmpty           = errors.New("label file has no header row")
	ErrRagged          = errors.New("label record field count differs from header")
	ErrDuplicateColumn = errors.New("duplicate label column")
	ErrUnknownColumn   = errors.New("unknown label column")
)

const bom = "\ufeff"

// Set is an ordered table of label rows.
type Set struct {
	path    string
	columns []string
	rows    [][]string
	index   map[string]int
}

// Spec names a label set and the file it is read from.
type Spec struct {
	Name string
	Path string
}

// ReadFile reads a label set from a CSV file.
func ReadFile(path string) (*Set, error) {
	//nolint:gosec // G304: File path comes from configuration, which is expected for data loading
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open label file: %w", err)
	}
	defer func() { _ = f.Close() }()

	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.path = path
	return s, nil
}

// Read reads a label set from CSV data.
func Read(r io.Reader) (*Set, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // checked below to report ErrRagged

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], bom)

	s := &Set{
		columns: header,
		index:   make(map[string]int, len(header)),
	}
	for i, name := range header {
		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		s.index[name] = i
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", len(s.rows)+1, err)
		}
		if len(rec) != len(header) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d has %d fields, header has %d",
				ErrRagged, line, len(rec), len(header))
		}
		s.rows = append(s.rows, rec)
	}

	return s, nil
}

// ReadAll reads several label sets concurrently and returns them by name.
// The first failure cancels the remaining reads.
func ReadAll(ctx context.Context, specs []Spec) (map[string]*Set, error) {
	sets := make([]*Set, len(specs))

	g, ctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := ReadFile(spec.Path)
			if err != nil {
				return fmt.Errorf("label set %q: %w", spec.Name, err)
			}
			sets[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*Set, len(specs))
	for i, spec := range specs {
		out[spec.Name] = sets[i]
	}
	return out, nil
}

// Path returns the file the set was read from, if any.
func (s *Set) Path() string {
	return s.path
}

// Len returns the number of label rows.
func (s *Set) Len() int {
	return len(s.rows)
}

// Columns returns the column names from the header row.
func (s *Set) Columns() []string {
	return s.columns
}

// Row returns the values of row i. Callers must not modify them.
func (s *Set) Row(i int) []string {
	return s.rows[i]
}

// Column returns all values of the named column in row order.
func (s *Set) Column(name string) ([]string, error) {
	j, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	out := make([]string, len(s.rows))
	for i, row := range s.rows {
		out[i] = row[j]
	}
	return out, nil
}

// Unique returns the distinct values of the named column in first-seen order.
func (s *Set) Unique(name string) ([]string, error) {
	col, err := s.Column(name)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, v := range col {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}
