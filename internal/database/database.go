// Package database loads the EXIOBASE input-output database: label sets,
// the sparse matrix bundle, and the densified labeled tables derived from
// them.
package database

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/born-ml/exiobase/internal/config"
	"github.com/born-ml/exiobase/internal/labels"
	"github.com/born-ml/exiobase/internal/layout"
	"github.com/born-ml/exiobase/internal/matfile"
	"github.com/born-ml/exiobase/internal/table"
)

// ErrTableNotLoaded is returned for tables that were not densified.
var ErrTableNotLoaded = errors.New("table not loaded")

// Database is a loaded EXIOBASE release. It is not modified after Load.
type Database struct {
	Header  string // MAT-file header text
	Version string // MAT-file format version
	Layout  string // layout name

	Sparse map[string]matfile.Value // every bundle field, as stored
	Tables map[string]*table.Table  // densified, labeled tables
	Labels map[string]*labels.Set   // label sets by name

	Regions    []string // unique regions, first-seen order
	Categories []string // unique product categories, first-seen order

	order []string
}

// Options controls a load.
type Options struct {
	Layout     *layout.Layout
	MatPath    string
	LabelPaths map[string]string // label set name -> CSV path
	Matching   layout.Matching
	Tables     []string // subset of layout tables; nil loads all
}

// NewOptions resolves the layout and file paths named by cfg.
func NewOptions(cfg *config.Config) (Options, error) {
	l, err := layout.Load(cfg.Layout)
	if err != nil {
		return Options{}, err
	}
	matching, err := layout.ParseMatching(cfg.FieldMatching)
	if err != nil {
		return Options{}, err
	}

	paths := make(map[string]string, len(l.Labels))
	for _, ls := range l.Labels {
		paths[ls.Name] = cfg.LabelPath(ls.File)
	}

	return Options{
		Layout:     l,
		MatPath:    cfg.MatPath(l.MatFile),
		LabelPaths: paths,
		Matching:   matching,
		Tables:     cfg.Tables,
	}, nil
}

// Table returns the named table.
func (db *Database) Table(name string) (*table.Table, error) {
	t, ok := db.Tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTableNotLoaded, name)
	}
	return t, nil
}

// TableNames returns the loaded table names in densification order.
func (db *Database) TableNames() []string {
	return slices.Clone(db.order)
}

// Summary describes one loaded table.
type Summary struct {
	Name      string
	Rows      int
	Cols      int
	SourceNNZ int
}

// Summaries describes the loaded tables in densification order.
func (db *Database) Summaries() []Summary {
	out := make([]Summary, 0, len(db.order))
	for _, name := range db.order {
		r, c := db.Tables[name].Dims()
		out = append(out, Summary{Name: name, Rows: r, Cols: c, SourceNNZ: nnz(db.Sparse[name])})
	}
	return out
}

// LogValue implements slog.LogValuer.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("table", s.Name),
		slog.Int("rows", s.Rows),
		slog.Int("cols", s.Cols),
		slog.Int("source_nnz", s.SourceNNZ),
	)
}

// nnz counts stored non-zeros of a numeric or sparse value.
func nnz(v matfile.Value) int {
	switch t := v.(type) {
	case *matfile.Sparse:
		return t.NNZ()
	case *matfile.Numeric:
		n := 0
		for _, x := range t.Data() {
			if x != 0 {
				n++
			}
		}
		return n
	default:
		return 0
	}
}
