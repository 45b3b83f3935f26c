// Package database loads the EXIOBASE 3rx environmentally-extended
// input-output database into labeled dense tables.
//
// This package wraps the internal loader and exports a small public API.
//
// Example usage:
//
//	opts, err := database.OptionsFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	opts.Tables = []string{"S", "x"} // A alone needs ~14.6 GB dense
//
//	db, err := database.Load(context.Background(), opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s, _ := db.Table("S")
//	rows, cols := s.Dims()
//	fmt.Printf("S: %d x %d, %d regions\n", rows, cols, len(db.Regions))
package database

import (
	"context"

	"github.com/born-ml/exiobase/internal/config"
	"github.com/born-ml/exiobase/internal/database"
	"github.com/born-ml/exiobase/internal/layout"
	"github.com/born-ml/exiobase/internal/table"
)

// Database is a loaded EXIOBASE release: header metadata, the bundle
// fields as stored, the label sets and the densified tables.
type Database = database.Database

// Options controls a load.
type Options = database.Options

// Summary describes one loaded table.
type Summary = database.Summary

// Table is a dense matrix with hierarchical row and column indexes.
type Table = table.Table

// Index is a hierarchical index over one table axis.
type Index = table.Index

// Matching selects how stored bundle field names are checked.
type Matching = layout.Matching

// Field matching modes.
const (
	MatchStrict     Matching = layout.MatchStrict
	MatchPositional Matching = layout.MatchPositional
)

// Errors callers can test for with errors.Is.
var (
	ErrLayoutMismatch = layout.ErrLayoutMismatch
	ErrShapeMismatch  = layout.ErrShapeMismatch
	ErrLabelMismatch  = layout.ErrLabelMismatch
	ErrKeyNotFound    = table.ErrKeyNotFound
	ErrTableNotLoaded = database.ErrTableNotLoaded
)

// OptionsFromEnv builds load options from EXIO_* environment variables.
//
//	EXIO_DATA_DIR        data directory (./data/exiobase-3rx)
//	EXIO_MAT_FILE        MAT-file, relative to the data directory
//	EXIO_LABELS_DIR      label directory, relative to the data directory (labs)
//	EXIO_LAYOUT          layout name (exiobase-3rx)
//	EXIO_FIELD_MATCHING  strict or positional (strict)
//	EXIO_TABLES          comma-separated table subset (all)
func OptionsFromEnv() (Options, error) {
	cfg, err := config.Load()
	if err != nil {
		return Options{}, err
	}
	return database.NewOptions(cfg)
}

// Load reads the label sets and the matrix bundle and densifies the
// selected tables. The logger is taken from ctx when one was attached by
// the caller's program; otherwise slog's default logger is used.
func Load(ctx context.Context, opts Options) (*Database, error) {
	return database.Load(ctx, opts)
}
