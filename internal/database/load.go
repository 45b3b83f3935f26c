package database

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/exiobase/internal/labels"
	"github.com/born-ml/exiobase/internal/layout"
	"github.com/born-ml/exiobase/internal/logging"
	"github.com/born-ml/exiobase/internal/matfile"
	"github.com/born-ml/exiobase/internal/table"
	"github.com/born-ml/exiobase/internal/telemetry"
	"github.com/born-ml/exiobase/internal/tensor"
)

// Load reads the label sets, decodes the matrix bundle and densifies the
// selected tables. Any failure aborts the load.
func Load(ctx context.Context, opts Options) (db *Database, err error) {
	if opts.Layout == nil {
		return nil, fmt.Errorf("%w: no layout", layout.ErrInvalidLayout)
	}
	l := opts.Layout
	if opts.Matching == "" {
		opts.Matching = layout.MatchStrict
	}

	ctx, span := telemetry.Tracer().Start(ctx, "database.Load",
		trace.WithAttributes(
			attribute.String("exio.layout", l.Name),
			attribute.String("exio.field_matching", string(opts.Matching)),
		))
	defer func() { endSpan(span, err) }()

	logger := logging.FromContext(ctx).With(slog.String("component", "database"))

	fields, err := l.TableFields(opts.Tables)
	if err != nil {
		return nil, err
	}

	db = &Database{Layout: l.Name}

	if err := phase(ctx, "database.labels", func(ctx context.Context) error {
		return db.loadLabels(ctx, l, opts, logger)
	}); err != nil {
		return nil, err
	}

	if err := phase(ctx, "database.bundle", func(ctx context.Context) error {
		return db.loadBundle(ctx, l, opts, logger)
	}); err != nil {
		return nil, err
	}

	db.Tables = make(map[string]*table.Table, len(fields))
	for _, f := range fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := phase(ctx, "database.densify", func(ctx context.Context) error {
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("exio.table", f.Name))
			t, err := db.densify(f)
			if err != nil {
				return err
			}
			db.Tables[f.Name] = t
			db.order = append(db.order, f.Name)
			r, c := t.Dims()
			logger.DebugContext(ctx, "table densified",
				slog.String("table", f.Name), slog.Int("rows", r), slog.Int("cols", c))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", f.Name, err)
		}
	}

	logger.InfoContext(ctx, "database loaded",
		slog.String("layout", l.Name),
		slog.Int("tables", len(db.Tables)),
		slog.Int("regions", len(db.Regions)),
		slog.Int("categories", len(db.Categories)))

	return db, nil
}

// loadLabels reads every label set of the layout concurrently.
func (db *Database) loadLabels(ctx context.Context, l *layout.Layout, opts Options, logger *slog.Logger) error {
	specs := make([]labels.Spec, 0, len(l.Labels))
	for _, ls := range l.Labels {
		path, ok := opts.LabelPaths[ls.Name]
		if !ok {
			return fmt.Errorf("no path for label set %q", ls.Name)
		}
		specs = append(specs, labels.Spec{Name: ls.Name, Path: path})
	}

	sets, err := labels.ReadAll(ctx, specs)
	if err != nil {
		return err
	}

	for _, ls := range l.Labels {
		s := sets[ls.Name]
		if opts.Matching == layout.MatchStrict {
			if err := ls.CheckLabelRows(s.Len()); err != nil {
				return err
			}
		}
		logger.DebugContext(ctx, "label set loaded",
			slog.String("labels", ls.Name), slog.String("path", s.Path()), slog.Int("rows", s.Len()))
	}

	pr := sets[l.ProductRegion.Labels]
	if db.Regions, err = pr.Unique(l.ProductRegion.RegionColumn); err != nil {
		return fmt.Errorf("label set %q: %w", l.ProductRegion.Labels, err)
	}
	if db.Categories, err = pr.Unique(l.ProductRegion.CategoryColumn); err != nil {
		return fmt.Errorf("label set %q: %w", l.ProductRegion.Labels, err)
	}

	db.Labels = sets
	return nil
}

// loadBundle decodes the MAT-file and maps the bundle struct's fields onto
// the layout positionally.
func (db *Database) loadBundle(ctx context.Context, l *layout.Layout, opts Options, logger *slog.Logger) error {
	f, err := matfile.Open(opts.MatPath)
	if err != nil {
		return err
	}
	db.Header = f.Header()
	db.Version = f.Version()

	v, err := f.Variable(l.Bundle)
	if err != nil {
		return err
	}
	bundle, ok := v.(*matfile.Struct)
	if !ok || bundle.Len() != 1 {
		return &layout.ValidationError{
			Type:    layout.TypeLayoutMismatch,
			Field:   l.Bundle,
			Details: fmt.Sprintf("expected a 1x1 struct, got %s %v", v.Class(), v.Shape()),
		}
	}

	mismatches, err := l.CheckFields(bundle.FieldNames(), opts.Matching)
	if err != nil {
		return err
	}
	for _, m := range mismatches {
		logger.WarnContext(ctx, "field name mismatch, using position",
			slog.Int("position", m.Position), slog.String("want", m.Want), slog.String("got", m.Got))
	}

	values := bundle.Element(0)
	db.Sparse = make(map[string]matfile.Value, len(values))
	for i, field := range l.Fields {
		if opts.Matching == layout.MatchStrict {
			if err := field.CheckShape(values[i].Shape()); err != nil {
				return err
			}
		}
		db.Sparse[field.Name] = values[i]
	}

	logger.DebugContext(ctx, "bundle decoded",
		slog.String("path", opts.MatPath), slog.String("version", db.Version), slog.Int("fields", len(values)))
	return nil
}

// densify converts one bundle field to a dense matrix and labels it.
func (db *Database) densify(f layout.Field) (*table.Table, error) {
	var (
		dense *mat.Dense
		err   error
	)
	switch v := db.Sparse[f.Name].(type) {
	case *matfile.Sparse:
		dense, err = v.ToDense()
	case *matfile.Numeric:
		dense, err = tensor.DenseFromColumnMajor(v.Shape(), v.Data())
	default:
		return nil, &layout.ValidationError{
			Type:    layout.TypeLayoutMismatch,
			Field:   f.Name,
			Details: fmt.Sprintf("cannot densify %s array", v.Class()),
		}
	}
	if err != nil {
		return nil, err
	}
	r, c := dense.Dims()

	rowSet := db.Labels[f.Rows]
	if err := layout.CheckLabels(f.Name, "rows", f.Rows, rowSet.Len(), r); err != nil {
		return nil, err
	}
	rows := table.FromLabels(rowSet)

	var cols *table.Index
	if f.Column != "" {
		if err := layout.CheckLabels(f.Name, "cols", f.Column, 1, c); err != nil {
			return nil, err
		}
		cols = table.Literal(f.Column)
	} else {
		colSet := db.Labels[f.Cols]
		if err := layout.CheckLabels(f.Name, "cols", f.Cols, colSet.Len(), c); err != nil {
			return nil, err
		}
		cols = table.FromLabels(colSet)
	}

	return table.New(f.Name, dense, rows, cols)
}

// phase runs fn inside a child span.
func phase(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := telemetry.Tracer().Start(ctx, name)
	defer func() { endSpan(span, err) }()
	return fn(ctx)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
