package database_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/born-ml/exiobase/internal/database"
	"github.com/born-ml/exiobase/internal/layout"
	"github.com/born-ml/exiobase/internal/logging"
	"github.com/born-ml/exiobase/internal/matfile"
	"github.com/born-ml/exiobase/internal/matfile/mattest"
	"github.com/born-ml/exiobase/internal/tensor"
)

const syntheticLayout = `
name: synthetic
mat_file: synthetic.mat
bundle: IO
labels:
  - {name: stressor, file: f.csv, rows: 3}
  - {name: value-added, file: v.csv, rows: 2}
  - {name: final-demand, file: y.csv, rows: 4}
  - {name: product-region, file: z.csv, rows: 5}
product_region:
  labels: product-region
  region_column: Exiobase - Region
  category_column: Exiobase - Category
fields:
  - {name: S, shape: [3, 5], rows: stressor, cols: product-region}
  - {name: A, shape: [5, 5], rows: product-region, cols: product-region}
  - {name: V, shape: [2, 5], rows: value-added, cols: product-region}
  - {name: Y, shape: [5, 4], rows: product-region, cols: final-demand}
  - {name: x, shape: [5, 1], rows: product-region, column: Exiobase - Total output}
  - {name: TC, shape: [2, 3, 3]}
  - {name: F, shape: [3, 5], rows: stressor, cols: product-region}
  - {name: F_hh, shape: [3, 4], rows: stressor, cols: final-demand}
  - {name: pop, shape: [1, 1]}
  - {name: gdp, shape: [1, 1]}
  - {name: VY, shape: [2, 4], rows: value-added, cols: final-demand}
tables: [A, F, F_hh, S, V, VY, x, Y]
`

// fixture is a synthetic database on disk: stressor=3, value-added=2,
// final-demand=4, product-region=5.
type fixture struct {
	dir    string
	layout *layout.Layout
	labels map[string]string // file name -> CSV content
	names  []string          // stored bundle field names
	values []matfile.Value   // bundle field values, parallel to names
	bundle matfile.Value     // replaces the bundle struct when set
	opts   mattest.Options
}

// pattern fills a row-major matrix with a sparse, position-dependent pattern.
func pattern(rows, cols int, seed float64) []float64 {
	out := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if (i+j)%2 == 0 {
				out[i*cols+j] = seed*100 + float64(i*cols+j) + 1
			}
		}
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	l, err := layout.Parse([]byte(syntheticLayout))
	require.NoError(t, err)

	tc, err := matfile.NewNumeric(tensor.Shape{2, 3, 3}, tensor.Float64, pattern(1, 18, 9))
	require.NoError(t, err)

	return &fixture{
		dir:    t.TempDir(),
		layout: l,
		labels: map[string]string{
			"f.csv": "Stressor,Unit\nCO2,kg\nCH4,kg\nLand use,km2\n",
			"v.csv": "Value added\nTaxes less subsidies\nCompensation of employees\n",
			"y.csv": "Exiobase - Region,Final demand\nAT,Households\nAT,Government\nBE,Households\nBE,Government\n",
			"z.csv": "Exiobase - Region,Exiobase - Category\nAT,Rice\nAT,Wheat\nAT,Cattle\nBE,Rice\nBE,Wheat\n",
		},
		names: []string{"S", "A", "V", "Y", "x", "TC", "F", "F_hh", "pop", "gdp", "VY"},
		values: []matfile.Value{
			mattest.Sparse(3, 5, pattern(3, 5, 1)...),
			mattest.Sparse(5, 5, pattern(5, 5, 2)...),
			mattest.Sparse(2, 5, pattern(2, 5, 3)...),
			mattest.Sparse(5, 4, pattern(5, 4, 4)...),
			mattest.Dense(5, 1, 10, 20, 30, 40, 50),
			tc,
			mattest.Sparse(3, 5, pattern(3, 5, 5)...),
			mattest.Sparse(3, 4, pattern(3, 4, 6)...),
			mattest.Struct([]string{"values"}, mattest.Dense(1, 2, 8.9, 11.5)),
			mattest.Struct([]string{"values"}, mattest.Dense(1, 2, 400e3, 500e3)),
			mattest.Sparse(2, 4, pattern(2, 4, 7)...),
		},
	}
}

// set replaces the stored value of a field.
func (f *fixture) set(name string, v matfile.Value) {
	for i, n := range f.names {
		if n == name {
			f.values[i] = v
			return
		}
	}
	panic("unknown field " + name)
}

// drop removes a field from the stored bundle.
func (f *fixture) drop(name string) {
	for i, n := range f.names {
		if n == name {
			f.names = append(f.names[:i], f.names[i+1:]...)
			f.values = append(f.values[:i], f.values[i+1:]...)
			return
		}
	}
	panic("unknown field " + name)
}

func (f *fixture) write(t *testing.T) database.Options {
	t.Helper()

	labelDir := filepath.Join(f.dir, "labs")
	require.NoError(t, os.MkdirAll(labelDir, 0o750))
	for name, content := range f.labels {
		require.NoError(t, os.WriteFile(filepath.Join(labelDir, name), []byte(content), 0o600))
	}

	bundle := f.bundle
	if bundle == nil {
		bundle = mattest.Struct(f.names, f.values...)
	}
	matPath := filepath.Join(f.dir, f.layout.MatFile)
	mattest.WriteFile(t, matPath, f.opts, matfile.Variable{Name: f.layout.Bundle, Value: bundle})

	paths := make(map[string]string)
	for _, ls := range f.layout.Labels {
		paths[ls.Name] = filepath.Join(labelDir, ls.File)
	}
	return database.Options{
		Layout:     f.layout,
		MatPath:    matPath,
		LabelPaths: paths,
		Matching:   layout.MatchStrict,
	}
}

func TestLoad(t *testing.T) {
	for _, tt := range []struct {
		name string
		opts mattest.Options
	}{
		{"uncompressed", mattest.Options{}},
		{"compressed", mattest.Options{Compress: true}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.opts = tt.opts
			db, err := database.Load(context.Background(), f.write(t))
			require.NoError(t, err)

			assert.Equal(t, mattest.DefaultHeader, db.Header)
			assert.Equal(t, "1.0", db.Version)
			assert.Equal(t, "synthetic", db.Layout)
			assert.Len(t, db.Sparse, 11)
			assert.Equal(t, []string{"A", "F", "F_hh", "S", "V", "VY", "x", "Y"}, db.TableNames())
			assert.Equal(t, []string{"AT", "BE"}, db.Regions)
			assert.Equal(t, []string{"Rice", "Wheat", "Cattle"}, db.Categories)

			shapes := map[string][2]int{
				"S": {3, 5}, "F": {3, 5}, "A": {5, 5}, "V": {2, 5},
				"Y": {5, 4}, "x": {5, 1}, "F_hh": {3, 4}, "VY": {2, 4},
			}
			for name, want := range shapes {
				tbl, err := db.Table(name)
				require.NoError(t, err, name)
				r, c := tbl.Dims()
				assert.Equal(t, want, [2]int{r, c}, name)
			}
		})
	}
}

func TestLoad_IndexLengthsMatchLabels(t *testing.T) {
	f := newFixture(t)
	db, err := database.Load(context.Background(), f.write(t))
	require.NoError(t, err)

	for _, name := range db.TableNames() {
		field, ok := f.layout.Field(name)
		require.True(t, ok)
		tbl := db.Tables[name]

		assert.Equal(t, db.Labels[field.Rows].Len(), tbl.Rows().Len(), name)
		if field.Column != "" {
			assert.Equal(t, 1, tbl.Cols().Len(), name)
		} else {
			assert.Equal(t, db.Labels[field.Cols].Len(), tbl.Cols().Len(), name)
		}
	}
}

func TestLoad_LabelsInFileOrder(t *testing.T) {
	f := newFixture(t)
	db, err := database.Load(context.Background(), f.write(t))
	require.NoError(t, err)

	s, err := db.Table("S")
	require.NoError(t, err)
	assert.Equal(t, []string{"Stressor", "Unit"}, s.Rows().Levels())
	assert.Equal(t, []string{"CO2", "kg"}, s.Rows().Key(0))
	assert.Equal(t, []string{"CH4", "kg"}, s.Rows().Key(1))
	assert.Equal(t, []string{"Land use", "km2"}, s.Rows().Key(2))
	assert.Equal(t, []string{"AT", "Rice"}, s.Cols().Key(0))
	assert.Equal(t, []string{"BE", "Wheat"}, s.Cols().Key(4))

	v, err := s.Value([]string{"Land use", "km2"}, []string{"BE", "Wheat"})
	require.NoError(t, err)
	assert.InDelta(t, pattern(3, 5, 1)[2*5+4], v, 1e-12)

	x, err := db.Table("x")
	require.NoError(t, err)
	total, err := x.Value([]string{"AT", "Cattle"}, []string{"Exiobase - Total output"})
	require.NoError(t, err)
	assert.InDelta(t, 30.0, total, 1e-12)
}

func TestLoad_DenseRoundTrip(t *testing.T) {
	f := newFixture(t)
	db, err := database.Load(context.Background(), f.write(t))
	require.NoError(t, err)

	for _, name := range []string{"A", "F", "F_hh", "S", "V", "VY", "Y"} {
		src, ok := db.Sparse[name].(*matfile.Sparse)
		require.True(t, ok, name)
		back := tensor.FromDense(db.Tables[name].Data())
		assert.True(t, back.Equal(src.CSC), "%s: dense form does not compress back to the stored matrix", name)
	}
}

func TestLoad_UndensifiedFields(t *testing.T) {
	f := newFixture(t)
	db, err := database.Load(context.Background(), f.write(t))
	require.NoError(t, err)

	tc, ok := db.Sparse["TC"].(*matfile.Numeric)
	require.True(t, ok)
	assert.Equal(t, tensor.Shape{2, 3, 3}, tc.Shape())

	pop, ok := db.Sparse["pop"].(*matfile.Struct)
	require.True(t, ok)
	v, ok := pop.Field("values")
	require.True(t, ok)
	assert.Equal(t, []float64{8.9, 11.5}, v.(*matfile.Numeric).Data())

	_, err = db.Table("TC")
	require.ErrorIs(t, err, database.ErrTableNotLoaded)
}

func TestLoad_MissingField(t *testing.T) {
	f := newFixture(t)
	f.drop("VY")

	_, err := database.Load(context.Background(), f.write(t))
	require.ErrorIs(t, err, layout.ErrLayoutMismatch)
	assert.Contains(t, err.Error(), "missing VY")
}

func TestLoad_MissingFieldPositional(t *testing.T) {
	f := newFixture(t)
	f.drop("F_hh")
	opts := f.write(t)
	opts.Matching = layout.MatchPositional

	_, err := database.Load(context.Background(), opts)
	require.ErrorIs(t, err, layout.ErrLayoutMismatch)
}

func TestLoad_LabelMismatch(t *testing.T) {
	t.Run("strict", func(t *testing.T) {
		f := newFixture(t)
		f.labels["f.csv"] = "Stressor,Unit\nCO2,kg\nCH4,kg\n"

		_, err := database.Load(context.Background(), f.write(t))
		require.ErrorIs(t, err, layout.ErrLabelMismatch)
	})

	t.Run("positional", func(t *testing.T) {
		f := newFixture(t)
		f.labels["z.csv"] = "Exiobase - Region,Exiobase - Category\nAT,Rice\nAT,Wheat\nAT,Cattle\nBE,Rice\n"
		opts := f.write(t)
		opts.Matching = layout.MatchPositional

		_, err := database.Load(context.Background(), opts)
		require.ErrorIs(t, err, layout.ErrLabelMismatch)
		assert.Contains(t, err.Error(), `table "A"`)
	})
}

func TestLoad_ShapeMismatch(t *testing.T) {
	f := newFixture(t)
	f.set("S", mattest.Sparse(3, 4))

	_, err := database.Load(context.Background(), f.write(t))
	require.ErrorIs(t, err, layout.ErrShapeMismatch)
}

func TestLoad_RenamedFields(t *testing.T) {
	rename := func(f *fixture) {
		for i := range f.names {
			f.names[i] = "field" + string(rune('a'+i))
		}
	}

	t.Run("strict", func(t *testing.T) {
		f := newFixture(t)
		rename(f)
		_, err := database.Load(context.Background(), f.write(t))
		require.ErrorIs(t, err, layout.ErrLayoutMismatch)
	})

	t.Run("positional", func(t *testing.T) {
		f := newFixture(t)
		rename(f)
		opts := f.write(t)
		opts.Matching = layout.MatchPositional

		var buf bytes.Buffer
		logger, err := logging.New("debug", "text", &buf)
		require.NoError(t, err)
		ctx := logging.WithLogger(context.Background(), logger)

		db, err := database.Load(ctx, opts)
		require.NoError(t, err)
		assert.Len(t, db.Tables, 8)
		assert.Contains(t, db.Sparse, "VY")
		assert.Contains(t, buf.String(), "field name mismatch")
		assert.Contains(t, buf.String(), "got=fielda")
	})
}

func TestLoad_TableSubset(t *testing.T) {
	f := newFixture(t)
	opts := f.write(t)
	opts.Tables = []string{"x", "S"}

	db, err := database.Load(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"S", "x"}, db.TableNames())
	assert.Len(t, db.Sparse, 11)

	_, err = db.Table("A")
	require.ErrorIs(t, err, database.ErrTableNotLoaded)

	opts.Tables = []string{"TC"}
	_, err = database.Load(context.Background(), opts)
	require.ErrorIs(t, err, layout.ErrInvalidLayout)
}

func TestLoad_BundleNotStruct(t *testing.T) {
	f := newFixture(t)
	f.bundle = mattest.Dense(2, 2)

	_, err := database.Load(context.Background(), f.write(t))
	require.ErrorIs(t, err, layout.ErrLayoutMismatch)
}

func TestLoad_NotDensifiable(t *testing.T) {
	f := newFixture(t)
	f.set("V", matfile.NewChar("value added"))
	opts := f.write(t)
	opts.Matching = layout.MatchPositional

	_, err := database.Load(context.Background(), opts)
	require.ErrorIs(t, err, layout.ErrLayoutMismatch)
	assert.Contains(t, err.Error(), "cannot densify char array")
}

func TestLoad_MissingFiles(t *testing.T) {
	t.Run("label file", func(t *testing.T) {
		f := newFixture(t)
		opts := f.write(t)
		require.NoError(t, os.Remove(opts.LabelPaths["final-demand"]))

		_, err := database.Load(context.Background(), opts)
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("mat file", func(t *testing.T) {
		f := newFixture(t)
		opts := f.write(t)
		require.NoError(t, os.Remove(opts.MatPath))

		_, err := database.Load(context.Background(), opts)
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("bundle variable", func(t *testing.T) {
		f := newFixture(t)
		opts := f.write(t)
		l := *f.layout
		l.Bundle = "EXIO"
		opts.Layout = &l

		_, err := database.Load(context.Background(), opts)
		require.ErrorIs(t, err, matfile.ErrVariableNotFound)
	})
}

func TestLoad_Canceled(t *testing.T) {
	f := newFixture(t)
	opts := f.write(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := database.Load(ctx, opts)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoad_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t)
	opts := f.write(t)
	opts.Tables = []string{"S"}

	_, err := database.Load(context.Background(), opts)
	require.NoError(t, err)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"database.labels", "database.bundle", "database.densify", "database.Load"}, names)
}

func TestSummaries(t *testing.T) {
	f := newFixture(t)
	opts := f.write(t)
	opts.Tables = []string{"S", "x"}

	db, err := database.Load(context.Background(), opts)
	require.NoError(t, err)

	sums := db.Summaries()
	require.Len(t, sums, 2)
	assert.Equal(t, database.Summary{Name: "S", Rows: 3, Cols: 5, SourceNNZ: 8}, sums[0])
	assert.Equal(t, database.Summary{Name: "x", Rows: 5, Cols: 1, SourceNNZ: 5}, sums[1])
}
