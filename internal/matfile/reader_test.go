package matfile_test

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/exiobase/internal/matfile"
	"github.com/born-ml/exiobase/internal/matfile/mattest"
	"github.com/born-ml/exiobase/internal/tensor"
)

func encode(t *testing.T, opts mattest.Options, vars ...matfile.Variable) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, mattest.Encode(&buf, opts, vars...))
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) *matfile.File {
	t.Helper()
	f, err := matfile.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return f
}

func TestDecode_Header(t *testing.T) {
	data := encode(t, mattest.Options{Header: "MATLAB 5.0 MAT-file, written by test"})
	f := decode(t, data)

	assert.Equal(t, "MATLAB 5.0 MAT-file, written by test", f.Header())
	assert.Equal(t, "1.0", f.Version())
	assert.Equal(t, binary.LittleEndian, f.ByteOrder())
	assert.Empty(t, f.Names())
}

func TestDecode_Formats(t *testing.T) {
	formats := []struct {
		name string
		opts mattest.Options
	}{
		{"little-endian", mattest.Options{}},
		{"big-endian", mattest.Options{Order: binary.BigEndian}},
		{"compressed", mattest.Options{Compress: true}},
		{"compressed big-endian", mattest.Options{Order: binary.BigEndian, Compress: true}},
	}

	for _, tt := range formats {
		t.Run(tt.name, func(t *testing.T) {
			data := encode(t, tt.opts,
				matfile.Variable{Name: "A", Value: mattest.Sparse(2, 3, 1, 0, 2, 0, 3, 0)},
				matfile.Variable{Name: "x", Value: mattest.Dense(2, 1, 5, 6)},
				matfile.Variable{Name: "label", Value: matfile.NewChar("Exiobase")},
			)
			f := decode(t, data)

			assert.Equal(t, tt.opts.Order == binary.BigEndian, f.ByteOrder() == binary.BigEndian)
			assert.Equal(t, []string{"A", "x", "label"}, f.Names())

			a, err := f.Variable("A")
			require.NoError(t, err)
			sp, ok := a.(*matfile.Sparse)
			require.True(t, ok, "A decoded as %T", a)
			assert.Equal(t, tensor.Shape{2, 3}, sp.Shape())
			assert.Equal(t, 3, sp.NNZ())
			assert.Equal(t, 1.0, sp.At(0, 0))
			assert.Equal(t, 2.0, sp.At(0, 2))
			assert.Equal(t, 3.0, sp.At(1, 1))
			assert.Equal(t, 0.0, sp.At(1, 0))

			x, err := f.Variable("x")
			require.NoError(t, err)
			num, ok := x.(*matfile.Numeric)
			require.True(t, ok)
			assert.Equal(t, matfile.ClassDouble, num.Class())
			assert.Equal(t, []float64{5, 6}, num.Data())

			label, err := f.Variable("label")
			require.NoError(t, err)
			assert.Equal(t, "Exiobase", label.(*matfile.Char).String())
		})
	}
}

func TestDecode_Struct(t *testing.T) {
	inner := mattest.Struct([]string{"value"}, mattest.Dense(1, 1, 42))
	io := mattest.Struct(
		[]string{"S", "name", "nested", "empty"},
		mattest.Sparse(1, 2, 0, 7),
		matfile.NewChar("io"),
		inner,
		matfile.Empty(),
	)
	f := decode(t, encode(t, mattest.Options{Compress: true}, matfile.Variable{Name: "IO", Value: io}))

	v, err := f.Variable("IO")
	require.NoError(t, err)
	s, ok := v.(*matfile.Struct)
	require.True(t, ok)

	assert.Equal(t, []string{"S", "name", "nested", "empty"}, s.FieldNames())
	assert.Equal(t, 1, s.Len())
	require.Len(t, s.Element(0), 4)

	field, ok := s.Field("S")
	require.True(t, ok)
	assert.Equal(t, 7.0, field.(*matfile.Sparse).At(0, 1))

	nested, ok := s.Field("nested")
	require.True(t, ok)
	value, ok := nested.(*matfile.Struct).Field("value")
	require.True(t, ok)
	assert.Equal(t, []float64{42}, value.(*matfile.Numeric).Data())

	empty, ok := s.Field("empty")
	require.True(t, ok)
	assert.Equal(t, tensor.Shape{0, 0}, empty.Shape())

	_, ok = s.Field("missing")
	assert.False(t, ok)
}

func TestDecode_StructArray(t *testing.T) {
	arr, err := matfile.NewStruct(tensor.Shape{1, 2}, []string{"region", "pop"}, [][]matfile.Value{
		{matfile.NewChar("AT"), mattest.Dense(1, 1, 8.4)},
		{matfile.NewChar("BE"), mattest.Dense(1, 1, 10.9)},
	})
	require.NoError(t, err)

	f := decode(t, encode(t, mattest.Options{}, matfile.Variable{Name: "pop", Value: arr}))
	v, err := f.Variable("pop")
	require.NoError(t, err)

	s := v.(*matfile.Struct)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "BE", s.Element(1)[0].(*matfile.Char).String())
	assert.Equal(t, []float64{10.9}, s.Element(1)[1].(*matfile.Numeric).Data())
}

func TestDecode_Cell(t *testing.T) {
	cell, err := matfile.NewCell(tensor.Shape{2, 1}, []matfile.Value{
		matfile.NewChar("CO2"),
		mattest.Dense(1, 3, 1, 2, 3),
	})
	require.NoError(t, err)

	f := decode(t, encode(t, mattest.Options{}, matfile.Variable{Name: "c", Value: cell}))
	v, err := f.Variable("c")
	require.NoError(t, err)

	c := v.(*matfile.Cell)
	assert.Equal(t, tensor.Shape{2, 1}, c.Shape())
	require.Len(t, c.Elements(), 2)
	assert.Equal(t, "CO2", c.Elements()[0].(*matfile.Char).String())
}

func TestDecode_IntegerClassWidened(t *testing.T) {
	n, err := matfile.NewNumeric(tensor.Shape{1, 3}, tensor.Int32, []float64{-1, 0, 70000})
	require.NoError(t, err)
	b, err := matfile.NewNumeric(tensor.Shape{1, 2}, tensor.Bool, []float64{1, 0})
	require.NoError(t, err)

	f := decode(t, encode(t, mattest.Options{Order: binary.BigEndian},
		matfile.Variable{Name: "n", Value: n},
		matfile.Variable{Name: "b", Value: b},
	))

	v, err := f.Variable("n")
	require.NoError(t, err)
	num := v.(*matfile.Numeric)
	assert.Equal(t, matfile.ClassInt32, num.Class())
	assert.Equal(t, []float64{-1, 0, 70000}, num.Data())

	v, err = f.Variable("b")
	require.NoError(t, err)
	logical := v.(*matfile.Numeric)
	assert.True(t, logical.Logical())
	assert.Equal(t, []float64{1, 0}, logical.Data())
}

func TestDecode_ThreeDimensional(t *testing.T) {
	// 2x2x2 trade cube, column-major 1..8.
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	cube, err := matfile.NewNumeric(tensor.Shape{2, 2, 2}, tensor.Float64, data)
	require.NoError(t, err)

	f := decode(t, encode(t, mattest.Options{Compress: true}, matfile.Variable{Name: "TC", Value: cube}))
	v, err := f.Variable("TC")
	require.NoError(t, err)

	tc := v.(*matfile.Numeric)
	assert.Equal(t, tensor.Shape{2, 2, 2}, tc.Shape())
	assert.Equal(t, 1.0, tc.At(0, 0, 0))
	assert.Equal(t, 2.0, tc.At(1, 0, 0))
	assert.Equal(t, 3.0, tc.At(0, 1, 0))
	assert.Equal(t, 8.0, tc.At(1, 1, 1))
}

func TestDecode_CharRows(t *testing.T) {
	f := decode(t, encode(t, mattest.Options{}, matfile.Variable{Name: "c", Value: matfile.NewChar("ad")}))
	v, err := f.Variable("c")
	require.NoError(t, err)
	assert.Equal(t, []string{"ad"}, v.(*matfile.Char).Rows())
}

func TestDecode_GlobalFlag(t *testing.T) {
	f := decode(t, encode(t, mattest.Options{},
		matfile.Variable{Name: "g", Global: true, Value: mattest.Dense(1, 1, 1)},
	))
	require.Len(t, f.Variables(), 1)
	assert.True(t, f.Variables()[0].Global)
}

func TestDecode_UnnamedSkipped(t *testing.T) {
	f := decode(t, encode(t, mattest.Options{},
		matfile.Variable{Name: "", Value: mattest.Dense(1, 1, 1)},
		matfile.Variable{Name: "kept", Value: mattest.Dense(1, 1, 2)},
	))
	assert.Equal(t, []string{"kept"}, f.Names())
}

func TestFile_VariableNotFound(t *testing.T) {
	f := decode(t, encode(t, mattest.Options{}))
	_, err := f.Variable("IO")
	assert.ErrorIs(t, err, matfile.ErrVariableNotFound)
}

func TestDecode_InvalidHeader(t *testing.T) {
	data := encode(t, mattest.Options{})

	t.Run("short", func(t *testing.T) {
		_, err := matfile.Decode(bytes.NewReader(data[:64]))
		assert.ErrorIs(t, err, matfile.ErrInvalidHeader)
	})

	t.Run("endian indicator", func(t *testing.T) {
		bad := bytes.Clone(data)
		copy(bad[126:], "XX")
		_, err := matfile.Decode(bytes.NewReader(bad))
		assert.ErrorIs(t, err, matfile.ErrInvalidHeader)
	})

	t.Run("v7.3", func(t *testing.T) {
		bad := bytes.Clone(data)
		binary.LittleEndian.PutUint16(bad[124:], matfile.Version73)
		_, err := matfile.Decode(bytes.NewReader(bad))
		assert.ErrorIs(t, err, matfile.ErrUnsupported)
	})

	t.Run("unknown version", func(t *testing.T) {
		bad := bytes.Clone(data)
		binary.LittleEndian.PutUint16(bad[124:], 0x0300)
		_, err := matfile.Decode(bytes.NewReader(bad))
		assert.ErrorIs(t, err, matfile.ErrInvalidHeader)
	})
}

func TestDecode_Truncated(t *testing.T) {
	data := encode(t, mattest.Options{}, matfile.Variable{Name: "A", Value: mattest.Sparse(3, 3, 1, 0, 0, 0, 1, 0, 0, 0, 1)})

	_, err := matfile.Decode(bytes.NewReader(data[:len(data)-12]))
	assert.ErrorIs(t, err, matfile.ErrMalformed)
}

func TestDecode_Complex(t *testing.T) {
	data := encode(t, mattest.Options{}, matfile.Variable{Name: "z", Value: mattest.Dense(1, 1, 1)})

	// Header (128) + miMATRIX tag (8) + array flags tag (8) = flags word.
	flags := binary.LittleEndian.Uint32(data[144:])
	binary.LittleEndian.PutUint32(data[144:], flags|matfile.FlagComplex)

	_, err := matfile.Decode(bytes.NewReader(data))
	assert.ErrorIs(t, err, matfile.ErrUnsupported)
}

func TestDecode_UnsupportedTopLevel(t *testing.T) {
	data := encode(t, mattest.Options{})
	tag := make([]byte, 8)
	binary.LittleEndian.PutUint32(tag, uint32(matfile.MiDouble))
	data = append(data, tag...)

	_, err := matfile.Decode(bytes.NewReader(data))
	assert.ErrorIs(t, err, matfile.ErrUnsupported)
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.mat")
	mattest.WriteFile(t, path, mattest.Options{Compress: true},
		matfile.Variable{Name: "IO", Value: mattest.Struct([]string{"x"}, mattest.Dense(2, 1, 1, 2))},
	)

	f, err := matfile.Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"IO"}, f.Names())

	_, err = matfile.Open(filepath.Join(t.TempDir(), "missing.mat"))
	assert.Error(t, err)
}

func TestDataTypeString(t *testing.T) {
	assert.Equal(t, "miCOMPRESSED", matfile.MiCompressed.String())
	assert.Equal(t, "miDOUBLE", matfile.MiDouble.String())
	assert.Equal(t, "sparse", matfile.ClassSparse.String())
	assert.Equal(t, "struct", matfile.ClassStruct.String())
}
