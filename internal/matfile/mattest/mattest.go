// Package mattest writes small MAT-files for tests.
//
// The encoder covers the subset of the Level 5 format the reader in
// package matfile understands: numeric, logical, sparse, char, struct and
// cell arrays, optionally zlib-compressed, in either byte order.
package mattest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"testing"
	"unicode/utf16"

	"github.com/klauspost/compress/zlib"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/exiobase/internal/matfile"
	"github.com/born-ml/exiobase/internal/tensor"
)

// DefaultHeader is the descriptive text written when Options.Header is empty.
const DefaultHeader = "MATLAB 5.0 MAT-file, Platform: GLNXA64, Created on: Mon Jan  1 00:00:00 2024"

// Options controls how a file is encoded.
type Options struct {
	Order    binary.ByteOrder // defaults to little-endian
	Compress bool             // wrap each variable in miCOMPRESSED
	Header   string
}

// Encode writes a MAT-file holding vars to w.
func Encode(w io.Writer, opts Options, vars ...matfile.Variable) error {
	e := &encoder{order: opts.Order}
	if e.order == nil {
		e.order = binary.LittleEndian
	}

	header := opts.Header
	if header == "" {
		header = DefaultHeader
	}
	if len(header) > matfile.HeaderTextSize {
		return fmt.Errorf("header text longer than %d bytes", matfile.HeaderTextSize)
	}

	hdr := bytes.Repeat([]byte{' '}, matfile.HeaderSize)
	copy(hdr, header)
	e.order.PutUint64(hdr[matfile.HeaderTextSize:], 0)
	e.order.PutUint16(hdr[124:], matfile.Version5)
	e.order.PutUint16(hdr[126:], uint16('M')<<8|uint16('I'))
	if _, err := w.Write(hdr); err != nil {
		return err
	}

	for _, v := range vars {
		body, err := e.matrix(v.Name, v.Global, v.Value)
		if err != nil {
			return fmt.Errorf("variable %q: %w", v.Name, err)
		}
		var elem bytes.Buffer
		e.element(&elem, matfile.MiMatrix, body)

		if opts.Compress {
			var z bytes.Buffer
			zw := zlib.NewWriter(&z)
			if _, err := zw.Write(elem.Bytes()); err != nil {
				return err
			}
			if err := zw.Close(); err != nil {
				return err
			}
			elem.Reset()
			e.tag(&elem, matfile.MiCompressed, z.Len())
			elem.Write(z.Bytes())
		}

		if _, err := w.Write(elem.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile encodes vars into a file at path, failing the test on error.
func WriteFile(tb testing.TB, path string, opts Options, vars ...matfile.Variable) {
	tb.Helper()

	var buf bytes.Buffer
	if err := Encode(&buf, opts, vars...); err != nil {
		tb.Fatalf("mattest: encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		tb.Fatalf("mattest: write %s: %v", path, err)
	}
}

// Dense builds a double array from row-major values.
func Dense(rows, cols int, rowMajor ...float64) *matfile.Numeric {
	if len(rowMajor) == 0 {
		rowMajor = make([]float64, rows*cols)
	}
	colMajor := make([]float64, len(rowMajor))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			colMajor[j*rows+i] = rowMajor[i*cols+j]
		}
	}
	n, err := matfile.NewNumeric(tensor.Shape{rows, cols}, tensor.Float64, colMajor)
	if err != nil {
		panic(err)
	}
	return n
}

// Sparse compresses a row-major matrix into a sparse double array.
func Sparse(rows, cols int, rowMajor ...float64) *matfile.Sparse {
	if len(rowMajor) == 0 {
		rowMajor = make([]float64, rows*cols)
	}
	return matfile.NewSparse(tensor.FromDense(mat.NewDense(rows, cols, rowMajor)), false)
}

// Struct builds a 1x1 struct; values are given in field order.
func Struct(fields []string, values ...matfile.Value) *matfile.Struct {
	s, err := matfile.NewStruct(tensor.Shape{1, 1}, fields, [][]matfile.Value{values})
	if err != nil {
		panic(err)
	}
	return s
}

type encoder struct {
	order binary.ByteOrder
}

// tag writes a full 8-byte tag.
func (e *encoder) tag(buf *bytes.Buffer, typ matfile.DataType, size int) {
	var t [8]byte
	e.order.PutUint32(t[0:], uint32(typ))
	e.order.PutUint32(t[4:], uint32(size)) //nolint:gosec // G115: test fixtures are small
	buf.Write(t[:])
}

// element writes a data element, using the small format for 1-4 bytes.
func (e *encoder) element(buf *bytes.Buffer, typ matfile.DataType, data []byte) {
	if n := len(data); n > 0 && n <= 4 {
		var t [8]byte
		e.order.PutUint32(t[0:], uint32(n)<<16|uint32(typ)) //nolint:gosec // G115: n <= 4
		copy(t[4:], data)
		buf.Write(t[:])
		return
	}
	e.tag(buf, typ, len(data))
	buf.Write(data)
	if pad := (8 - len(data)%8) % 8; pad > 0 {
		buf.Write(make([]byte, pad))
	}
}

// matrix encodes the body of an miMATRIX element.
func (e *encoder) matrix(name string, global bool, v matfile.Value) ([]byte, error) {
	var buf bytes.Buffer

	flags := uint32(v.Class())
	var nzmax uint32
	switch t := v.(type) {
	case *matfile.Numeric:
		if t.Logical() {
			flags |= matfile.FlagLogical
		}
	case *matfile.Sparse:
		if t.Logical() {
			flags |= matfile.FlagLogical
		}
		nzmax = uint32(t.NNZ()) //nolint:gosec // G115: test fixtures are small
	}
	if global {
		flags |= matfile.FlagGlobal
	}
	af := make([]byte, 8)
	e.order.PutUint32(af[0:], flags)
	e.order.PutUint32(af[4:], nzmax)
	e.element(&buf, matfile.MiUint32, af)

	shape := v.Shape()
	e.element(&buf, matfile.MiInt32, e.int32s(shape))
	e.element(&buf, matfile.MiInt8, []byte(name))

	switch t := v.(type) {
	case *matfile.Numeric:
		dt := t.DType()
		e.element(&buf, matfile.DataTypeFor(dt), e.values(dt, t.Data()))

	case *matfile.Sparse:
		e.element(&buf, matfile.MiInt32, e.int32s(t.RowIndices()))
		e.element(&buf, matfile.MiInt32, e.int32s(t.ColPtr()))
		e.element(&buf, matfile.MiDouble, e.values(tensor.Float64, t.Values()))

	case *matfile.Char:
		var runes []rune
		for _, row := range t.Rows() {
			runes = append(runes, []rune(row)...)
		}
		units := utf16.Encode(runes)
		data := make([]byte, 2*len(units))
		for i, u := range units {
			e.order.PutUint16(data[2*i:], u)
		}
		e.element(&buf, matfile.MiUint16, data)

	case *matfile.Struct:
		width := 1
		for _, f := range t.FieldNames() {
			if len(f)+1 > width {
				width = len(f) + 1
			}
		}
		e.element(&buf, matfile.MiInt32, e.int32s([]int{width}))
		names := make([]byte, width*len(t.FieldNames()))
		for i, f := range t.FieldNames() {
			copy(names[i*width:], f)
		}
		e.element(&buf, matfile.MiInt8, names)
		for i := 0; i < t.Len(); i++ {
			for _, fv := range t.Element(i) {
				if err := e.child(&buf, fv); err != nil {
					return nil, err
				}
			}
		}

	case *matfile.Cell:
		for _, c := range t.Elements() {
			if err := e.child(&buf, c); err != nil {
				return nil, err
			}
		}

	default:
		return nil, fmt.Errorf("cannot encode %T", v)
	}

	return buf.Bytes(), nil
}

// child writes a nested, unnamed miMATRIX element.
func (e *encoder) child(buf *bytes.Buffer, v matfile.Value) error {
	body, err := e.matrix("", false, v)
	if err != nil {
		return err
	}
	e.tag(buf, matfile.MiMatrix, len(body))
	buf.Write(body)
	return nil
}

func (e *encoder) int32s(vals []int) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		e.order.PutUint32(out[4*i:], uint32(int32(v))) //nolint:gosec // G115: test fixtures are small
	}
	return out
}

// values narrows float64 data to the storage type of dt.
func (e *encoder) values(dt tensor.DataType, vals []float64) []byte {
	size := dt.Size()
	out := make([]byte, size*len(vals))
	for i, v := range vals {
		b := out[i*size:]
		switch dt {
		case tensor.Float64:
			e.order.PutUint64(b, math.Float64bits(v))
		case tensor.Float32:
			e.order.PutUint32(b, math.Float32bits(float32(v)))
		case tensor.Int8, tensor.Uint8, tensor.Bool:
			b[0] = byte(int64(v))
		case tensor.Int16, tensor.Uint16:
			e.order.PutUint16(b, uint16(int64(v))) //nolint:gosec // G115: wraps like a C cast
		case tensor.Int32, tensor.Uint32:
			e.order.PutUint32(b, uint32(int64(v))) //nolint:gosec // G115: wraps like a C cast
		case tensor.Int64, tensor.Uint64:
			e.order.PutUint64(b, uint64(int64(v))) //nolint:gosec // G115: wraps like a C cast
		}
	}
	return out
}
