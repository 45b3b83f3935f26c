package matfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/born-ml/exiobase/internal/tensor"
)

// decoder walks the sub-elements of an in-memory miMATRIX body.
type decoder struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

// remaining reports whether unread bytes are left.
func (d *decoder) remaining() bool {
	return d.pos < len(d.buf)
}

// next reads one data element, honoring the small element format and
// 8-byte padding. The returned slice aliases the decoder buffer.
func (d *decoder) next() (DataType, []byte, error) {
	if len(d.buf)-d.pos < smallDataSize {
		return 0, nil, fmt.Errorf("%w: truncated tag at offset %d", ErrMalformed, d.pos)
	}

	word := d.order.Uint32(d.buf[d.pos:])
	if size := word >> 16; size != 0 {
		// Small data element: tag and up to 4 bytes of data share 8 bytes.
		typ := DataType(word & 0xFFFF)
		if size > smallDataSize || len(d.buf)-d.pos < tagSize {
			return 0, nil, fmt.Errorf("%w: bad small element at offset %d", ErrMalformed, d.pos)
		}
		data := d.buf[d.pos+smallDataSize : d.pos+smallDataSize+int(size)]
		d.pos += tagSize
		return typ, data, nil
	}

	if len(d.buf)-d.pos < tagSize {
		return 0, nil, fmt.Errorf("%w: truncated tag at offset %d", ErrMalformed, d.pos)
	}
	typ := DataType(word)
	size := int(d.order.Uint32(d.buf[d.pos+4:]))
	start := d.pos + tagSize
	if size < 0 || start+size > len(d.buf) {
		return 0, nil, fmt.Errorf("%w: %s element of %d bytes overruns buffer at offset %d",
			ErrMalformed, typ, size, d.pos)
	}
	data := d.buf[start : start+size]

	d.pos = start + size
	if typ != MiCompressed {
		d.pos += padding(size)
	}
	if d.pos > len(d.buf) {
		d.pos = len(d.buf)
	}
	return typ, data, nil
}

// expect reads the next element and checks its type is one of want.
func (d *decoder) expect(what string, want ...DataType) (DataType, []byte, error) {
	typ, data, err := d.next()
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", what, err)
	}
	for _, w := range want {
		if typ == w {
			return typ, data, nil
		}
	}
	return 0, nil, fmt.Errorf("%w: %s stored as %s", ErrMalformed, what, typ)
}

// matrix decodes an miMATRIX body: array flags, dimensions, name and the
// class-specific payload.
func (d *decoder) matrix() (string, uint32, Value, error) {
	// An empty miMATRIX is MATLAB's [].
	if len(d.buf) == 0 {
		return "", 0, Empty(), nil
	}

	_, flagsData, err := d.expect("array flags", MiUint32)
	if err != nil {
		return "", 0, nil, err
	}
	if len(flagsData) < 8 {
		return "", 0, nil, fmt.Errorf("%w: array flags of %d bytes", ErrMalformed, len(flagsData))
	}
	flags := d.order.Uint32(flagsData[0:4])
	class := Class(flags & classMask)

	dimsType, dimsData, err := d.expect("dimensions", MiInt32)
	if err != nil {
		return "", flags, nil, err
	}
	dims, err := d.ints(dimsType, dimsData)
	if err != nil {
		return "", flags, nil, err
	}
	shape := tensor.Shape(dims)
	if err := shape.Validate(); err != nil {
		return "", flags, nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	_, nameData, err := d.expect("array name", MiInt8, MiUint8)
	if err != nil {
		return "", flags, nil, err
	}
	name := string(nameData)

	if flags&FlagComplex != 0 {
		return name, flags, nil, fmt.Errorf("%w: complex %s array", ErrUnsupported, class)
	}

	var value Value
	switch class {
	case ClassCell:
		value, err = d.cell(shape)
	case ClassStruct:
		value, err = d.structure(shape)
	case ClassChar:
		value, err = d.char(shape)
	case ClassSparse:
		value, err = d.sparse(shape, flags&FlagLogical != 0)
	case ClassObject, ClassFunction, ClassOpaque:
		err = fmt.Errorf("%w: %s array", ErrUnsupported, class)
	default:
		dtype, ok := class.numericType()
		if !ok {
			err = fmt.Errorf("%w: array class %d", ErrUnsupported, class)
			break
		}
		value, err = d.numeric(shape, dtype, flags&FlagLogical != 0)
	}
	return name, flags, value, err
}

// numeric decodes the real part of a full numeric array.
func (d *decoder) numeric(shape tensor.Shape, dtype tensor.DataType, logical bool) (Value, error) {
	n := shape.NumElements()
	if n == 0 && !d.remaining() {
		return &Numeric{shape: shape, dtype: dtype, logical: logical}, nil
	}

	typ, data, err := d.next()
	if err != nil {
		return nil, fmt.Errorf("real part: %w", err)
	}
	values, err := d.floats(typ, data)
	if err != nil {
		return nil, err
	}
	if len(values) != n {
		return nil, fmt.Errorf("%w: shape %v requires %d elements, got %d", ErrMalformed, shape, n, len(values))
	}
	if logical {
		dtype = tensor.Bool
	}
	return &Numeric{shape: shape, dtype: dtype, logical: logical, data: values}, nil
}

// sparse decodes row indices (ir), column pointers (jc) and values (pr).
func (d *decoder) sparse(shape tensor.Shape, logical bool) (Value, error) {
	if !shape.IsMatrix() {
		return nil, fmt.Errorf("%w: sparse array with shape %v", ErrMalformed, shape)
	}
	rows, cols := shape[0], shape[1]

	irType, irData, err := d.next()
	if err != nil {
		return nil, fmt.Errorf("row indices: %w", err)
	}
	ir, err := d.ints(irType, irData)
	if err != nil {
		return nil, fmt.Errorf("row indices: %w", err)
	}

	jcType, jcData, err := d.next()
	if err != nil {
		return nil, fmt.Errorf("column pointers: %w", err)
	}
	jc, err := d.ints(jcType, jcData)
	if err != nil {
		return nil, fmt.Errorf("column pointers: %w", err)
	}
	if len(jc) != cols+1 {
		return nil, fmt.Errorf("%w: %d column pointers for %d columns", ErrMalformed, len(jc), cols)
	}
	if nnz := jc[cols]; nnz < 0 || nnz > len(ir) {
		return nil, fmt.Errorf("%w: %d stored entries for %d row indices", ErrMalformed, nnz, len(ir))
	}

	var pr []float64
	if d.remaining() {
		prType, prData, err := d.next()
		if err != nil {
			return nil, fmt.Errorf("values: %w", err)
		}
		if pr, err = d.floats(prType, prData); err != nil {
			return nil, fmt.Errorf("values: %w", err)
		}
	}
	// Logical sparse matrices may omit pr; every stored entry is true.
	if pr == nil && logical {
		pr = make([]float64, jc[cols])
		for i := range pr {
			pr[i] = 1
		}
	}

	csc, err := tensor.NewCSC(rows, cols, jc, ir, pr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return NewSparse(csc, logical), nil
}

// char decodes a character array.
func (d *decoder) char(shape tensor.Shape) (Value, error) {
	if shape.NumElements() == 0 && !d.remaining() {
		return &Char{shape: shape}, nil
	}

	typ, data, err := d.next()
	if err != nil {
		return nil, fmt.Errorf("characters: %w", err)
	}

	var runes []rune
	switch typ {
	case MiUTF8:
		runes = []rune(string(data))
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: invalid UTF-8 in char array", ErrMalformed)
		}
	case MiUTF16, MiUint16:
		units := make([]uint16, len(data)/2)
		for i := range units {
			units[i] = d.order.Uint16(data[2*i:])
		}
		runes = utf16.Decode(units)
	case MiInt8, MiUint8:
		runes = make([]rune, len(data))
		for i, b := range data {
			runes[i] = rune(b)
		}
	default:
		return nil, fmt.Errorf("%w: char data stored as %s", ErrUnsupported, typ)
	}

	if len(runes) != shape.NumElements() {
		return nil, fmt.Errorf("%w: char shape %v holds %d characters", ErrMalformed, shape, len(runes))
	}
	return &Char{shape: shape, runes: runes}, nil
}

// structure decodes a struct array: field name length, packed field names
// and one miMATRIX per field per element.
func (d *decoder) structure(shape tensor.Shape) (Value, error) {
	lenType, lenData, err := d.expect("field name length", MiInt32)
	if err != nil {
		return nil, err
	}
	lens, err := d.ints(lenType, lenData)
	if err != nil || len(lens) != 1 || lens[0] <= 0 {
		return nil, fmt.Errorf("%w: field name length", ErrMalformed)
	}
	width := lens[0]

	_, namesData, err := d.expect("field names", MiInt8, MiUint8)
	if err != nil {
		return nil, err
	}
	if len(namesData)%width != 0 {
		return nil, fmt.Errorf("%w: %d bytes of field names for width %d", ErrMalformed, len(namesData), width)
	}
	fields := make([]string, len(namesData)/width)
	for i := range fields {
		fields[i] = cString(namesData[i*width : (i+1)*width])
	}

	n, err := d.elementCount(shape, len(fields))
	if err != nil {
		return nil, err
	}
	elems := make([][]Value, n)
	for e := range elems {
		elems[e] = make([]Value, len(fields))
		for f, field := range fields {
			v, err := d.child()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field, err)
			}
			elems[e][f] = v
		}
	}

	return &Struct{shape: shape, fields: fields, elems: elems}, nil
}

// cell decodes the elements of a cell array.
func (d *decoder) cell(shape tensor.Shape) (Value, error) {
	n, err := d.elementCount(shape, 1)
	if err != nil {
		return nil, err
	}
	elems := make([]Value, n)
	for i := range elems {
		v, err := d.child()
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		elems[i] = v
	}
	return &Cell{shape: shape, elems: elems}, nil
}

// elementCount returns the number of elements in shape, rejecting counts the
// unread buffer cannot hold when each element carries perElement nested
// arrays of at least one tag each.
func (d *decoder) elementCount(shape tensor.Shape, perElement int) (int, error) {
	if slices.Contains(shape, 0) {
		return 0, nil
	}
	limit := len(d.buf)
	if perElement > 0 {
		limit = (len(d.buf) - d.pos) / (tagSize * perElement)
	}
	n := 1
	for _, dim := range shape {
		if dim > limit/n {
			return 0, fmt.Errorf("%w: shape %v exceeds the %d bytes left", ErrMalformed, shape, len(d.buf)-d.pos)
		}
		n *= dim
	}
	return n, nil
}

// child decodes a nested miMATRIX element.
func (d *decoder) child() (Value, error) {
	_, body, err := d.expect("nested array", MiMatrix)
	if err != nil {
		return nil, err
	}
	sub := &decoder{buf: body, order: d.order}
	_, _, v, err := sub.matrix()
	return v, err
}

// floats widens a numeric payload to float64.
func (d *decoder) floats(typ DataType, data []byte) ([]float64, error) {
	dt, ok := typ.elementType()
	if !ok {
		return nil, fmt.Errorf("%w: numeric data stored as %s", ErrUnsupported, typ)
	}
	size := dt.Size()
	if len(data)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %s size", ErrMalformed, len(data), typ)
	}

	out := make([]float64, len(data)/size)
	o := d.order
	for i := range out {
		b := data[i*size:]
		switch dt {
		case tensor.Float64:
			out[i] = math.Float64frombits(o.Uint64(b))
		case tensor.Float32:
			out[i] = float64(math.Float32frombits(o.Uint32(b)))
		case tensor.Int8:
			out[i] = float64(int8(b[0]))
		case tensor.Uint8:
			out[i] = float64(b[0])
		case tensor.Int16:
			out[i] = float64(int16(o.Uint16(b)))
		case tensor.Uint16:
			out[i] = float64(o.Uint16(b))
		case tensor.Int32:
			out[i] = float64(int32(o.Uint32(b)))
		case tensor.Uint32:
			out[i] = float64(o.Uint32(b))
		case tensor.Int64:
			out[i] = float64(int64(o.Uint64(b)))
		case tensor.Uint64:
			out[i] = float64(o.Uint64(b))
		}
	}
	return out, nil
}

// ints decodes an integer payload (dimensions, sparse indices).
func (d *decoder) ints(typ DataType, data []byte) ([]int, error) {
	dt, ok := typ.elementType()
	if !ok || dt.IsFloat() {
		return nil, fmt.Errorf("%w: integer data stored as %s", ErrMalformed, typ)
	}
	size := dt.Size()
	if len(data)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %s size", ErrMalformed, len(data), typ)
	}

	out := make([]int, len(data)/size)
	o := d.order
	for i := range out {
		b := data[i*size:]
		switch dt {
		case tensor.Int8:
			out[i] = int(int8(b[0]))
		case tensor.Uint8:
			out[i] = int(b[0])
		case tensor.Int16:
			out[i] = int(int16(o.Uint16(b)))
		case tensor.Uint16:
			out[i] = int(o.Uint16(b))
		case tensor.Int32:
			out[i] = int(int32(o.Uint32(b)))
		case tensor.Uint32:
			out[i] = int(o.Uint32(b))
		case tensor.Int64:
			out[i] = int(int64(o.Uint64(b))) //nolint:gosec // G115: indices fit in int on 64-bit platforms
		case tensor.Uint64:
			out[i] = int(o.Uint64(b)) //nolint:gosec // G115: indices fit in int on 64-bit platforms
		}
	}
	return out, nil
}

// cString returns the bytes up to the first NUL.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
