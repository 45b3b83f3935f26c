package matfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"
)

// MaxElementSize bounds a single top-level data element (16 GiB).
// The EXIOBASE coefficient matrix is the largest element in practice.
const MaxElementSize = 16 << 30

// File is a fully decoded MAT-file.
type File struct {
	header       string
	version      uint16
	order        binary.ByteOrder
	subsysOffset uint64
	vars         []Variable
	index        map[string]int
}

// Open reads and decodes the MAT-file at path.
func Open(path string) (*File, error) {
	//nolint:gosec // G304: File path comes from configuration, which is expected for data loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	f, err := Decode(bufio.NewReaderSize(file, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Decode reads a MAT-file from r.
func Decode(r io.Reader) (*File, error) {
	f := &File{index: make(map[string]int)}

	if err := f.parseHeader(r); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	for i := 0; ; i++ {
		v, err := f.readTopLevel(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read element[%d]: %w", i, err)
		}
		// Unnamed elements hold subsystem data (function workspace).
		if v == nil || v.Name == "" {
			continue
		}
		f.index[v.Name] = len(f.vars)
		f.vars = append(f.vars, *v)
	}

	return f, nil
}

// parseHeader parses the fixed 128-byte header.
func (f *File) parseHeader(r io.Reader) error {
	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	switch string(hdr[126:128]) {
	case endianLittle:
		f.order = binary.LittleEndian
	case endianBig:
		f.order = binary.BigEndian
	default:
		return fmt.Errorf("%w: endian indicator %q", ErrInvalidHeader, hdr[126:128])
	}

	f.version = f.order.Uint16(hdr[124:126])
	switch f.version {
	case Version5:
	case Version73:
		return fmt.Errorf("%w: v7.3 (HDF5) MAT-file", ErrUnsupported)
	default:
		return fmt.Errorf("%w: version 0x%04X", ErrInvalidHeader, f.version)
	}

	f.header = string(bytes.TrimRight(hdr[:HeaderTextSize], " \t\n\x00"))
	f.subsysOffset = f.order.Uint64(hdr[HeaderTextSize : HeaderTextSize+SubsysOffsetSize])

	return nil
}

// readTopLevel reads one top-level data element.
// It returns io.EOF when the stream ends cleanly between elements.
func (f *File) readTopLevel(r io.Reader) (*Variable, error) {
	var tag [tagSize]byte
	n, err := io.ReadFull(r, tag[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: truncated tag: %w", ErrMalformed, err)
	}

	typ := DataType(f.order.Uint32(tag[0:4]))
	size := uint64(f.order.Uint32(tag[4:8]))
	if size > MaxElementSize {
		return nil, fmt.Errorf("%w: element size %d exceeds limit", ErrMalformed, size)
	}

	switch typ {
	case MiMatrix:
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("%w: truncated matrix: %w", ErrMalformed, err)
		}
		// The last element may omit its trailing padding.
		if pad := padding(int(size)); pad > 0 {
			if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: padding: %w", ErrMalformed, err)
			}
		}
		return f.decodeVariable(body)

	case MiCompressed:
		lr := io.LimitReader(r, int64(size)) //nolint:gosec // G115: size bounded by MaxElementSize
		zr, err := zlib.NewReader(lr)
		if err != nil {
			return nil, fmt.Errorf("%w: compressed element: %w", ErrMalformed, err)
		}
		defer func() { _ = zr.Close() }()

		inner, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: inflate: %w", ErrMalformed, err)
		}
		// Skip bytes the inflater left unread so the next tag is aligned.
		if _, err := io.Copy(io.Discard, lr); err != nil {
			return nil, fmt.Errorf("%w: compressed element: %w", ErrMalformed, err)
		}
		return f.decodeCompressed(inner)

	default:
		return nil, fmt.Errorf("%w: top-level element type %s", ErrUnsupported, typ)
	}
}

// decodeCompressed decodes the miMATRIX element held in an inflated stream.
func (f *File) decodeCompressed(inner []byte) (*Variable, error) {
	d := &decoder{buf: inner, order: f.order}
	typ, body, err := d.next()
	if err != nil {
		return nil, err
	}
	if typ != MiMatrix {
		return nil, fmt.Errorf("%w: compressed element holds %s", ErrUnsupported, typ)
	}
	return f.decodeVariable(body)
}

// decodeVariable decodes the body of a top-level miMATRIX element.
func (f *File) decodeVariable(body []byte) (*Variable, error) {
	d := &decoder{buf: body, order: f.order}
	name, flags, value, err := d.matrix()
	if err != nil {
		if name != "" {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		return nil, err
	}
	return &Variable{
		Name:   name,
		Global: flags&FlagGlobal != 0,
		Value:  value,
	}, nil
}

// Header returns the descriptive header text, trimmed.
func (f *File) Header() string {
	return f.header
}

// Version returns the format version as "major.minor".
func (f *File) Version() string {
	return fmt.Sprintf("%d.%d", f.version>>8, f.version&0xFF)
}

// ByteOrder returns the byte order the file was written in.
func (f *File) ByteOrder() binary.ByteOrder {
	return f.order
}

// Names returns variable names in file order.
func (f *File) Names() []string {
	names := make([]string, len(f.vars))
	for i, v := range f.vars {
		names[i] = v.Name
	}
	return names
}

// Variables returns all named variables in file order.
func (f *File) Variables() []Variable {
	return f.vars
}

// Variable returns the value of the named variable.
func (f *File) Variable(name string) (Value, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrVariableNotFound, name)
	}
	return f.vars[i].Value, nil
}

// padding returns the number of bytes needed to reach an 8-byte boundary.
func padding(n int) int {
	return (tagSize - n%tagSize) % tagSize
}
