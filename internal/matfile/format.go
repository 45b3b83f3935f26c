package matfile

import "github.com/born-ml/exiobase/internal/tensor"

// Format constants.
const (
	HeaderSize       = 128
	HeaderTextSize   = 116
	SubsysOffsetSize = 8
	Version5         = 0x0100
	Version73        = 0x0200 // HDF5-based, not supported
	tagSize          = 8
	smallDataSize    = 4
)

// Endian indicators as they appear in bytes 126-127.
const (
	endianLittle = "IM"
	endianBig    = "MI"
)

// DataType is a MAT-file data element type (the mi* constants).
type DataType uint32

// Data element types.
const (
	MiInt8       DataType = 1
	MiUint8      DataType = 2
	MiInt16      DataType = 3
	MiUint16     DataType = 4
	MiInt32      DataType = 5
	MiUint32     DataType = 6
	MiSingle     DataType = 7
	MiDouble     DataType = 9
	MiInt64      DataType = 12
	MiUint64     DataType = 13
	MiMatrix     DataType = 14
	MiCompressed DataType = 15
	MiUTF8       DataType = 16
	MiUTF16      DataType = 17
	MiUTF32      DataType = 18
)

// String returns the MATLAB name of the data type.
func (t DataType) String() string {
	switch t {
	case MiInt8:
		return "miINT8"
	case MiUint8:
		return "miUINT8"
	case MiInt16:
		return "miINT16"
	case MiUint16:
		return "miUINT16"
	case MiInt32:
		return "miINT32"
	case MiUint32:
		return "miUINT32"
	case MiSingle:
		return "miSINGLE"
	case MiDouble:
		return "miDOUBLE"
	case MiInt64:
		return "miINT64"
	case MiUint64:
		return "miUINT64"
	case MiMatrix:
		return "miMATRIX"
	case MiCompressed:
		return "miCOMPRESSED"
	case MiUTF8:
		return "miUTF8"
	case MiUTF16:
		return "miUTF16"
	case MiUTF32:
		return "miUTF32"
	default:
		return "unknown"
	}
}

// elementType maps a numeric data element type to its tensor element type.
func (t DataType) elementType() (tensor.DataType, bool) {
	switch t {
	case MiInt8:
		return tensor.Int8, true
	case MiUint8, MiUTF8:
		return tensor.Uint8, true
	case MiInt16:
		return tensor.Int16, true
	case MiUint16, MiUTF16:
		return tensor.Uint16, true
	case MiInt32:
		return tensor.Int32, true
	case MiUint32, MiUTF32:
		return tensor.Uint32, true
	case MiSingle:
		return tensor.Float32, true
	case MiDouble:
		return tensor.Float64, true
	case MiInt64:
		return tensor.Int64, true
	case MiUint64:
		return tensor.Uint64, true
	default:
		return 0, false
	}
}

// DataTypeFor returns the data element type used to store elements of dt.
func DataTypeFor(dt tensor.DataType) DataType {
	switch dt {
	case tensor.Float64:
		return MiDouble
	case tensor.Float32:
		return MiSingle
	case tensor.Int8:
		return MiInt8
	case tensor.Uint8, tensor.Bool:
		return MiUint8
	case tensor.Int16:
		return MiInt16
	case tensor.Uint16:
		return MiUint16
	case tensor.Int32:
		return MiInt32
	case tensor.Uint32:
		return MiUint32
	case tensor.Int64:
		return MiInt64
	case tensor.Uint64:
		return MiUint64
	default:
		return MiDouble
	}
}

// Class is a MAT-file array class (the mx*_CLASS constants).
type Class uint8

// Array classes.
const (
	ClassCell     Class = 1
	ClassStruct   Class = 2
	ClassObject   Class = 3
	ClassChar     Class = 4
	ClassSparse   Class = 5
	ClassDouble   Class = 6
	ClassSingle   Class = 7
	ClassInt8     Class = 8
	ClassUint8    Class = 9
	ClassInt16    Class = 10
	ClassUint16   Class = 11
	ClassInt32    Class = 12
	ClassUint32   Class = 13
	ClassInt64    Class = 14
	ClassUint64   Class = 15
	ClassFunction Class = 16
	ClassOpaque   Class = 17
)

// String returns the MATLAB class name.
func (c Class) String() string {
	switch c {
	case ClassCell:
		return "cell"
	case ClassStruct:
		return "struct"
	case ClassObject:
		return "object"
	case ClassChar:
		return "char"
	case ClassSparse:
		return "sparse"
	case ClassDouble:
		return "double"
	case ClassSingle:
		return "single"
	case ClassInt8:
		return "int8"
	case ClassUint8:
		return "uint8"
	case ClassInt16:
		return "int16"
	case ClassUint16:
		return "uint16"
	case ClassInt32:
		return "int32"
	case ClassUint32:
		return "uint32"
	case ClassInt64:
		return "int64"
	case ClassUint64:
		return "uint64"
	case ClassFunction:
		return "function_handle"
	case ClassOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// numericType maps a numeric class to its element type.
func (c Class) numericType() (tensor.DataType, bool) {
	switch c {
	case ClassDouble:
		return tensor.Float64, true
	case ClassSingle:
		return tensor.Float32, true
	case ClassInt8:
		return tensor.Int8, true
	case ClassUint8:
		return tensor.Uint8, true
	case ClassInt16:
		return tensor.Int16, true
	case ClassUint16:
		return tensor.Uint16, true
	case ClassInt32:
		return tensor.Int32, true
	case ClassUint32:
		return tensor.Uint32, true
	case ClassInt64:
		return tensor.Int64, true
	case ClassUint64:
		return tensor.Uint64, true
	default:
		return 0, false
	}
}

// ClassFor returns the numeric class holding elements of dt.
// Logical arrays are stored as uint8 with the logical flag set.
func ClassFor(dt tensor.DataType) Class {
	switch dt {
	case tensor.Float64:
		return ClassDouble
	case tensor.Float32:
		return ClassSingle
	case tensor.Int8:
		return ClassInt8
	case tensor.Uint8, tensor.Bool:
		return ClassUint8
	case tensor.Int16:
		return ClassInt16
	case tensor.Uint16:
		return ClassUint16
	case tensor.Int32:
		return ClassInt32
	case tensor.Uint32:
		return ClassUint32
	case tensor.Int64:
		return ClassInt64
	case tensor.Uint64:
		return ClassUint64
	default:
		return ClassDouble
	}
}

// Array flag bits (second byte of the flags word).
const (
	FlagLogical uint32 = 0x02 << 8
	FlagGlobal  uint32 = 0x04 << 8
	FlagComplex uint32 = 0x08 << 8
	classMask   uint32 = 0xFF
)
