// Package tensor provides the array primitives shared by the MAT reader and
// the labeled tables: shapes, element types, compressed sparse column
// matrices and conversion to dense gonum matrices.
package tensor

// DataType represents the element type of a stored array.
type DataType int

// Supported element types.
const (
	Float64 DataType = iota
	Float32
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Bool
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float64, Int64, Uint64:
		return 8
	case Float32, Int32, Uint32:
		return 4
	case Int16, Uint16:
		return 2
	case Int8, Uint8, Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float64:
		return "float64"
	case Float32:
		return "float32"
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// IsFloat reports whether values of this type are floating point.
func (dt DataType) IsFloat() bool {
	return dt == Float64 || dt == Float32
}
