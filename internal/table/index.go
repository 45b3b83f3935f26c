package table

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/exiobase/internal/labels"
)

// joinKey encodes a key tuple as a map key. Each value is prefixed with its
// byte length, so distinct tuples never share an encoding.
func joinKey(key []string) string {
	var b strings.Builder
	for _, v := range key {
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
	}
	return b.String()
}

// Index is a hierarchical index over one table axis: a list of level
// names and one key tuple per position.
type Index struct {
	levels []string
	keys   [][]string
	pos    map[string]int
}

// NewIndex builds an index. Every key must have one value per level.
// Duplicate keys are allowed; lookups return the first position.
func NewIndex(levels []string, keys [][]string) (*Index, error) {
	idx := &Index{
		levels: levels,
		keys:   keys,
		pos:    make(map[string]int, len(keys)),
	}
	for i, k := range keys {
		if len(k) != len(levels) {
			return nil, fmt.Errorf("%w: key %d has %d values for %d levels", ErrKeyWidth, i, len(k), len(levels))
		}
		joined := joinKey(k)
		if _, ok := idx.pos[joined]; !ok {
			idx.pos[joined] = i
		}
	}
	return idx, nil
}

// FromLabels builds an index whose levels are the label set's columns and
// whose keys are its rows, in file order.
func FromLabels(s *labels.Set) *Index {
	keys := make([][]string, s.Len())
	for i := range keys {
		keys[i] = s.Row(i)
	}
	idx, err := NewIndex(s.Columns(), keys)
	if err != nil {
		// labels.Set guarantees rectangular rows.
		panic(err)
	}
	return idx
}

// Literal builds a single-position, unnamed single-level index.
func Literal(name string) *Index {
	return &Index{
		levels: []string{""},
		keys:   [][]string{{name}},
		pos:    map[string]int{joinKey([]string{name}): 0},
	}
}

// Len returns the number of positions.
func (x *Index) Len() int {
	return len(x.keys)
}

// Levels returns the level names.
func (x *Index) Levels() []string {
	return x.levels
}

// Key returns the key tuple at position i.
func (x *Index) Key(i int) []string {
	return x.keys[i]
}

// Position returns the position of a full key tuple.
func (x *Index) Position(key ...string) (int, error) {
	i, ok := x.pos[joinKey(key)]
	if !ok || len(key) != len(x.levels) {
		return 0, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return i, nil
}

// Level returns the values of one level, one per position.
func (x *Index) Level(name string) ([]string, error) {
	for l, level := range x.levels {
		if level != name {
			continue
		}
		out := make([]string, len(x.keys))
		for i, k := range x.keys {
			out[i] = k[l]
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
}
