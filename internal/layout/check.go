package layout

import (
	"fmt"
	"strings"

	"github.com/born-ml/exiobase/internal/tensor"
)

// Matching selects how stored field names are checked against the layout.
type Matching string

// Field matching modes.
const (
	// MatchStrict fails on any name or shape difference.
	MatchStrict Matching = "strict"
	// MatchPositional trusts field positions and reports name differences
	// as mismatches without failing. Shapes are not checked.
	MatchPositional Matching = "positional"
)

// ParseMatching parses a matching mode name.
func ParseMatching(s string) (Matching, error) {
	switch m := Matching(strings.ToLower(strings.TrimSpace(s))); m {
	case MatchStrict, MatchPositional:
		return m, nil
	case "":
		return MatchStrict, nil
	default:
		return "", fmt.Errorf("unknown field matching mode %q", s)
	}
}

// Mismatch is a position whose stored field name differs from the layout.
type Mismatch struct {
	Position int
	Want     string
	Got      string
}

// CheckFields compares stored bundle field names with the layout order.
// A count difference is always an error. Name differences fail in strict
// mode and are returned in positional mode.
func (l *Layout) CheckFields(stored []string, mode Matching) ([]Mismatch, error) {
	want := l.FieldNames()
	if len(stored) != len(want) {
		details := fmt.Sprintf("bundle %q has %d fields, layout %s expects %d (%s)",
			l.Bundle, len(stored), l.Name, len(want), strings.Join(want, ", "))
		if len(stored) < len(want) {
			details += "; missing " + strings.Join(want[len(stored):], ", ")
		}
		return nil, &ValidationError{Type: TypeLayoutMismatch, Details: details}
	}

	var mismatches []Mismatch
	for i, name := range stored {
		if name == want[i] {
			continue
		}
		if mode != MatchPositional {
			return nil, &ValidationError{
				Type:    TypeLayoutMismatch,
				Field:   want[i],
				Details: fmt.Sprintf("position %d holds %q", i, name),
			}
		}
		mismatches = append(mismatches, Mismatch{Position: i, Want: want[i], Got: name})
	}
	return mismatches, nil
}

// CheckShape verifies a stored value shape against the declared one.
// Fields without a declared shape accept any shape.
func (f Field) CheckShape(got tensor.Shape) error {
	if len(f.Shape) == 0 || f.Shape.Equal(got) {
		return nil
	}
	return &ValidationError{
		Type:    TypeShapeMismatch,
		Field:   f.Name,
		Details: fmt.Sprintf("expected %v, got %v", f.Shape, got),
	}
}

// CheckLabels verifies that a label set indexes one matrix axis exactly.
func CheckLabels(field, axis, labelSet string, labels, dim int) error {
	if labels == dim {
		return nil
	}
	return &ValidationError{
		Type:    TypeLabelMismatch,
		Field:   field,
		Details: fmt.Sprintf("%s label set %q has %d rows, matrix has %d %s", axis, labelSet, labels, dim, axis),
	}
}

// CheckLabelRows verifies a loaded label set against its declared row count.
func (s LabelSpec) CheckLabelRows(rows int) error {
	if s.Rows == 0 || s.Rows == rows {
		return nil
	}
	return &ValidationError{
		Type:    TypeLabelMismatch,
		Field:   s.Name,
		Details: fmt.Sprintf("%s has %d rows, expected %d", s.File, rows, s.Rows),
	}
}
