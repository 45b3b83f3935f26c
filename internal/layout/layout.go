// Package layout describes the versioned contract between an EXIOBASE
// MAT-file bundle and the label files that index it.
//
// A layout names the bundle struct, lists its fields in stored order with
// their expected shapes, and pairs every densified table with the label
// sets for its rows and columns. Layouts are plain YAML; the ones shipped
// with the loader are embedded and resolved by name with Load.
package layout

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/exiobase/internal/tensor"
)

// Default is the layout used when none is configured.
const Default = "exiobase-3rx"

//go:embed layouts/*.yaml
var layouts embed.FS

var validate = validator.New(validator.WithRequiredStructEnabled())

// Layout is a parsed bundle contract.
type Layout struct {
	Name          string        `yaml:"name" validate:"required"`
	Description   string        `yaml:"description"`
	MatFile       string        `yaml:"mat_file" validate:"required"`
	Bundle        string        `yaml:"bundle" validate:"required"`
	Labels        []LabelSpec   `yaml:"labels" validate:"required,min=1,dive"`
	ProductRegion ProductRegion `yaml:"product_region" validate:"required"`
	Fields        []Field       `yaml:"fields" validate:"required,min=1,dive"`
	Tables        []string      `yaml:"tables" validate:"dive,required"`

	labels map[string]int
	fields map[string]int
}

// LabelSpec names a label file and its expected row count.
type LabelSpec struct {
	Name string `yaml:"name" validate:"required"`
	File string `yaml:"file" validate:"required"`
	Rows int    `yaml:"rows" validate:"gte=0"` // 0 skips the check
}

// ProductRegion locates the region and category columns of the
// product-region label set.
type ProductRegion struct {
	Labels         string `yaml:"labels" validate:"required"`
	RegionColumn   string `yaml:"region_column" validate:"required"`
	CategoryColumn string `yaml:"category_column" validate:"required"`
}

// Field is one positional member of the bundle struct.
type Field struct {
	Name        string       `yaml:"name" validate:"required"`
	Description string       `yaml:"description"`
	Shape       tensor.Shape `yaml:"shape" validate:"omitempty,dive,gte=0"`
	Rows        string       `yaml:"rows"`   // row label set
	Cols        string       `yaml:"cols"`   // column label set
	Column      string       `yaml:"column"` // single literal column name, instead of Cols
}

// IsTable reports whether the field is densified into a labeled table.
func (f Field) IsTable() bool {
	return f.Rows != ""
}

// Load returns the embedded layout with the given name.
func Load(name string) (*Layout, error) {
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayout, name)
	}
	data, err := layouts.ReadFile(path.Join("layouts", name+".yaml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownLayout, name, strings.Join(Names(), ", "))
		}
		return nil, err
	}
	return Parse(data)
}

// Names lists the embedded layouts.
func Names() []string {
	entries, err := layouts.ReadDir("layouts")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Parse decodes and validates a YAML layout. Unknown keys are rejected.
func Parse(data []byte) (*Layout, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var l Layout
	if err := dec.Decode(&l); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ValidationError{Type: TypeInvalidLayout, Details: "empty document"}
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// validate runs the struct tags, then the cross-references between
// fields, tables and label sets.
func (l *Layout) validate() error {
	if err := validate.Struct(l); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{
				Type:    TypeInvalidLayout,
				Field:   fe.Namespace(),
				Details: fmt.Sprintf("failed %q validation %s", fe.Tag(), fe.Param()),
			}
		}
		return fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}

	l.labels = make(map[string]int, len(l.Labels))
	for i, ls := range l.Labels {
		if _, dup := l.labels[ls.Name]; dup {
			return invalid(ls.Name, "duplicate label set")
		}
		l.labels[ls.Name] = i
	}

	l.fields = make(map[string]int, len(l.Fields))
	for i, f := range l.Fields {
		if _, dup := l.fields[f.Name]; dup {
			return invalid(f.Name, "duplicate field")
		}
		l.fields[f.Name] = i

		if !f.IsTable() {
			if f.Cols != "" || f.Column != "" {
				return invalid(f.Name, "column labels without row labels")
			}
			continue
		}
		if _, ok := l.labels[f.Rows]; !ok {
			return invalid(f.Name, fmt.Sprintf("unknown row label set %q", f.Rows))
		}
		switch {
		case f.Cols != "" && f.Column != "":
			return invalid(f.Name, "both cols and column are set")
		case f.Cols == "" && f.Column == "":
			return invalid(f.Name, "table needs cols or column")
		case f.Cols != "":
			if _, ok := l.labels[f.Cols]; !ok {
				return invalid(f.Name, fmt.Sprintf("unknown column label set %q", f.Cols))
			}
		}
		if len(f.Shape) > 0 && !f.Shape.IsMatrix() {
			return invalid(f.Name, fmt.Sprintf("table shape %v is not two-dimensional", f.Shape))
		}
		if f.Column != "" && len(f.Shape) == 2 && f.Shape[1] != 1 {
			return invalid(f.Name, fmt.Sprintf("single column table has shape %v", f.Shape))
		}
	}

	seen := make(map[string]bool, len(l.Tables))
	for _, name := range l.Tables {
		i, ok := l.fields[name]
		if !ok {
			return invalid(name, "table is not a bundle field")
		}
		if !l.Fields[i].IsTable() {
			return invalid(name, "table field has no row labels")
		}
		if seen[name] {
			return invalid(name, "duplicate table")
		}
		seen[name] = true
	}

	if _, ok := l.labels[l.ProductRegion.Labels]; !ok {
		return invalid("product_region", fmt.Sprintf("unknown label set %q", l.ProductRegion.Labels))
	}

	return nil
}

func invalid(field, details string) error {
	return &ValidationError{Type: TypeInvalidLayout, Field: field, Details: details}
}

// Field returns the named field.
func (l *Layout) Field(name string) (Field, bool) {
	i, ok := l.fields[name]
	if !ok {
		return Field{}, false
	}
	return l.Fields[i], true
}

// Label returns the named label set.
func (l *Layout) Label(name string) (LabelSpec, bool) {
	i, ok := l.labels[name]
	if !ok {
		return LabelSpec{}, false
	}
	return l.Labels[i], true
}

// FieldNames returns the bundle field names in stored order.
func (l *Layout) FieldNames() []string {
	names := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		names[i] = f.Name
	}
	return names
}

// TableFields returns the fields to densify, in table order.
// A nil filter selects every table; otherwise only the named ones.
func (l *Layout) TableFields(filter []string) ([]Field, error) {
	want := make(map[string]bool, len(filter))
	for _, name := range filter {
		if !slices.Contains(l.Tables, name) {
			return nil, &ValidationError{Type: TypeInvalidLayout, Field: name, Details: "not a table of layout " + l.Name}
		}
		want[name] = true
	}

	var out []Field
	for _, name := range l.Tables {
		if len(filter) > 0 && !want[name] {
			continue
		}
		out = append(out, l.Fields[l.fields[name]])
	}
	return out, nil
}
