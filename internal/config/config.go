// Package config loads loader configuration from EXIO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix.
const Prefix = "EXIO"

// Config holds loader configuration.
type Config struct {
	DataDir       string   `envconfig:"DATA_DIR" default:"./data/exiobase-3rx" validate:"required"`
	MatFile       string   `envconfig:"MAT_FILE"` // empty uses the layout's file name
	LabelsDir     string   `envconfig:"LABELS_DIR" default:"labs" validate:"required"`
	Layout        string   `envconfig:"LAYOUT" default:"exiobase-3rx" validate:"required"`
	FieldMatching string   `envconfig:"FIELD_MATCHING" default:"strict" validate:"oneof=strict positional"`
	Tables        []string `envconfig:"TABLES" validate:"dive,required"`
	LogLevel      string   `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat     string   `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
	TraceExporter string   `envconfig:"TRACE_EXPORTER" default:"none" validate:"oneof=none stdout"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// normalize trims list entries and lower-cases enumerated values.
func (c *Config) normalize() {
	tables := c.Tables[:0]
	for _, t := range c.Tables {
		if t = strings.TrimSpace(t); t != "" {
			tables = append(tables, t)
		}
	}
	c.Tables = tables
	if len(c.Tables) == 0 {
		c.Tables = nil
	}

	c.FieldMatching = strings.ToLower(strings.TrimSpace(c.FieldMatching))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.TraceExporter = strings.ToLower(strings.TrimSpace(c.TraceExporter))
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	name := Prefix + "_" + envName(fe.StructField())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
	}
}

// envName maps a struct field name to its environment variable suffix.
func envName(field string) string {
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	switch field {
	case "DataDir":
		return "DATA_DIR"
	case "MatFile":
		return "MAT_FILE"
	case "LabelsDir":
		return "LABELS_DIR"
	case "FieldMatching":
		return "FIELD_MATCHING"
	case "LogLevel":
		return "LOG_LEVEL"
	case "LogFormat":
		return "LOG_FORMAT"
	case "TraceExporter":
		return "TRACE_EXPORTER"
	default:
		return strings.ToUpper(field)
	}
}

// MatPath resolves the MAT-file path. defaultName is used when MatFile is
// unset; relative names are resolved against DataDir.
func (c *Config) MatPath(defaultName string) string {
	name := c.MatFile
	if name == "" {
		name = defaultName
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// LabelPath resolves a label file name. A relative LabelsDir is resolved
// against DataDir.
func (c *Config) LabelPath(file string) string {
	dir := c.LabelsDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.DataDir, dir)
	}
	return filepath.Join(dir, file)
}
