// Package config loads the runtime configuration from YAML and checks it
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the runtime configuration.
type Config struct {
	FramesInFlight int     `yaml:"frames_in_flight" json:"frames_in_flight"`
	MaxFrameRate   float64 `yaml:"max_frame_rate" json:"max_frame_rate"`
	MaxFrames      uint64  `yaml:"max_frames" json:"max_frames"`
	Inline         bool    `yaml:"inline" json:"inline"`
	Strict         bool    `yaml:"strict" json:"strict"`
	Journal        string  `yaml:"journal" json:"journal"`
	LogLevel       string  `yaml:"log_level" json:"log_level"`
	Frame          Frame   `yaml:"frame" json:"frame"`
	Demo           Demo    `yaml:"demo" json:"demo"`
}

// Frame is the render target size.
type Frame struct {
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// Demo sizes the built-in demo scene.
type Demo struct {
	Spinners int `yaml:"spinners" json:"spinners"`
	Meshes   int `yaml:"meshes" json:"meshes"`
	Labels   int `yaml:"labels" json:"labels"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		FramesInFlight: 2,
		MaxFrameRate:   60,
		MaxFrames:      0,
		LogLevel:       "info",
		Frame:          Frame{Width: 1280, Height: 720},
		Demo:           Demo{Spinners: 8, Meshes: 2, Labels: 1},
	}
}

// ValidationError lists every schema violation in a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Load reads path, overlays it on Default and validates the result. An
// empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes YAML from r over Default and validates the result. Unknown
// keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks c against the schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return toValidationError(err)
	}
	return nil
}

func toValidationError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	ve := &ValidationError{}
	for _, e := range errs {
		ve.Problems = append(ve.Problems, e.Error())
	}
	return ve
}

// IsValidation reports whether err is a schema violation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Level maps LogLevel to a slog level.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
