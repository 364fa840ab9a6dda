// Package config loads and validates beamline topology configuration. Files
// may be written in YAML or CUE; CUE sources are evaluated with constraints
// before decoding. Branch selection policy can be scripted in Starlark.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
)

// Loader parses and validates configuration files.
type Loader struct {
	cue      *cue.Context
	validate *validator.Validate
}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{
		cue:      cuecontext.New(),
		validate: validator.New(),
	}
}

// Load reads, decodes, defaults, and validates the config at path. The
// format is chosen by extension: .cue is evaluated as CUE, .yaml/.yml/.json
// are decoded as YAML (JSON is a YAML subset).
func (l *Loader) Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		cfg, err = l.decodeCUE(path, string(content))
	case ".yaml", ".yml", ".json":
		cfg, err = decodeYAML(path, content)
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := l.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadInlineCUE evaluates inline CUE content into a validated config.
func (l *Loader) LoadInlineCUE(content string) (*Config, error) {
	cfg, err := l.decodeCUE("inline", content)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := l.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct-tag constraints plus cross-field rules the tags
// cannot express.
func (l *Loader) Validate(cfg *Config) error {
	if err := l.validate.Struct(cfg); err != nil {
		return convertValidatorError(err)
	}

	seen := make(map[string]bool)
	for i, m := range cfg.Mirrors {
		if seen[m.Name] {
			return ValidationError{
				Path:    fmt.Sprintf("mirrors[%d].name", i),
				Message: fmt.Sprintf("duplicate mirror %q", m.Name),
			}
		}
		seen[m.Name] = true
		if m.Center < m.LowLimit || m.Center > m.HighLimit {
			return ValidationError{
				Path:    fmt.Sprintf("mirrors[%d].center", i),
				Message: fmt.Sprintf("center %v outside limits [%v, %v]", m.Center, m.LowLimit, m.HighLimit),
			}
		}
	}
	for i, im := range cfg.Imagers {
		if seen[im.Name] {
			return ValidationError{
				Path:    fmt.Sprintf("imagers[%d].name", i),
				Message: fmt.Sprintf("duplicate device %q", im.Name),
			}
		}
		seen[im.Name] = true
	}
	return nil
}

func (l *Loader) decodeCUE(path, content string) (*Config, error) {
	val := l.cue.CompileString(content, cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, convertCUEError(path, err)
	}
	var cfg Config
	if err := val.Decode(&cfg); err != nil {
		return nil, convertCUEError(path, err)
	}
	return &cfg, nil
}

func convertCUEError(path string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return ValidationError{File: path, Message: err.Error()}
	}
	// Report the first error with its position; details carry the rest.
	first := errs[0]
	ve := ValidationError{
		File:    path,
		Message: cueerrors.Details(first, nil),
	}
	return ve
}

func convertValidatorError(err error) error {
	var verrs validator.ValidationErrors
	if ok := errors.As(err, &verrs); ok && len(verrs) > 0 {
		fe := verrs[0]
		return ValidationError{
			Path:    fe.Namespace(),
			Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
		}
	}
	return err
}
