package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up at the repository root.
const FileName = ".ubr.yaml"

// Load reads and validates the repository's .ubr.yaml. A missing or empty
// file is not an error; defaults apply.
func Load(root string) (*Config, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Remote == "" {
		cfg.Remote = Default().Remote
	}

	if errs := Validate(cfg); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a Config for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(cfg *Config) []string {
	var errs []string

	if strings.ContainsAny(cfg.Remote, " \t") {
		errs = append(errs, fmt.Sprintf("'remote': %q must not contain whitespace", cfg.Remote))
	}
	if cfg.BranchPrefix != "" && !validBranchPrefix(cfg.BranchPrefix) {
		errs = append(errs, fmt.Sprintf("'branch_prefix': %q may only contain letters, digits, '.', '/', '_' and '-'", cfg.BranchPrefix))
	}

	return errs
}

func validBranchPrefix(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '/', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
