package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Default] and validates
// the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if _, err := cfg.LogMath(); err != nil {
		errs = append(errs, fmt.Errorf("log_base %g: %w", cfg.LogBase, err))
	}

	if !(cfg.Acoustic.VarianceFloor > 0) {
		errs = append(errs, fmt.Errorf("acoustic.variance_floor must be positive, got %g", cfg.Acoustic.VarianceFloor))
	}
	if cfg.Acoustic.DistanceFloor < 0 {
		errs = append(errs, fmt.Errorf("acoustic.distance_floor must not be negative, got %g", cfg.Acoustic.DistanceFloor))
	}

	if err := cfg.Linguist.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.Decoder.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
