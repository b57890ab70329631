// Package config loads YAML configuration files with ${VAR}
// environment expansion.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator lets a config type check itself after decoding.
type Validator interface {
	Validate() error
}

// Load decodes the YAML file at path into target. ${VAR} references are
// expanded from the environment before decoding, and when target
// implements Validator the decoded value is validated.
func Load[T any](path string, target *T) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	return decode(path, data, target)
}

// LoadIfPresent is Load, except a missing file is not an error: target
// is left untouched so caller-supplied defaults stand.
func LoadIfPresent[T any](path string, target *T) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	return decode(path, data, target)
}

func decode[T any](path string, data []byte, target *T) error {
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), target); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if v, ok := any(target).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config: validate %s: %w", path, err)
		}
	}
	return nil
}
