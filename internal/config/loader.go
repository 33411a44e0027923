package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Load reads and validates the configuration at path.
//
// The file is decoded with encoding/json rather than a config framework:
// tag_config and constants keys are case-sensitive and contain dots
// (System.Tags), which key-normalizing loaders would mangle.
//
// A missing file is reported as a *ConfigError wrapping fs.ErrNotExist so
// the caller can fall back to the interactive wizard; any other problem
// (malformed JSON, failed validation) is a plain *ConfigError.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{Path: path, Reason: "file not found", Err: fs.ErrNotExist}
		}
		return nil, &ConfigError{Path: path, Reason: "cannot read file", Err: err}
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, &ConfigError{Path: path, Reason: "not a valid configuration document", Err: err}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			cerr.Path = path
		}
		return nil, err
	}
	return &cfg, nil
}

// IsNotFound reports whether err is the missing-configuration case that
// should trigger the first-run wizard.
func IsNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Save persists the configuration as indented JSON, atomically
// (write-to-temp + rename), so a crash mid-write never leaves a corrupt
// file behind.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sync_config-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
