// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asic

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

func codecFor(fname string) (func(io.Reader) (Config, error), func(io.Writer, Config) error, error) {
	switch ext := strings.ToLower(filepath.Ext(fname)); ext {
	case ".yaml", ".yml":
		return ReadYAML, WriteYAML, nil
	case ".csv", ".txt":
		return ReadCSV, WriteCSV, nil
	default:
		return nil, nil, fmt.Errorf("asic: unknown configuration file format %q", ext)
	}
}

// ReadFile reads a configuration file, in YAML (.yml, .yaml) or
// CSV (.csv, .txt) format.
func ReadFile(fname string) (Config, error) {
	read, _, err := codecFor(fname)
	if err != nil {
		return Config{}, err
	}

	f, err := os.Open(fname)
	if err != nil {
		return Config{}, fmt.Errorf("asic: could not open configuration file: %w", err)
	}
	defer f.Close()

	cfg, err := read(f)
	if err != nil {
		return cfg, fmt.Errorf("asic: could not read %q: %w", fname, err)
	}
	return cfg, nil
}

// WriteFile writes the configuration to a file, with the format
// selected from its extension.
func WriteFile(fname string, cfg Config) error {
	_, write, err := codecFor(fname)
	if err != nil {
		return err
	}

	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("asic: could not create configuration file: %w", err)
	}
	defer f.Close()

	err = write(f, cfg)
	if err != nil {
		return err
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("asic: could not close configuration file %q: %w", fname, err)
	}
	return nil
}
