// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asic

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// Entry is a row of a flat configuration table.
type Entry struct {
	Group string
	Field string
	Value uint64
}

// Table is a flat configuration table, in shift-register order.
type Table []Entry

// Table returns the flat table of the configuration.
func (cfg *Config) Table() Table {
	fields := cfg.Fields()
	tbl := make(Table, len(fields))
	for i, f := range fields {
		tbl[i] = Entry{Group: f.Group, Field: f.Name, Value: f.Value}
	}
	return tbl
}

// Config applies the table on top of the default configuration.
// Fields missing from the table keep their default value.
func (tbl Table) Config() (Config, error) {
	cfg := Default()
	for _, e := range tbl {
		grp, err := groupName(e.Group)
		if err != nil {
			return cfg, err
		}
		err = cfg.Set(grp, e.Field, e.Value)
		if err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// groupName resolves the group aliases used by legacy configuration
// files.
func groupName(name string) (string, error) {
	switch strings.ToLower(name) {
	case Digital, "digitalconfig":
		return Digital, nil
	case Bias, "biasconfig":
		return Bias, nil
	case DACs, "dac", "idacs":
		return DACs, nil
	case Columns, "recconfig", "colconfig":
		return Columns, nil
	}
	return "", fmt.Errorf("%w group %q", ErrField, name)
}

func parseValue(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("asic: could not parse value %q: %w", s, err)
	}
	return v, nil
}

// WriteCSV writes the configuration as a (group, field, value) CSV table.
func WriteCSV(w io.Writer, cfg Config) error {
	cw := csv.NewWriter(w)
	err := cw.Write([]string{"group", "field", "value"})
	if err != nil {
		return fmt.Errorf("asic: could not write CSV header: %w", err)
	}
	for _, e := range cfg.Table() {
		val := strconv.FormatUint(e.Value, 10)
		if e.Group == Columns {
			val = "0b" + strconv.FormatUint(e.Value, 2)
		}
		err = cw.Write([]string{e.Group, e.Field, val})
		if err != nil {
			return fmt.Errorf("asic: could not write CSV row %s/%s: %w", e.Group, e.Field, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("asic: could not flush CSV table: %w", err)
	}
	return nil
}

// ReadCSV reads a configuration from a (group, field, value) CSV table.
// Lines starting with '#' are ignored, as well as an optional header.
func ReadCSV(r io.Reader) (Config, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	var tbl Table
	for i := 0; ; i++ {
		rec, err := cr.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return Config{}, fmt.Errorf("asic: could not read CSV table: %w", err)
		}
		if i == 0 && strings.EqualFold(rec[0], "group") {
			continue
		}
		v, err := parseValue(rec[2])
		if err != nil {
			return Config{}, err
		}
		tbl = append(tbl, Entry{Group: rec[0], Field: rec[1], Value: v})
	}
	return tbl.Config()
}

// WriteYAML writes the configuration as a YAML document, one mapping
// per group.
func WriteYAML(w io.Writer, cfg Config) error {
	var (
		doc = make(yaml.MapSlice, 0, 4)
		cur *yaml.MapItem
	)
	for _, f := range cfg.Fields() {
		if cur == nil || cur.Key != f.Group {
			doc = append(doc, yaml.MapItem{Key: f.Group, Value: yaml.MapSlice{}})
			cur = &doc[len(doc)-1]
		}
		var v interface{} = f.Value
		if f.Group == Columns {
			v = fmt.Sprintf("0b%038b", f.Value)
		}
		cur.Value = append(cur.Value.(yaml.MapSlice), yaml.MapItem{Key: f.Name, Value: v})
	}

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("asic: could not marshal YAML configuration: %w", err)
	}
	n, err := w.Write(raw)
	if err != nil {
		return fmt.Errorf("asic: could not write YAML configuration: %w", err)
	}
	if n != len(raw) {
		return fmt.Errorf("asic: could not write YAML configuration: %w", io.ErrShortWrite)
	}
	return nil
}

// ReadYAML reads a configuration from a YAML document.
// Values may be integers or strings with a 0b, 0o or 0x prefix.
func ReadYAML(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("asic: could not read YAML configuration: %w", err)
	}

	var doc yaml.MapSlice
	err = yaml.Unmarshal(raw, &doc)
	if err != nil {
		return Config{}, fmt.Errorf("asic: could not unmarshal YAML configuration: %w", err)
	}

	var tbl Table
	for _, grp := range doc {
		name := fmt.Sprint(grp.Key)
		items, ok := grp.Value.(yaml.MapSlice)
		if !ok {
			return Config{}, fmt.Errorf("asic: invalid YAML group %q (type=%T)", name, grp.Value)
		}
		for _, item := range items {
			v, err := yamlValue(item.Value)
			if err != nil {
				return Config{}, fmt.Errorf("asic: invalid YAML value for %s/%v: %w", name, item.Key, err)
			}
			tbl = append(tbl, Entry{Group: name, Field: fmt.Sprint(item.Key), Value: v})
		}
	}
	return tbl.Config()
}

func yamlValue(v interface{}) (uint64, error) {
	switch v := v.(type) {
	case int:
		if v < 0 {
			return 0, fmt.Errorf("negative value %d", v)
		}
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("negative value %d", v)
		}
		return uint64(v), nil
	case uint64:
		return v, nil
	case string:
		return parseValue(v)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
