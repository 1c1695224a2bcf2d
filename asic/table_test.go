// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asic

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := Default()
	for _, f := range []func() error{
		func() error { return cfg.EnablePixel(0, 0) },
		func() error { return cfg.EnablePixel(34, 34) },
		func() error { return cfg.EnableInjCol(5) },
		func() error { return cfg.EnableAmpOutCol(12) },
		func() error { return cfg.SetDAC("vncomp", 63) },
		func() error { return cfg.Set(Digital, "ResetB", 1) },
	} {
		if err := f(); err != nil {
			t.Fatalf("could not prepare configuration: %+v", err)
		}
	}
	return cfg
}

func TestTableRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	tbl := cfg.Table()
	if got, want := len(tbl), NumDigital+NumBias+NumDACs+NumCols; got != want {
		t.Fatalf("invalid table size: got=%d, want=%d", got, want)
	}
	got, err := tbl.Config()
	if err != nil {
		t.Fatalf("could not rebuild configuration: %+v", err)
	}
	if got != cfg {
		t.Fatalf("round-trip mismatch")
	}
	if !mustVector(t, got).Equal(mustVector(t, cfg)) {
		t.Fatalf("round-trip bit vector mismatch")
	}
}

func TestCSV(t *testing.T) {
	cfg := testConfig(t)

	buf := new(bytes.Buffer)
	err := WriteCSV(buf, cfg)
	if err != nil {
		t.Fatalf("could not write CSV: %+v", err)
	}
	if !strings.HasPrefix(buf.String(), "group,field,value\ndigital,interrupt_pushpull,1\n") {
		t.Fatalf("invalid CSV prefix:\n%s", buf.String()[:64])
	}

	got, err := ReadCSV(buf)
	if err != nil {
		t.Fatalf("could not read CSV: %+v", err)
	}
	if got != cfg {
		t.Fatalf("CSV round-trip mismatch")
	}
}

func TestReadCSVPartial(t *testing.T) {
	const raw = `# legacy group names
digitalconfig, ResetB, 1
idacs, vn1, 0x3f
recconfig, ColConfig2, 0b001_11111_11111_11111_11111_11111_11111_11010
`
	cfg, err := ReadCSV(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("could not read CSV: %+v", err)
	}
	want := Default()
	want.Digital[19] = 1
	want.DACs[2] = 63
	_ = want.EnablePixel(2, 1)
	if cfg != want {
		t.Fatalf("invalid configuration:\ngot= %+v\nwant=%+v", cfg, want)
	}

	for _, tc := range []struct {
		name string
		raw  string
		err  error
	}{
		{"overflow", "dacs,vn1,64\n", ErrOverflow},
		{"unknown-field", "dacs,vn42,1\n", ErrField},
		{"unknown-group", "foo,vn1,1\n", ErrField},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.raw))
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%v, want=%v", err, tc.err)
			}
		})
	}

	_, err = ReadCSV(strings.NewReader("dacs,vn1,abc\n"))
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestYAML(t *testing.T) {
	cfg := testConfig(t)

	buf := new(bytes.Buffer)
	err := WriteYAML(buf, cfg)
	if err != nil {
		t.Fatalf("could not write YAML: %+v", err)
	}

	got, err := ReadYAML(buf)
	if err != nil {
		t.Fatalf("could not read YAML: %+v\n%s", err, buf.String())
	}
	if got != cfg {
		t.Fatalf("YAML round-trip mismatch")
	}
}

func TestReadYAMLLegacy(t *testing.T) {
	const raw = `
digitalconfig:
  interrupt_pushpull: 0
biasconfig:
  qon0: 1
dacs:
  vpfoll: 12
recconfig:
  ColConfig1: 0b001_11111_11111_11101_11111_11011_11111_11110
  ColConfig3: "0x3ffffffffe"
`
	cfg, err := ReadYAML(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("could not read YAML: %+v", err)
	}
	want := Default()
	want.Digital[0] = 0
	want.Bias[2] = 1
	want.DACs[15] = 12
	want.Columns[1] = 0b001_11111_11111_11101_11111_11011_11111_11110
	want.Columns[3] = 0x3ffffffffe
	if cfg != want {
		t.Fatalf("invalid configuration:\ngot= %+v\nwant=%+v", cfg, want)
	}

	_, err = ReadYAML(strings.NewReader("dacs:\n  vn1: -1\n"))
	if err == nil {
		t.Fatalf("expected an error")
	}
}
