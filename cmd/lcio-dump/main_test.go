// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/astropix/hits"
	"github.com/go-lpc/astropix/internal/rawlog"
	"github.com/go-lpc/astropix/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

func createLCIO(t *testing.T, raw string) string {
	t.Helper()

	fname := filepath.Join(t.TempDir(), "run-042.slcio")
	w, err := lcio.Create(fname)
	if err != nil {
		t.Fatalf("could not create LCIO file: %+v", err)
	}
	defer w.Close()

	err = xcnv.Raw2LCIO(
		w, rawlog.NewReader(strings.NewReader(raw)),
		hits.NewDecoder(hits.DefaultPeriod, true), 42,
		log.New(io.Discard, "", 0),
	)
	if err != nil {
		t.Fatalf("could not convert raw log: %+v", err)
	}

	err = w.Close()
	if err != nil {
		t.Fatalf("could not close LCIO file: %+v", err)
	}
	return fname
}

func TestProcess(t *testing.T) {
	fname := createLCIO(t, "0\tbcbc20a1088000bcbc\n1\t\n2\tbcbc\n")

	for _, tc := range []struct {
		name string
		raw  bool
		max  int
		want string
	}{
		{
			name: "all",
			raw:  true,
			max:  -1,
			want: `=== run 42 (AstroPix, clock=10ns, reverse=1) ===
=== event 0 ===
raw:  bcbc20a1088000bcbc
hits: 1
  Hit{chip=0, payload=4, Col=5, ts=16, tot=256} ToT=2.56us
=== event 1 ===
raw:
hits: 0
=== event 2 ===
raw:  bcbc
hits: 0
`,
		},
		{
			name: "no-raw",
			raw:  false,
			max:  1,
			want: `=== run 42 (AstroPix, clock=10ns, reverse=1) ===
=== event 0 ===
hits: 1
  Hit{chip=0, payload=4, Col=5, ts=16, tot=256} ToT=2.56us
`,
		},
		{
			name: "none",
			max:  0,
			want: "",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out := new(bytes.Buffer)
			err := process(out, fname, tc.raw, tc.max)
			if err != nil {
				t.Fatalf("could not dump file: %+v", err)
			}

			if got, want := out.String(), tc.want; got != want {
				t.Fatalf("invalid output:\ngot:\n%s\nwant:\n%s", got, want)
			}
		})
	}
}

func TestProcessInvalid(t *testing.T) {
	err := process(io.Discard, filepath.Join(t.TempDir(), "missing.slcio"), true, -1)
	if err == nil {
		t.Fatalf("expected an error")
	}
}
