// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"compress/flate"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-lpc/astropix/hits"
	"github.com/go-lpc/astropix/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

func TestRunNbrFrom(t *testing.T) {
	for _, tc := range []struct {
		fname string
		run   int32
		err   bool
	}{
		{
			fname: "./run_042_20220415-052000.log",
			run:   42,
		},
		{
			fname: "/some/dir/beam_test_663_20220415-052000.log",
			run:   663,
		},
		{
			fname: "../some/dir/run_009_x.log",
			run:   9,
		},
		{
			fname: "run.log",
			err:   true,
		},
		{
			fname: "run_abc_x.log",
			err:   true,
		},
	} {
		t.Run(tc.fname, func(t *testing.T) {
			got, err := runNbrFrom(tc.fname)
			switch {
			case tc.err && err == nil:
				t.Fatalf("expected an error")
			case tc.err:
				return
			case err != nil:
				t.Fatalf("could not infer run-nbr: %+v", err)
			}
			if got != tc.run {
				t.Fatalf("invalid run: got=%d, want=%d", got, tc.run)
			}
		})
	}
}

func TestProcess(t *testing.T) {
	tmp := t.TempDir()

	fname := filepath.Join(tmp, "run_063_20220415-052000.log")
	err := os.WriteFile(fname, []byte("0\tbcbc20a1088000bcbc\n1\tbcbc\n"), 0644)
	if err != nil {
		t.Fatalf("could not create raw log: %+v", err)
	}

	oname := fname + ".lcio"
	err = process(oname, flate.DefaultCompression, fname, -1, hits.DefaultPeriod, true)
	if err != nil {
		t.Fatalf("could not convert raw log: %+v", err)
	}

	r, err := lcio.Open(oname)
	if err != nil {
		t.Fatalf("could not open LCIO file: %+v", err)
	}
	defer r.Close()

	n := 0
	for r.Next() {
		evt := r.Event()
		if evt.RunNumber != 63 {
			t.Fatalf("invalid run number: got=%d, want=%d", evt.RunNumber, 63)
		}
		if evt.Get(xcnv.RawCollection) == nil {
			t.Fatalf("missing raw collection in event %d", evt.EventNumber)
		}
		n++
	}
	if n != 2 {
		t.Fatalf("invalid number of events: got=%d, want=%d", n, 2)
	}
}
