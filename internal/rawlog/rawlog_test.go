// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawlog

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func TestWriter(t *testing.T) {
	o := new(bytes.Buffer)
	w := NewWriter(o)
	for i, raw := range [][]byte{
		{0xbc, 0xbc, 0x20},
		nil,
		{0x00, 0xff},
	} {
		if err := w.Write(i, raw); err != nil {
			t.Fatalf("could not write readout %d: %+v", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("could not flush: %+v", err)
	}

	want := "0\tbcbc20\n1\t\n2\t00ff\n"
	if got := o.String(); got != want {
		t.Fatalf("invalid log:\ngot= %q\nwant=%q", got, want)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }

func TestWriterError(t *testing.T) {
	w := NewWriter(failingWriter{})
	_ = w.Write(0, make([]byte, 8192))
	err := w.Flush()
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("invalid error: %v", err)
	}
	if err := w.Write(1, nil); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("error not sticky: %v", err)
	}
}

func TestReader(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  string
		want []Entry
		err  bool
	}{
		{
			name: "plain",
			raw:  "0\tbcbc20\n\n1\t00ff\n",
			want: []Entry{
				{Index: 0, Data: []byte{0xbc, 0xbc, 0x20}},
				{Index: 1, Data: []byte{0x00, 0xff}},
			},
		},
		{
			name: "legacy",
			raw:  "4\tb'bcbc20'\n5\tb''\n",
			want: []Entry{
				{Index: 4, Data: []byte{0xbc, 0xbc, 0x20}},
				{Index: 5, Data: []byte{}},
			},
		},
		{
			name: "no-index",
			raw:  "bcbc\n20\n",
			want: []Entry{
				{Index: 0, Data: []byte{0xbc, 0xbc}},
				{Index: 1, Data: []byte{0x20}},
			},
		},
		{
			name: "invalid-index",
			raw:  "x\tbcbc\n",
			err:  true,
		},
		{
			name: "invalid-hex",
			raw:  "0\tbcb\n",
			err:  true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ReadAll(strings.NewReader(tc.raw))
			switch {
			case err != nil && !tc.err:
				t.Fatalf("could not read log: %+v", err)
			case err == nil && tc.err:
				t.Fatalf("expected an error")
			case tc.err:
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid entries:\ngot= %v\nwant=%v", got, tc.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	buf := new(bytes.Buffer)
	w := NewWriter(buf)
	want := []Entry{
		{Index: 0, Data: []byte{1, 2, 3}},
		{Index: 7, Data: bytes.Repeat([]byte{0xbc}, 200)},
	}
	for _, e := range want {
		_ = w.Write(e.Index, e.Data)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	got, err := ReadAll(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round-trip mismatch")
	}
}
