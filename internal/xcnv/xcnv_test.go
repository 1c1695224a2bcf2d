// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"bytes"
	"io"
	"log"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/go-lpc/astropix/hits"
	"github.com/go-lpc/astropix/internal/rawlog"
	"go-hep.org/x/hep/lcio"
)

func TestRaw2LCIO(t *testing.T) {
	const raw = `0	bcbc20a1088000bcbc
1	
2	bcbc20a1088000bcbc8440880008bcbc
`
	var (
		tmp   = t.TempDir()
		fname = filepath.Join(tmp, "run-042.lcio")
		msg   = log.New(io.Discard, "", 0)
		dec   = hits.NewDecoder(0, true)
	)

	lw, err := lcio.Create(fname)
	if err != nil {
		t.Fatalf("could not create LCIO file: %+v", err)
	}
	defer lw.Close()

	err = Raw2LCIO(lw, rawlog.NewReader(strings.NewReader(raw)), dec, 42, msg)
	if err != nil {
		t.Fatalf("could not convert to LCIO: %+v", err)
	}
	err = lw.Close()
	if err != nil {
		t.Fatalf("could not close LCIO file: %+v", err)
	}

	lr, err := lcio.Open(fname)
	if err != nil {
		t.Fatalf("could not open LCIO file: %+v", err)
	}
	defer lr.Close()

	var (
		nhits []int
		first []int32
	)
	for lr.Next() {
		evt := lr.Event()
		if evt.RunNumber != 42 {
			t.Fatalf("invalid run number: %d", evt.RunNumber)
		}
		obj := evt.Get(HitsCollection).(*lcio.GenericObject)
		nhits = append(nhits, len(obj.Data))
		if first == nil && len(obj.Data) > 0 {
			first = obj.Data[0].I32s
		}

		hs, tot, err := Hits(&evt)
		if err != nil {
			t.Fatalf("could not read hits of event %d: %+v", evt.EventNumber, err)
		}
		if got, want := len(hs), len(obj.Data); got != want {
			t.Fatalf("invalid number of hits: got=%d, want=%d", got, want)
		}
		if evt.EventNumber == 0 {
			want := hits.Hit{
				Payload: 4, Location: 5, IsColumn: true,
				Timestamp: 16, ToTMSB: 1, ToTLSB: 0,
			}
			if got := hs[0]; got != want {
				t.Fatalf("invalid hit:\ngot= %v\nwant=%v", got, want)
			}
			if got, want := tot[0], 2.56; math.Abs(got-want) > 1e-6 {
				t.Fatalf("invalid ToT: got=%v, want=%v", got, want)
			}
		}
	}
	err = lr.Close()
	if err != nil {
		t.Fatalf("could not close LCIO file: %+v", err)
	}

	if got, want := nhits, []int{1, 0, 2}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid number of hits: got=%v, want=%v", got, want)
	}
	if got, want := first, []int32{0, 4, 5, 1, 16, 256}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid first hit: got=%v, want=%v", got, want)
	}

	lr, err = lcio.Open(fname)
	if err != nil {
		t.Fatalf("could not open LCIO file: %+v", err)
	}
	defer lr.Close()

	out := new(bytes.Buffer)
	err = LCIO2Raw(rawlog.NewWriter(out), lr, 1, msg)
	if err != nil {
		t.Fatalf("could not convert to raw log: %+v", err)
	}

	if got, want := out.String(), raw; got != want {
		t.Fatalf("round-trip failed:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestI32s(t *testing.T) {
	for _, tc := range []struct {
		raw  []byte
		want []int32
	}{
		{raw: nil, want: []int32{0}},
		{raw: []byte{1}, want: []int32{1, 1}},
		{raw: []byte{1, 2, 3, 4}, want: []int32{4, 0x04030201}},
		{raw: []byte{1, 2, 3, 4, 5}, want: []int32{5, 0x04030201, 5}},
	} {
		got := i32sFrom(tc.raw)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("invalid words for %x: got=%v, want=%v", tc.raw, got, tc.want)
		}
		raw, err := bytesFromI32s(got)
		if err != nil {
			t.Fatalf("could not decode %v: %+v", got, err)
		}
		if !bytes.Equal(raw, tc.raw) {
			t.Fatalf("invalid bytes: got=%x, want=%x", raw, tc.raw)
		}
	}

	for _, raw := range [][]int32{nil, {-1}, {5, 0}} {
		_, err := bytesFromI32s(raw)
		if err == nil {
			t.Fatalf("expected an error for %v", raw)
		}
	}
}
