// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// lcio-dump displays AstroPix events embedded in LCIO files.
//
// Usage: lcio-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//  $> lcio-dump ./beam_42_20220415-100000.slcio
//  === run 42 (AstroPix, clock=10ns, reverse=1) ===
//  === event 0 ===
//  raw:  bcbc20a1088000bcbc
//  hits: 1
//    Hit{chip=0, payload=4, Col=5, ts=16, tot=256} ToT=2.56us
//  [...]
package main // import "github.com/go-lpc/astropix/cmd/lcio-dump"

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/astropix/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

const usage = `lcio-dump displays AstroPix events embedded in LCIO files.

Usage: lcio-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> lcio-dump ./beam_42_20220415-100000.slcio
 === run 42 (AstroPix, clock=10ns, reverse=1) ===
 === event 0 ===
 raw:  bcbc20a1088000bcbc
 hits: 1
   Hit{chip=0, payload=4, Col=5, ts=16, tot=256} ToT=2.56us
 [...]

options:
`

func main() {
	log.SetPrefix("lcio-dump: ")
	log.SetFlags(0)

	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	var (
		fset = flag.NewFlagSet("lcio-dump", flag.ExitOnError)

		raw   = fset.Bool("raw", true, "display the readout streams")
		nevts = fset.Int("n", -1, "maximum number of events to display per file (-1: all)")
	)

	fset.Usage = func() {
		fmt.Print(usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input LCIO file")
	}

	for _, fname := range fset.Args() {
		err := process(w, fname, *raw, *nevts)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, raw bool, nevts int) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open LCIO file: %w", err)
	}
	defer r.Close()

	for i := 0; nevts < 0 || i < nevts; i++ {
		if !r.Next() {
			break
		}
		if i == 0 {
			rhdr := r.RunHeader()
			fmt.Fprintf(wbuf, "=== run %d (%s", rhdr.RunNumber, rhdr.Detector)
			if v := rhdr.Params.Ints["ClockPeriod"]; len(v) == 1 {
				fmt.Fprintf(wbuf, ", clock=%dns", v[0])
			}
			if v := rhdr.Params.Ints["Reverse"]; len(v) == 1 {
				fmt.Fprintf(wbuf, ", reverse=%d", v[0])
			}
			fmt.Fprintf(wbuf, ") ===\n")
		}

		evt := r.Event()
		if evt.Detector != xcnv.Detector {
			return fmt.Errorf("event %d is not an AstroPix event (detector=%q)", evt.EventNumber, evt.Detector)
		}
		fmt.Fprintf(wbuf, "=== event %d ===\n", evt.EventNumber)

		if raw {
			data, err := xcnv.Raw(&evt)
			if err != nil {
				return err
			}
			switch len(data) {
			case 0:
				fmt.Fprintf(wbuf, "raw:\n")
			default:
				fmt.Fprintf(wbuf, "raw:  %x\n", data)
			}
		}

		hs, tot, err := xcnv.Hits(&evt)
		if err != nil {
			return err
		}
		fmt.Fprintf(wbuf, "hits: %d\n", len(hs))
		for j, h := range hs {
			fmt.Fprintf(wbuf, "  %v ToT=%gus\n", h, float32(tot[j]))
		}
	}

	err = r.Err()
	if err != nil && err != io.EOF {
		return fmt.Errorf("could not read LCIO file: %w", err)
	}

	return nil
}
