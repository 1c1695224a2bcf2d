// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lcio-rewrite-run rewrites the run number of an AstroPix LCIO
// file.
//
// With -period or -reverse, the hits of every event are also decoded
// again from their readout stream, e.g. to fix the ToT calibration of
// a run taken with the wrong clock settings.
package main // import "github.com/go-lpc/astropix/cmd/lcio-rewrite-run"

import (
	"compress/flate"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-lpc/astropix/hits"
	"github.com/go-lpc/astropix/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

func main() {
	log.SetPrefix("lcio-rewrite: ")
	log.SetFlags(0)

	err := xmain(os.Args[1:])
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type options struct {
	run    int32
	dec    *hits.Decoder
	freq   int
	oname  string
	fname  string
	report *log.Logger
}

func parse(args []string) (options, error) {
	var (
		fset = flag.NewFlagSet("lcio-rewrite-run", flag.ContinueOnError)

		runnbr  = fset.Int("run", 0, "run number to use for output LCIO file")
		oname   = fset.String("o", "out.slcio", "path to output rewritten LCIO file")
		freq    = fset.Int("freq", 100, "frequency of progress messages")
		period  = fset.Duration("period", 0, "re-decode hits with this ToT clock period")
		reverse = fset.String("reverse", "", "re-decode hits with (true) or without (false) bit reversal")
	)

	fset.Usage = func() {
		fmt.Printf(`Usage: lcio-rewrite-run [OPTIONS] FILE.slcio

ex:
 $> lcio-rewrite-run -o output.slcio -run=1234 ./input.slcio
 $> lcio-rewrite-run -o output.slcio -run=1234 -period=20ns ./input.slcio
 lcio-rewrite: processing event 0...
 lcio-rewrite: processing event 100...
 lcio-rewrite: processed 136 events

options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		return options{}, err
	}

	if fset.NArg() != 1 {
		fset.Usage()
		return options{}, fmt.Errorf("missing input LCIO file to rewrite")
	}

	opts := options{
		run:    int32(*runnbr),
		freq:   *freq,
		oname:  *oname,
		fname:  fset.Arg(0),
		report: log.New(os.Stdout, "lcio-rewrite: ", 0),
	}

	if *period == 0 && *reverse == "" {
		return opts, nil
	}

	var (
		p   = hits.DefaultPeriod
		rev = true
	)
	if *period < 0 {
		return opts, fmt.Errorf("invalid clock period %v", *period)
	}
	if *period > 0 {
		p = *period
	}
	switch *reverse {
	case "", "true":
	case "false":
		rev = false
	default:
		return opts, fmt.Errorf("invalid -reverse value %q", *reverse)
	}
	opts.dec = hits.NewDecoder(p, rev)

	return opts, nil
}

func xmain(args []string) error {
	opts, err := parse(args)
	if err != nil {
		return err
	}

	start := time.Now()
	err = rewrite(opts)
	if err != nil {
		return fmt.Errorf("could not rewrite %q: %w", opts.fname, err)
	}
	opts.report.Printf("done in %v", time.Since(start).Round(time.Millisecond))
	return nil
}

func rewrite(opts options) error {
	r, err := lcio.Open(opts.fname)
	if err != nil {
		return fmt.Errorf("could not open input LCIO file: %w", err)
	}
	defer r.Close()

	w, err := lcio.Create(opts.oname)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()

	w.SetCompressionLevel(flate.BestCompression)

	n, err := xcnv.Rewrite(w, r, opts.run, opts.dec, opts.freq, opts.report)
	if err != nil {
		return err
	}
	opts.report.Printf("processed %d events", n)

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output file: %w", err)
	}
	return nil
}
