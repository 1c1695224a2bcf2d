// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lcio2astropix extracts the AstroPix readout streams of an LCIO
// file into a raw log.
package main // import "github.com/go-lpc/astropix/cmd/lcio2astropix"

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/astropix/internal/rawlog"
	"github.com/go-lpc/astropix/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

var (
	msg = log.New(os.Stdout, "lcio2astropix: ", 0)
)

func main() {
	var (
		oname = flag.String("o", "out.log", "path to output raw log file")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: lcio2astropix [OPTIONS] file.lcio

ex:
 $> lcio2astropix -o out.log ./input.lcio

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		msg.Fatalf("missing input LCIO file")
	}

	if *oname == "" {
		flag.Usage()
		msg.Fatalf("invalid output raw log file name")
	}

	n, err := numEvents(flag.Arg(0))
	if err != nil {
		msg.Fatalf("could not assess number of events: %+v", err)
	}
	msg.Printf("input:  %s", flag.Arg(0))
	msg.Printf("events: %d", n)

	err = process(*oname, flag.Arg(0), int(n/10))
	if err != nil {
		msg.Fatalf("could not convert LCIO file: %+v", err)
	}
}

func numEvents(fname string) (int64, error) {
	r, err := lcio.Open(fname)
	if err != nil {
		return 0, fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer r.Close()

	var n int64
	for r.Next() {
		n++
	}

	err = r.Err()
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("could not assess number of events in %q: %w", fname, err)
	}

	return n, nil
}

func process(oname, fname string, freq int) error {
	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open LCIO file: %w", err)
	}
	defer r.Close()

	f, err := os.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output raw log: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	err = xcnv.LCIO2Raw(rawlog.NewWriter(w), r, freq, msg)
	if err != nil {
		return fmt.Errorf("could not convert LCIO to raw log: %w", err)
	}

	err = w.Flush()
	if err != nil {
		return fmt.Errorf("could not flush output raw log: %w", err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close output raw log: %w", err)
	}
	return nil
}
