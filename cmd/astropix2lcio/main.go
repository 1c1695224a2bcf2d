// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command astropix2lcio converts an AstroPix raw log to an LCIO file.
package main // import "github.com/go-lpc/astropix/cmd/astropix2lcio"

import (
	"compress/flate"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-lpc/astropix/hits"
	"github.com/go-lpc/astropix/internal/rawlog"
	"github.com/go-lpc/astropix/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

var (
	msg = log.New(os.Stdout, "astropix2lcio: ", 0)
)

func main() {
	var (
		oname   = flag.String("o", "out.lcio", "path to output LCIO file")
		compr   = flag.Int("lvl", flate.DefaultCompression, "compression level for output LCIO file")
		run     = flag.Int("run", -1, "run number (default: inferred from input file name)")
		period  = flag.Duration("period", hits.DefaultPeriod, "ASIC sample clock period")
		reverse = flag.Bool("reverse", true, "bit-reverse readout bytes before decoding")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: astropix2lcio [OPTIONS] file.log

ex:
 $> astropix2lcio -o out.lcio -lvl=9 ./run_042_20220415-052000.log

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		msg.Fatalf("missing input raw log file")
	}

	if *oname == "" {
		flag.Usage()
		msg.Fatalf("invalid output LCIO file name")
	}

	err := process(*oname, *compr, flag.Arg(0), int32(*run), *period, *reverse)
	if err != nil {
		msg.Fatalf("could not convert raw log: %+v", err)
	}
}

func process(oname string, lvl int, fname string, run int32, period time.Duration, reverse bool) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open raw log: %w", err)
	}
	defer f.Close()

	if run < 0 {
		run, err = runNbrFrom(fname)
		if err != nil {
			return fmt.Errorf("could not infer run from %q: %w", fname, err)
		}
	}

	w, err := lcio.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()

	w.SetCompressionLevel(lvl)

	dec := hits.NewDecoder(period, reverse)
	err = xcnv.Raw2LCIO(w, rawlog.NewReader(f), dec, run, msg)
	if err != nil {
		return fmt.Errorf("could not convert raw log to LCIO: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output LCIO file: %w", err)
	}

	return nil
}

// runNbrFrom extracts the run number from raw log names of the form
// "<prefix>_<run>_<timestamp>.log".
func runNbrFrom(fname string) (int32, error) {
	var (
		name = filepath.Base(fname)
		run  int32
		stmp string
	)
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] != '_' {
			continue
		}
		stmp = name[:i]
		break
	}
	for i := len(stmp) - 1; i >= 0; i-- {
		if stmp[i] != '_' {
			continue
		}
		_, err := fmt.Sscanf(stmp[i+1:], "%d", &run)
		return run, err
	}
	return 0, fmt.Errorf("no run number in %q", name)
}
