// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// astropix-dump decodes and displays AstroPix raw logs.
//
// Usage: astropix-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//  $> astropix-dump ./run_042_20220415-052000.log
//  === event 0 ===
//  raw: bcbc20a1088000bcbc
//  Header: ChipId: 0	Payload: 4	Location: 5	Row/Col: Col	Timestamp: 16	ToT: MSB: 1	LSB: 0 Total: 256 (2.56 us)
//  [...]
//
//  $> astropix-dump -fmt=csv -o hits.csv ./run_042_20220415-052000.log
//  $> astropix-dump -fmt=npy -o hits.npy ./run_042_20220415-052000.log
package main // import "github.com/go-lpc/astropix/cmd/astropix-dump"

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/astropix/hits"
	"github.com/go-lpc/astropix/internal/rawlog"
)

func main() {
	log.SetPrefix("astropix-dump: ")
	log.SetFlags(0)

	xmain(os.Stdout, os.Args[1:])
}

func xmain(stdout io.Writer, args []string) {
	var (
		fset    = flag.NewFlagSet("astropix-dump", flag.ExitOnError)
		format  = fset.String("fmt", "text", "output format (text, csv, tsv, npy)")
		oname   = fset.String("o", "", "path to output file (default: stdout)")
		period  = fset.Duration("period", hits.DefaultPeriod, "ASIC sample clock period")
		reverse = fset.Bool("reverse", true, "bit-reverse readout bytes before decoding")
	)

	fset.Usage = func() {
		fmt.Fprintf(stdout, `astropix-dump decodes and displays AstroPix raw logs.

Usage: astropix-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> astropix-dump ./run_042_20220415-052000.log
 $> astropix-dump -fmt=csv -o hits.csv ./run_042_20220415-052000.log

Options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse args: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input raw log file")
	}

	out := stdout
	if *oname != "" {
		f, err := os.Create(*oname)
		if err != nil {
			log.Fatalf("could not create output file: %+v", err)
		}
		defer f.Close()
		out = f
	}

	dec := hits.NewDecoder(*period, *reverse)
	err = process(out, *format, dec, fset.Args())
	if err != nil {
		log.Fatalf("could not dump files: %+v", err)
	}

	if f, ok := out.(*os.File); ok && f != stdout {
		err = f.Close()
		if err != nil {
			log.Fatalf("could not close output file: %+v", err)
		}
	}
}

func process(w io.Writer, format string, dec *hits.Decoder, fnames []string) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	var (
		dump func(e rawlog.Entry) error
		done func() error

		// raw logs do not record the readout time.
		beg = time.Unix(0, 0)
	)

	switch format {
	case "text":
		dump = func(e rawlog.Entry) error {
			fmt.Fprintf(wbuf, "=== event %d ===\n", e.Index)
			fmt.Fprintf(wbuf, "raw: %x\n", e.Data)
			return hits.Print(wbuf, dec, dec.Decode(e.Data))
		}
		done = func() error { return nil }

	case "csv", "tsv":
		var opts []hits.WriterOption
		if format == "tsv" {
			opts = append(opts, hits.WithDelimiter('\t'))
		}
		hw := hits.NewWriter(wbuf, dec, opts...)
		dump = func(e rawlog.Entry) error {
			return hw.Write(dec.Records(e.Index, beg, e.Data))
		}
		done = hw.Flush

	case "npy":
		var recs []hits.Record
		dump = func(e rawlog.Entry) error {
			recs = append(recs, dec.Records(e.Index, beg, e.Data)...)
			return nil
		}
		done = func() error {
			if len(recs) == 0 {
				return fmt.Errorf("no hits to write")
			}
			return dec.WriteNpy(wbuf, recs)
		}

	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	for _, fname := range fnames {
		err := dumpFile(fname, dump)
		if err != nil {
			return fmt.Errorf("could not dump file %q: %w", fname, err)
		}
	}

	err := done()
	if err != nil {
		return fmt.Errorf("could not write %s output: %w", format, err)
	}

	return wbuf.Flush()
}

func dumpFile(fname string, dump func(e rawlog.Entry) error) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	r := rawlog.NewReader(f)
	for r.Next() {
		err = dump(r.Entry())
		if err != nil {
			return err
		}
	}
	return r.Err()
}
