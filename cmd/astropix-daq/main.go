// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command astropix-daq configures an AstroPix chip and takes data in
// stand-alone mode.
//
// Raw readouts are stored in <outdir>/<name>_<run>_<date>.log and decoded
// hits in a TSV (or CSV) table alongside. Events may also be published
// on a ZMQ socket, stored in ClickHouse and served over HTTP.
package main // import "github.com/go-lpc/astropix/cmd/astropix-daq"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/go-lpc/astropix/nexys"
	"golang.org/x/sys/unix"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	log.SetPrefix("astropix-daq: ")
	log.SetFlags(0)

	err := xmain(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("%+v", err)
	}
}

func xmain(args []string) error {
	fs := newFlagSet("astropix-daq")
	fs.Usage = func() {
		fmt.Printf(`Usage: astropix-daq [OPTIONS]

Settings are read from astropix.yaml in $HOME/.astropix, /etc/astropix
or the current directory, then from ASTROPIX_* environment variables
(e.g. ASTROPIX_DB_PASSWORD), then from the command line.

ex:
 $> astropix-daq -run=42 -asic-cfg=chip602.yaml -outdir=./data
 $> astropix-daq -run=43 -db-cfg=beam -db-record -http=:8080 -zmq=tcp://*:5556

options:
`)
		fs.PrintDefaults()
	}

	err := fs.Parse(args)
	if err != nil {
		return err
	}

	s, err := loadSettings(fs, settingsDirs)
	if err != nil {
		return fmt.Errorf("could not load settings: %w", err)
	}

	out := io.Writer(os.Stdout)
	if s.Log != "" {
		lj := &lumberjack.Logger{
			Filename:   s.Log,
			MaxSize:    10, // megabytes
			MaxBackups: 4,
			MaxAge:     180, // days
			Compress:   true,
		}
		defer lj.Close()
		out = io.MultiWriter(os.Stdout, lj)
		log.SetOutput(out)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	d := newDAQ(s, out)
	cfg, name, err := d.asicConfig(ctx)
	if err != nil {
		return err
	}

	dev, err := nexys.Open(
		nexys.WithSerialPrefix(s.Serial),
		nexys.WithRetry(5*time.Second),
		nexys.WithLogger(log.New(out, "nexys: ", 0)),
	)
	if err != nil {
		return fmt.Errorf("could not open Nexys board: %w", err)
	}
	defer dev.Close()

	sum, err := d.run(ctx, nexys.NewBoard(dev), cfg, name)
	sum.Err = err
	d.report(sum)
	if err != nil {
		return fmt.Errorf("could not run DAQ: %w", err)
	}
	return nil
}
