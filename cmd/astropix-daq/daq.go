// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-lpc/astropix"
	"github.com/go-lpc/astropix/asic"
	"github.com/go-lpc/astropix/conddb"
	"github.com/go-lpc/astropix/hits"
	"github.com/go-lpc/astropix/readout"
	"github.com/sbinet/pmon"
	"github.com/theckman/yacspin"
	"golang.org/x/sync/errgroup"
)

type board interface {
	readout.Board
	SRReadbackReset() error
	WriteASIC(cfg asic.Config, clkdiv int) error
	SPIEnable(enable bool) error
	SPIReset() error
	SetSPIClkDiv(clkdiv uint8) error
	SendRoutingCmd() error
}

// summary describes a completed run.
type summary struct {
	ID      string
	Run     int
	Version string
	Config  string
	Start   time.Time
	Stop    time.Time
	Stats   readout.Stats
	Files   []string
	Err     error
}

type daq struct {
	s   settings
	out io.Writer
	msg *log.Logger
	now func() time.Time
}

func newDAQ(s settings, out io.Writer) *daq {
	return &daq{
		s:   s,
		out: out,
		msg: log.New(out, "astropix-daq: ", 0),
		now: time.Now,
	}
}

func (d *daq) openDB() (*conddb.DB, error) {
	return conddb.Open(
		d.s.DBName,
		conddb.WithHost(d.s.DBHost),
		conddb.WithUser(d.s.DBUser, d.s.DBPass),
	)
}

// asicConfig returns the ASIC configuration of the run and its name.
func (d *daq) asicConfig(ctx context.Context) (asic.Config, string, error) {
	switch {
	case d.s.DBConfig != "":
		db, err := d.openDB()
		if err != nil {
			return asic.Config{}, "", err
		}
		defer db.Close()

		cfg, err := db.ASICConfig(ctx, d.s.DBConfig)
		if err != nil {
			return cfg, "", fmt.Errorf("could not retrieve ASIC configuration: %w", err)
		}
		return cfg, d.s.DBConfig, nil

	case d.s.Config != "":
		cfg, err := asic.ReadFile(d.s.Config)
		if err != nil {
			return cfg, "", fmt.Errorf("could not load ASIC configuration: %w", err)
		}
		return cfg, filepath.Base(d.s.Config), nil

	default:
		d.msg.Printf("using default ASIC configuration")
		return asic.Default(), "default", nil
	}
}

// configure loads cfg into the chip and prepares the SPI readout.
func (d *daq) configure(brd board, cfg asic.Config) error {
	err := brd.SRReadbackReset()
	if err != nil {
		return err
	}

	err = brd.WriteASIC(cfg, d.s.ClkDiv)
	if err != nil {
		return err
	}

	err = brd.SPIEnable(true)
	if err != nil {
		return err
	}

	err = brd.SPIReset()
	if err != nil {
		return err
	}

	err = brd.SetSPIClkDiv(uint8(d.s.SPIClkDiv))
	if err != nil {
		return err
	}

	return brd.SendRoutingCmd()
}

// settle waits for the chip to settle after its configuration.
func (d *daq) settle(ctx context.Context) error {
	if d.s.Settle <= 0 {
		return nil
	}

	spin, err := yacspin.New(yacspin.Config{
		Writer:        d.out,
		Frequency:     100 * time.Millisecond,
		CharSet:       yacspin.CharSets[11],
		Suffix:        " settling",
		StopCharacter: "✓",
		StopColors:    []string{"fgGreen"},
	})
	if err != nil {
		return fmt.Errorf("could not create spinner: %w", err)
	}

	err = spin.Start()
	if err != nil {
		return fmt.Errorf("could not start spinner: %w", err)
	}
	defer func() { _ = spin.Stop() }()

	var (
		end = d.now().Add(d.s.Settle)
		tck = time.NewTicker(100 * time.Millisecond)
	)
	defer tck.Stop()

	for {
		left := end.Sub(d.now())
		if left <= 0 {
			return nil
		}
		spin.Message(fmt.Sprintf("%v left", left.Round(100*time.Millisecond)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tck.C:
		}
	}
}

func (d *daq) basename(beg time.Time) string {
	name := fmt.Sprintf("%s_%d_%s", d.s.Name, d.s.Run, beg.Format("20060102-150405"))
	return filepath.Join(d.s.OutDir, name)
}

type outputs struct {
	sinks  []readout.Sink
	files  []string
	closes []func() error
}

func (o *outputs) create(fname string) (*os.File, error) {
	f, err := os.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("could not create output file: %w", err)
	}
	o.files = append(o.files, fname)
	o.closes = append(o.closes, f.Close)
	return f, nil
}

func (o *outputs) close() error {
	var err error
	for i := len(o.closes) - 1; i >= 0; i-- {
		e := o.closes[i]()
		if e != nil && err == nil {
			err = e
		}
	}
	o.closes = nil
	return err
}

func (d *daq) outputs(base string, dec *hits.Decoder) (*outputs, error) {
	o := new(outputs)

	raw, err := o.create(base + ".log")
	if err != nil {
		return o, err
	}
	o.sinks = append(o.sinks, readout.RawSink(raw))

	var (
		ext   = ".txt"
		delim = '\t'
	)
	if d.s.CSV {
		ext = ".csv"
		delim = ','
	}
	tbl, err := o.create(base + ext)
	if err != nil {
		return o, err
	}
	o.sinks = append(o.sinks, readout.TableSink(hits.NewWriter(tbl, dec, hits.WithDelimiter(delim))))

	if d.s.Npy {
		npy, err := o.create(base + ".npy")
		if err != nil {
			return o, err
		}
		o.sinks = append(o.sinks, readout.NpySink(npy, dec))
	}

	if d.s.Show {
		o.sinks = append(o.sinks, readout.ConsoleSink(d.out, dec))
	}

	if d.s.ZMQ != "" {
		pub, err := readout.NewZMQ(d.s.ZMQ)
		if err != nil {
			return o, err
		}
		o.sinks = append(o.sinks, pub)
		o.closes = append(o.closes, pub.Close)
		d.msg.Printf("publishing events on %q", d.s.ZMQ)
	}

	return o, nil
}

// monitor starts monitoring the resources used by the process.
// The returned function stops the monitoring.
func (d *daq) monitor(base string) (func(), error) {
	if !d.s.PMon {
		return func() {}, nil
	}

	p, err := pmon.Monitor(os.Getpid())
	if err != nil {
		return nil, fmt.Errorf("could not start monitoring: %w", err)
	}
	f, err := os.Create(base + "-pmon.log")
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = d.s.PMonFreq

	go func() {
		err := p.Run()
		if err != nil {
			d.msg.Printf("could not run pmon: %+v", err)
		}
	}()

	return func() {
		err := p.Kill()
		if err != nil {
			d.msg.Printf("could not stop pmon: %+v", err)
		}
		_ = f.Close()
	}, nil
}

// run configures the chip and reads it out until ctx is cancelled or
// the maximum number of events is reached.
func (d *daq) run(ctx context.Context, brd board, cfg asic.Config, name string) (summary, error) {
	sum := summary{
		ID:     readout.NewRunID(),
		Run:    d.s.Run,
		Config: name,
		Start:  d.now(),
	}
	sum.Version, _ = astropix.Version()

	err := d.configure(brd, cfg)
	if err != nil {
		return sum, fmt.Errorf("could not configure board: %w", err)
	}

	err = d.settle(ctx)
	if err != nil {
		return sum, fmt.Errorf("could not wait for chip to settle: %w", err)
	}

	err = os.MkdirAll(d.s.OutDir, 0755)
	if err != nil {
		return sum, fmt.Errorf("could not create output directory: %w", err)
	}

	var (
		base = d.basename(sum.Start)
		dec  = hits.NewDecoder(d.s.Period, d.s.Reverse)
	)

	outs, err := d.outputs(base, dec)
	defer outs.close()
	sum.Files = outs.files
	if err != nil {
		return sum, err
	}

	var chdb *readout.ClickHouse
	if d.s.CHAddr != "" {
		chdb, err = readout.NewClickHouse(
			ctx,
			readout.ClickHouseOptions(d.s.CHAddr, d.s.CHName, d.s.CHUser, d.s.CHPass),
			readout.Run{ID: sum.ID, Config: name, Start: sum.Start},
			dec,
		)
		if err != nil {
			return sum, err
		}
		outs.sinks = append(outs.sinks, chdb)
	}

	stop, err := d.monitor(base)
	if err != nil {
		return sum, err
	}
	defer stop()

	loop := readout.New(brd, []readout.Sink{readout.Multi(outs.sinks...)},
		readout.WithLogger(log.New(d.out, "readout: ", 0)),
		readout.WithDelay(d.s.Delay),
		readout.WithIdleBytes(d.s.Idle),
		readout.WithClockPeriod(d.s.Period),
		readout.WithReverse(d.s.Reverse),
		readout.WithPollRate(d.s.PollRate),
		readout.WithMaxEvents(d.s.MaxEvents),
	)

	d.msg.Printf("starting run %d (id=%s, config=%q, version=%q)...", sum.Run, sum.ID, name, sum.Version)

	grp, gctx := errgroup.WithContext(ctx)
	rctx, cancel := context.WithCancel(gctx)
	defer cancel()

	grp.Go(func() error {
		defer cancel()
		return loop.Run(rctx)
	})

	if d.s.HTTP != "" {
		srv := &http.Server{
			Addr:    d.s.HTTP,
			Handler: readout.NewStatusRouter(sum.ID, sum.Start, loop, asic.NewStore(cfg)),
		}
		grp.Go(func() error {
			err := srv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("could not serve run status: %w", err)
			}
			return nil
		})
		grp.Go(func() error {
			<-rctx.Done()
			return srv.Shutdown(context.Background())
		})
		d.msg.Printf("serving run status on %q", d.s.HTTP)
	}

	err = grp.Wait()

	sum.Stop = d.now()
	sum.Stats = loop.Stats()
	d.msg.Printf(
		"run %d stopped: events=%d, hits=%d, malformed=%d",
		sum.Run, sum.Stats.Events, sum.Stats.Hits, sum.Stats.Malformed,
	)

	if chdb != nil {
		e := chdb.Close(sum.Stats)
		if e != nil && err == nil {
			err = e
		}
	}

	e := outs.close()
	if e != nil && err == nil {
		err = fmt.Errorf("could not close outputs: %w", e)
	}

	return sum, err
}

// report records the run in the database and mails its summary,
// when requested.
func (d *daq) report(sum summary) {
	if d.s.Record {
		err := d.record(sum)
		if err != nil {
			d.msg.Printf("could not record run: %+v", err)
		}
	}

	if d.s.Mail {
		m, err := newMailer(os.Getenv)
		if err != nil {
			d.msg.Printf("could not send mail: %+v", err)
			return
		}
		err = m.send(mailSubject(sum), mailBody(sum))
		if err != nil {
			d.msg.Printf("%+v", err)
		}
	}
}

func (d *daq) record(sum summary) error {
	db, err := d.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	return db.RecordRun(context.Background(), conddb.Run{
		ID:        sum.ID,
		Config:    sum.Config,
		Start:     sum.Start,
		Stop:      sum.Stop,
		Events:    sum.Stats.Events,
		Hits:      sum.Stats.Hits,
		Malformed: sum.Stats.Malformed,
	})
}
