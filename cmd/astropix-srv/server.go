// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/astropix/asic"
	"github.com/go-lpc/astropix/nexys"
	"github.com/go-lpc/astropix/readout"
)

type device interface {
	nexys.Transport
	Close() error
}

type server struct {
	name   string
	serial string
	fname  string
	clkdiv int
	spidiv uint8

	cfg  *asic.Store
	open func() (device, error)
	opts []readout.Option

	mu   sync.Mutex
	dev  device
	brd  *nexys.Board
	loop *readout.Loop
	data chan []byte

	drops uint64
}

func newServer(name string, getenv func(string) string) (*server, error) {
	srv := &server{
		name:   name,
		serial: nexys.SerialPrefix,
		fname:  getenv("ASTROPIX_ASIC_CFG"),
		clkdiv: 8,
		spidiv: 255,
		cfg:    asic.NewStore(asic.Default()),
		opts: []readout.Option{
			readout.WithLogger(log.New(os.Stdout, "readout: ", 0)),
		},
		data: make(chan []byte, 1024),
	}

	if v := getenv("ASTROPIX_SERIAL"); v != "" {
		srv.serial = v
	}

	if v := getenv("ASTROPIX_CLKDIV"); v != "" {
		clkdiv, err := strconv.Atoi(v)
		if err != nil || clkdiv < 1 {
			return nil, fmt.Errorf("invalid ASTROPIX_CLKDIV value %q", v)
		}
		srv.clkdiv = clkdiv
	}

	if v := getenv("ASTROPIX_SPI_CLKDIV"); v != "" {
		spidiv, err := strconv.ParseUint(v, 10, 8)
		if err != nil || spidiv < 1 {
			return nil, fmt.Errorf("invalid ASTROPIX_SPI_CLKDIV value %q", v)
		}
		srv.spidiv = uint8(spidiv)
	}

	return srv, nil
}

func (srv *server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	var (
		cfg asic.Config
		err error
	)
	switch {
	case len(req.Body) > 0:
		cfg, err = asic.ReadYAML(bytes.NewReader(req.Body))
	case srv.fname != "":
		cfg, err = asic.ReadFile(srv.fname)
	default:
		ctx.Msg.Infof("using default ASIC configuration")
		cfg = asic.Default()
	}
	if err != nil {
		ctx.Msg.Errorf("could not load ASIC configuration: %+v", err)
		return fmt.Errorf("could not load ASIC configuration: %w", err)
	}

	err = srv.cfg.Update(func(dst *asic.Config) error {
		*dst = cfg
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not update ASIC configuration: %w", err)
	}
	return nil
}

func (srv *server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.dev == nil {
		dev, err := srv.open()
		if err != nil {
			ctx.Msg.Errorf("could not open Nexys board: %+v", err)
			return fmt.Errorf("could not open Nexys board: %w", err)
		}
		srv.dev = dev
		srv.brd = nexys.NewBoard(dev)
	}

	err := srv.initialize()
	if err != nil {
		ctx.Msg.Errorf("could not initialize board: %+v", err)
		return fmt.Errorf("could not initialize board: %w", err)
	}
	return nil
}

func (srv *server) initialize() error {
	err := srv.brd.SPIEnable(true)
	if err != nil {
		return err
	}

	err = srv.brd.SPIReset()
	if err != nil {
		return err
	}

	err = srv.brd.SetSPIClkDiv(srv.spidiv)
	if err != nil {
		return err
	}

	err = srv.brd.WriteASIC(srv.cfg.Snapshot(), srv.clkdiv)
	if err != nil {
		return err
	}

	return srv.brd.SendRoutingCmd()
}

func (srv *server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.brd == nil {
		return fmt.Errorf("board not initialized")
	}

	err := srv.brd.ChipReset(ctx.Ctx)
	if err != nil {
		ctx.Msg.Errorf("could not reset chip: %+v", err)
		return fmt.Errorf("could not reset chip: %w", err)
	}

	srv.loop = nil
	srv.data = make(chan []byte, cap(srv.data))
	atomic.StoreUint64(&srv.drops, 0)
	return nil
}

func (srv *server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.brd == nil {
		return fmt.Errorf("board not initialized")
	}

	srv.loop = readout.New(srv.brd, []readout.Sink{&chanSink{srv: srv}}, srv.opts...)
	return nil
}

func (srv *server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	loop := srv.loop
	srv.mu.Unlock()

	if loop == nil {
		ctx.Msg.Debugf("received /stop command... (no run)")
		return nil
	}

	st := loop.Stats()
	ctx.Msg.Debugf(
		"received /stop command... -> events=%d, hits=%d, malformed=%d, drops=%d",
		st.Events, st.Hits, st.Malformed, atomic.LoadUint64(&srv.drops),
	)
	return nil
}

func (srv *server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.dev == nil {
		return nil
	}

	err := srv.dev.Close()
	srv.dev = nil
	srv.brd = nil
	if err != nil {
		return fmt.Errorf("could not close Nexys board: %w", err)
	}
	return nil
}

func (srv *server) hits(ctx tdaq.Context, dst *tdaq.Frame) error {
	srv.mu.Lock()
	data := srv.data
	srv.mu.Unlock()

	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case raw := <-data:
		dst.Body = raw
	}
	return nil
}

func (srv *server) run(ctx tdaq.Context) error {
	srv.mu.Lock()
	loop := srv.loop
	srv.mu.Unlock()

	if loop == nil {
		return fmt.Errorf("readout loop not started")
	}

	err := loop.Run(ctx.Ctx)
	if err != nil {
		ctx.Msg.Errorf("readout loop failed: %+v", err)
		return fmt.Errorf("readout loop failed: %w", err)
	}
	return nil
}

// chanSink hands decoded events to the /hits output.
// Events are dropped when no consumer keeps up.
type chanSink struct {
	srv *server
}

func (s *chanSink) WriteEvent(evt readout.Event) error {
	_, hs := readout.EncodeEvent(evt)

	s.srv.mu.Lock()
	data := s.srv.data
	s.srv.mu.Unlock()

	select {
	case data <- hs:
	default:
		atomic.AddUint64(&s.srv.drops, 1)
	}
	return nil
}

func (s *chanSink) Flush() error { return nil }
