// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-daq/tdaq"
	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/astropix/asic"
	"github.com/go-lpc/astropix/hits"
	"github.com/go-lpc/astropix/nexys"
	"github.com/go-lpc/astropix/readout"
)

type fakeDev struct {
	regs   map[uint8]uint8
	hist   map[uint8][]uint8
	writes [][]byte
	closed bool
}

func newFakeDev() *fakeDev {
	return &fakeDev{
		regs: map[uint8]uint8{nexys.RegInterrupt: 0xff},
		hist: make(map[uint8][]uint8),
	}
}

func (dev *fakeDev) Write(p []byte) error {
	dev.writes = append(dev.writes, append([]byte(nil), p...))
	return nil
}

func (dev *fakeDev) Read(n int) ([]byte, error) { return nil, io.EOF }

func (dev *fakeDev) ReadRegister(reg uint8, n int) ([]byte, error) {
	p := make([]byte, n)
	for i := range p {
		p[i] = dev.regs[reg]
	}
	return p, nil
}

func (dev *fakeDev) WriteRegister(reg, v uint8) error {
	dev.regs[reg] = v
	dev.hist[reg] = append(dev.hist[reg], v)
	return nil
}

func (dev *fakeDev) Close() error {
	dev.closed = true
	return nil
}

func newTestContext(ctx context.Context) tdaq.Context {
	return tdaq.Context{
		Ctx: ctx,
		Msg: tlog.NewMsgStream("astropix-srv", tlog.LvlError, io.Discard),
	}
}

func newTestServer(t *testing.T, env map[string]string) (*server, *fakeDev) {
	t.Helper()
	srv, err := newServer("astropix-test", func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("could not create server: %+v", err)
	}
	dev := newFakeDev()
	srv.open = func() (device, error) { return dev, nil }
	srv.opts = []readout.Option{
		readout.WithLogger(log.New(io.Discard, "", 0)),
		readout.WithDelay(0),
	}
	return srv, dev
}

func TestNewServer(t *testing.T) {
	for _, tc := range []struct {
		name   string
		env    map[string]string
		clkdiv int
		spidiv uint8
		serial string
		err    bool
	}{
		{
			name:   "defaults",
			clkdiv: 8,
			spidiv: 255,
			serial: nexys.SerialPrefix,
		},
		{
			name: "env",
			env: map[string]string{
				"ASTROPIX_CLKDIV":     "16",
				"ASTROPIX_SPI_CLKDIV": "40",
				"ASTROPIX_SERIAL":     "210276A",
			},
			clkdiv: 16,
			spidiv: 40,
			serial: "210276A",
		},
		{
			name: "bad-clkdiv",
			env:  map[string]string{"ASTROPIX_CLKDIV": "0"},
			err:  true,
		},
		{
			name: "bad-spi-clkdiv",
			env:  map[string]string{"ASTROPIX_SPI_CLKDIV": "256"},
			err:  true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv, err := newServer("test", func(k string) string { return tc.env[k] })
			switch {
			case err != nil && tc.err:
				return
			case err != nil:
				t.Fatalf("could not create server: %+v", err)
			case tc.err:
				t.Fatalf("expected an error")
			}
			if srv.clkdiv != tc.clkdiv || srv.spidiv != tc.spidiv || srv.serial != tc.serial {
				t.Fatalf(
					"invalid settings: got=(%d, %d, %q), want=(%d, %d, %q)",
					srv.clkdiv, srv.spidiv, srv.serial,
					tc.clkdiv, tc.spidiv, tc.serial,
				)
			}
		})
	}
}

func TestConfig(t *testing.T) {
	cfg := asic.Default()
	if err := cfg.SetDAC("vncomp", 42); err != nil {
		t.Fatalf("could not set DAC: %+v", err)
	}

	fname := filepath.Join(t.TempDir(), "cfg.csv")
	if err := asic.WriteFile(fname, cfg); err != nil {
		t.Fatalf("could not write config: %+v", err)
	}

	body := new(bytes.Buffer)
	cfg.MaskAll()
	if err := cfg.UnmaskPixel(3, 4); err != nil {
		t.Fatalf("could not unmask pixel: %+v", err)
	}
	if err := asic.WriteYAML(body, cfg); err != nil {
		t.Fatalf("could not encode config: %+v", err)
	}

	ctx := newTestContext(context.Background())

	t.Run("file", func(t *testing.T) {
		srv, _ := newTestServer(t, map[string]string{"ASTROPIX_ASIC_CFG": fname})
		err := srv.OnConfig(ctx, nil, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not configure: %+v", err)
		}
		got, _ := srv.cfg.Snapshot().Get(asic.DACs, "vncomp")
		if got != 42 {
			t.Fatalf("invalid vncomp: got=%d, want=42", got)
		}
	})

	t.Run("body", func(t *testing.T) {
		srv, _ := newTestServer(t, map[string]string{"ASTROPIX_ASIC_CFG": fname})
		err := srv.OnConfig(ctx, nil, tdaq.Frame{Body: body.Bytes()})
		if err != nil {
			t.Fatalf("could not configure: %+v", err)
		}
		if got := srv.cfg.Snapshot(); got != cfg {
			t.Fatalf("invalid configuration")
		}
	})

	t.Run("default", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		err := srv.OnConfig(ctx, nil, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not configure: %+v", err)
		}
		if got := srv.cfg.Snapshot(); got != asic.Default() {
			t.Fatalf("invalid configuration")
		}
	})

	t.Run("invalid", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		err := srv.OnConfig(ctx, nil, tdaq.Frame{Body: []byte("dacs: [1, 2")})
		if err == nil {
			t.Fatalf("expected an error")
		}
	})
}

func TestRunCycle(t *testing.T) {
	srv, dev := newTestServer(t, map[string]string{"ASTROPIX_SPI_CLKDIV": "40"})
	srv.opts = append(srv.opts, readout.WithMaxEvents(1))

	bkg := newTestContext(context.Background())

	err := srv.OnStart(bkg, nil, tdaq.Frame{})
	if err == nil {
		t.Fatalf("expected an error starting an uninitialized board")
	}

	for _, tc := range []struct {
		name string
		cmd  func(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error
	}{
		{"/config", srv.OnConfig},
		{"/init", srv.OnInit},
	} {
		err := tc.cmd(bkg, nil, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run %s: %+v", tc.name, err)
		}
	}

	if got, want := dev.hist[nexys.RegSPIClkDiv], []uint8{40}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid SPI clock divider: got=%v, want=%v", got, want)
	}
	if got, want := len(dev.writes), 2; got != want {
		t.Fatalf("invalid number of writes: got=%d, want=%d", got, want)
	}
	if got, want := dev.writes[0][:2], []byte{0x01, nexys.AddrASIC}; !bytes.Equal(got, want) {
		t.Fatalf("invalid ASIC configuration header: got=%x, want=%x", got, want)
	}

	srv.brd.ResetDelay = time.Millisecond
	err = srv.OnReset(bkg, nil, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not reset: %+v", err)
	}

	// raise the interrupt line and fill the FIFO with idle bytes.
	dev.regs[nexys.RegInterrupt] = 0
	dev.regs[nexys.RegSPIRead] = hits.ReverseBits([]byte{hits.IdleByte})[0]

	err = srv.OnStart(bkg, nil, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = srv.run(newTestContext(ctx))
	if err != nil {
		t.Fatalf("could not run readout: %+v", err)
	}

	var dst tdaq.Frame
	err = srv.hits(newTestContext(ctx), &dst)
	if err != nil {
		t.Fatalf("could not read hits: %+v", err)
	}
	if got, want := len(dst.Body), 12; got != want {
		t.Fatalf("invalid hits message size: got=%d, want=%d", got, want)
	}
	if got := binary.BigEndian.Uint32(dst.Body[:4]); got != 0 {
		t.Fatalf("invalid event index: %d", got)
	}

	err = srv.OnStop(bkg, nil, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not stop: %+v", err)
	}
	if got, want := srv.loop.Stats().Events, uint64(1); got != want {
		t.Fatalf("invalid number of events: got=%d, want=%d", got, want)
	}

	err = srv.OnQuit(bkg, nil, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not quit: %+v", err)
	}
	if !dev.closed {
		t.Fatalf("device not closed")
	}
}

func TestHitsCancelled(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dst := tdaq.Frame{Body: []byte("stale")}
	err := srv.hits(newTestContext(ctx), &dst)
	if err != nil {
		t.Fatalf("could not read hits: %+v", err)
	}
	if dst.Body != nil {
		t.Fatalf("invalid body: %q", dst.Body)
	}
}

func TestChanSinkDrops(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	srv.data = make(chan []byte, 1)
	sink := &chanSink{srv: srv}

	for i := 0; i < 3; i++ {
		err := sink.WriteEvent(readout.Event{Index: i, Time: time.Unix(0, 0)})
		if err != nil {
			t.Fatalf("could not write event %d: %+v", i, err)
		}
	}
	if got, want := srv.drops, uint64(2); got != want {
		t.Fatalf("invalid number of drops: got=%d, want=%d", got, want)
	}
}
