// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/astropix/asic"
	"github.com/go-lpc/astropix/hits"
	"github.com/go-lpc/astropix/readout"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "astropix.yaml"), []byte(`
name: cosmics
run: 42
settle: 2s
spi-clkdiv: 40
poll-rate: 500
zmq: "tcp://*:5556"
`), 0644)
	require.NoError(t, err)

	t.Setenv("ASTROPIX_DB_PASSWORD", "s3cr3t")

	fs := newFlagSet("test")
	err = fs.Parse([]string{"-run=43", "-csv", "-delay=10ms"})
	require.NoError(t, err)

	s, err := loadSettings(fs, []string{dir})
	require.NoError(t, err)

	want := defaults
	want.Name = "cosmics"
	want.Run = 43
	want.Settle = 2 * time.Second
	want.SPIClkDiv = 40
	want.PollRate = 500
	want.ZMQ = "tcp://*:5556"
	want.CSV = true
	want.Delay = 10 * time.Millisecond
	want.DBPass = "s3cr3t"
	require.Equal(t, want, s)
}

func TestLoadSettingsDefaults(t *testing.T) {
	fs := newFlagSet("test")
	require.NoError(t, fs.Parse(nil))

	s, err := loadSettings(fs, []string{t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, defaults, s)
}

func TestLoadSettingsErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		file string
		args []string
	}{
		{name: "spi-clkdiv", args: []string{"-spi-clkdiv=256"}},
		{name: "clkdiv", args: []string{"-clkdiv=0"}},
		{name: "run", args: []string{"-run=-1"}},
		{name: "asic-cfg", args: []string{"-asic-cfg=cfg.yaml", "-db-cfg=beam"}},
		{name: "idle", file: "idle: 0\n"},
		{name: "invalid-yaml", file: "run: [1, 2\n"},
		{name: "invalid-duration", file: "settle: forever\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if tc.file != "" {
				err := os.WriteFile(filepath.Join(dir, "astropix.yaml"), []byte(tc.file), 0644)
				require.NoError(t, err)
			}
			fs := newFlagSet("test")
			fs.SetOutput(io.Discard)
			require.NoError(t, fs.Parse(tc.args))

			_, err := loadSettings(fs, []string{dir})
			require.Error(t, err)
		})
	}
}

func TestNewMailer(t *testing.T) {
	env := map[string]string{
		"MAIL_USERNAME": "daq@example.org",
		"MAIL_PASSWORD": "s3cr3t",
		"MAIL_SERVER":   "smtp.example.org",
		"MAIL_PORT":     "587",
		"MAIL_TGTS":     "alice@example.org, bob@example.org",
	}
	getenv := func(k string) string { return env[k] }

	m, err := newMailer(getenv)
	require.NoError(t, err)
	require.Equal(t, 587, m.port)
	require.Equal(t, []string{"alice@example.org", "bob@example.org"}, m.tgts)

	env["MAIL_PORT"] = "smtp"
	_, err = newMailer(getenv)
	require.Error(t, err)

	delete(env, "MAIL_PORT")
	_, err = newMailer(getenv)
	require.Error(t, err)
}

func TestMailBody(t *testing.T) {
	beg := time.Date(2022, 4, 15, 10, 0, 0, 0, time.UTC)
	sum := summary{
		ID:     "01G0NJ3ZKM8X2Y8RQCX3W4T6RN",
		Run:    42,
		Config: "beam",
		Start:  beg,
		Stop:   beg.Add(90 * time.Minute),
		Stats:  readout.Stats{Events: 120, Hits: 130, Malformed: 2, Bytes: 4096},
		Files:  []string{"beam_42_20220415-100000.log"},
	}

	require.Equal(t, "[astropix-daq] run 42 (01G0NJ3ZKM8X2Y8RQCX3W4T6RN): done", mailSubject(sum))
	require.Equal(t, `run:       42
id:        01G0NJ3ZKM8X2Y8RQCX3W4T6RN
config:    beam
start:     2022-04-15T10:00:00Z
stop:      2022-04-15T11:30:00Z
duration:  1h30m0s
events:    120
hits:      130
malformed: 2
bytes:     4096
files:
 - beam_42_20220415-100000.log
`, mailBody(sum))

	sum.Err = fmt.Errorf("usb unplugged")
	require.Equal(t, "[astropix-daq] run 42 (01G0NJ3ZKM8X2Y8RQCX3W4T6RN): FAILED", mailSubject(sum))
	require.True(t, strings.HasSuffix(mailBody(sum), "error:     usb unplugged\n"))
}

// stream holds a single hit (chip 0, payload 4, column 5, ToT 256),
// as read from the SPI FIFO.
var stream = hits.ReverseBits([]byte{
	0x3d, 0x3d, 0x04, 0x85, 0x10, 0x01, 0x00, 0x3d, 0x3d,
})

type fakeBoard struct {
	calls  []string
	irqs   []bool
	data   [][]byte
	cancel func()
	err    error
}

func (brd *fakeBoard) call(name string) error {
	brd.calls = append(brd.calls, name)
	return brd.err
}

func (brd *fakeBoard) SRReadbackReset() error { return brd.call("sr-reset") }
func (brd *fakeBoard) WriteASIC(cfg asic.Config, clkdiv int) error { return brd.call("write-asic") }
func (brd *fakeBoard) SPIEnable(enable bool) error { return brd.call("spi-enable") }
func (brd *fakeBoard) SPIReset() error { return brd.call("spi-reset") }
func (brd *fakeBoard) SetSPIClkDiv(clkdiv uint8) error { return brd.call("spi-clkdiv") }
func (brd *fakeBoard) SendRoutingCmd() error { return brd.call("routing") }

func (brd *fakeBoard) Interrupt() (bool, error) {
	if len(brd.irqs) == 0 {
		brd.cancel()
		return false, nil
	}
	v := brd.irqs[0]
	brd.irqs = brd.irqs[1:]
	return v, nil
}

func (brd *fakeBoard) WriteSPIBytes(n int) error { return nil }

func (brd *fakeBoard) ReadSPIFIFO() ([]byte, error) {
	if len(brd.data) == 0 {
		return nil, nil
	}
	v := brd.data[0]
	brd.data = brd.data[1:]
	return v, nil
}

func newTestDAQ(t *testing.T, s settings) *daq {
	t.Helper()
	beg := time.Date(2022, 4, 15, 10, 0, 0, 0, time.UTC)
	d := newDAQ(s, io.Discard)
	d.now = func() time.Time { return beg }
	return d
}

func TestRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := defaults
	s.Run = 42
	s.OutDir = filepath.Join(t.TempDir(), "data")
	s.Settle = 0
	s.Delay = 0
	s.Npy = true

	brd := &fakeBoard{
		irqs:   []bool{true, false, true},
		data:   [][]byte{{0xff, 0xff}, stream},
		cancel: cancel,
	}

	d := newTestDAQ(t, s)
	sum, err := d.run(ctx, brd, asic.Default(), "default")
	require.NoError(t, err)

	require.Equal(t,
		[]string{"sr-reset", "write-asic", "spi-enable", "spi-reset", "spi-clkdiv", "routing"},
		brd.calls,
	)

	require.Equal(t, 42, sum.Run)
	require.Equal(t, "default", sum.Config)
	require.Len(t, sum.ID, 26)
	require.Equal(t, readout.Stats{Polls: 4, Events: 1, Hits: 1, Bytes: 9}, sum.Stats)

	base := filepath.Join(s.OutDir, "beam_42_20220415-100000")
	require.Equal(t, []string{base + ".log", base + ".txt", base + ".npy"}, sum.Files)

	raw, err := os.ReadFile(base + ".log")
	require.NoError(t, err)
	require.Equal(t, "0\tbcbc20a1088000bcbc\n", string(raw))

	tbl, err := os.ReadFile(base + ".txt")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(tbl)), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, strings.Join(hits.Header, "\t"), lines[0])
	require.True(t, strings.HasPrefix(lines[1], "0\t0\t4\t5\tCol\t16\t1\t0\t256\t2.56\t"), lines[1])

	f, err := os.Open(base + ".npy")
	require.NoError(t, err)
	defer f.Close()
	recs, err := hits.ReadNpy(f)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestRunCSV(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := defaults
	s.OutDir = t.TempDir()
	s.Name = "noise"
	s.Settle = 0
	s.Delay = 0
	s.CSV = true
	s.MaxEvents = 1

	brd := &fakeBoard{
		irqs:   []bool{true, true, true},
		data:   [][]byte{{0xff}, stream, stream},
		cancel: cancel,
	}

	d := newTestDAQ(t, s)
	sum, err := d.run(ctx, brd, asic.Default(), "default")
	require.NoError(t, err)
	require.Equal(t, uint64(1), sum.Stats.Events)

	base := filepath.Join(s.OutDir, "noise_0_20220415-100000")
	require.Equal(t, []string{base + ".log", base + ".csv"}, sum.Files)

	tbl, err := os.ReadFile(base + ".csv")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(tbl, []byte("NEvent,ChipId,Payload,")))
}

func TestRunConfigureError(t *testing.T) {
	s := defaults
	s.OutDir = t.TempDir()
	brd := &fakeBoard{err: fmt.Errorf("usb unplugged")}

	d := newTestDAQ(t, s)
	_, err := d.run(context.Background(), brd, asic.Default(), "default")
	require.Error(t, err)
	require.Equal(t, []string{"sr-reset"}, brd.calls)
}

func TestASICConfig(t *testing.T) {
	cfg := asic.Default()
	require.NoError(t, cfg.SetDAC("vncomp", 12))
	fname := filepath.Join(t.TempDir(), "chip602.yaml")
	require.NoError(t, asic.WriteFile(fname, cfg))

	s := defaults
	s.Config = fname
	got, name, err := newTestDAQ(t, s).asicConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, "chip602.yaml", name)
	require.Equal(t, cfg, got)

	got, name, err = newTestDAQ(t, defaults).asicConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, "default", name)
	require.Equal(t, asic.Default(), got)

	s.Config = filepath.Join(t.TempDir(), "nope.yaml")
	_, _, err = newTestDAQ(t, s).asicConfig(context.Background())
	require.Error(t, err)
}

func TestSettle(t *testing.T) {
	s := defaults
	s.Settle = time.Hour

	d := newDAQ(s, new(bytes.Buffer))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.settle(ctx)
	require.ErrorIs(t, err, context.Canceled)

	d.s.Settle = 150 * time.Millisecond
	err = d.settle(context.Background())
	require.NoError(t, err)
}
