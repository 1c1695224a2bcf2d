// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package readout implements the interrupt-driven readout loop of an
// AstroPix ASIC and the sinks consuming its events.
package readout // import "github.com/go-lpc/astropix/readout"

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-lpc/astropix/hits"
	"golang.org/x/time/rate"
)

// Board is the part of a Nexys board used by the readout loop.
type Board interface {
	Interrupt() (bool, error)
	WriteSPIBytes(n int) error
	ReadSPIFIFO() ([]byte, error)
}

// Event is the data read out after an interrupt.
type Event struct {
	Index   int
	Time    time.Time
	Raw     []byte // readout stream, as received from the SPI FIFO
	Records []hits.Record
}

// Sink consumes readout events.
type Sink interface {
	WriteEvent(evt Event) error
	Flush() error
}

// Stats holds the counters of a readout loop.
type Stats struct {
	Polls     uint64 `json:"polls"`
	Events    uint64 `json:"events"`
	Hits      uint64 `json:"hits"`
	Malformed uint64 `json:"malformed"`
	Bytes     uint64 `json:"bytes"`
}

type config struct {
	msg     *log.Logger
	delay   time.Duration
	idle    int
	period  time.Duration
	reverse bool
	flush   bool
	limit   rate.Limit
	maxEvts int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func newConfig() config {
	return config{
		msg:     log.New(os.Stdout, "readout: ", 0),
		delay:   50 * time.Millisecond,
		idle:    20,
		period:  hits.DefaultPeriod,
		reverse: true,
		flush:   true,
		limit:   rate.Inf,
		now:     time.Now,
		sleep:   sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	tck := time.NewTimer(d)
	defer tck.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tck.C:
		return nil
	}
}

// Option configures a readout loop.
type Option func(*config)

// WithLogger sets the logger of the loop.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithDelay sets the delay between an interrupt and the readout,
// letting the ASIC push its hits (default 50ms).
func WithDelay(d time.Duration) Option {
	return func(cfg *config) {
		cfg.delay = d
	}
}

// WithIdleBytes sets the number of idle bytes groups clocked out per
// readout (default 20).
func WithIdleBytes(n int) Option {
	return func(cfg *config) {
		cfg.idle = n
	}
}

// WithClockPeriod sets the ASIC sample clock period (default 10ns).
func WithClockPeriod(p time.Duration) Option {
	return func(cfg *config) {
		cfg.period = p
	}
}

// WithReverse sets whether readout bytes are bit-reversed before
// decoding (default true).
func WithReverse(v bool) Option {
	return func(cfg *config) {
		cfg.reverse = v
	}
}

// WithSkipFlush sets whether the first readout, holding the data
// accumulated by the FPGA before the run, is discarded (default true).
func WithSkipFlush(v bool) Option {
	return func(cfg *config) {
		cfg.flush = v
	}
}

// WithPollRate limits the rate of interrupt register reads, in Hz.
// A zero or negative rate disables the limit.
func WithPollRate(hz float64) Option {
	return func(cfg *config) {
		switch {
		case hz <= 0:
			cfg.limit = rate.Inf
		default:
			cfg.limit = rate.Limit(hz)
		}
	}
}

// WithMaxEvents stops the loop after n events. Zero means no limit.
func WithMaxEvents(n int) Option {
	return func(cfg *config) {
		cfg.maxEvts = n
	}
}

// Loop polls the ASIC interrupt line and reads out its hits.
type Loop struct {
	brd   Board
	cfg   config
	dec   *hits.Decoder
	sinks []Sink

	polls     uint64
	events    uint64
	hits      uint64
	malformed uint64
	bytes     uint64
}

// New returns a readout loop reading brd and sending events to sinks.
func New(brd Board, sinks []Sink, opts ...Option) *Loop {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Loop{
		brd:   brd,
		cfg:   cfg,
		dec:   hits.NewDecoder(cfg.period, cfg.reverse),
		sinks: sinks,
	}
}

// Decoder returns the hit decoder used by the loop.
func (l *Loop) Decoder() *hits.Decoder { return l.dec }

// Stats returns a snapshot of the loop counters.
// It is safe to call Stats concurrently with Run.
func (l *Loop) Stats() Stats {
	return Stats{
		Polls:     atomic.LoadUint64(&l.polls),
		Events:    atomic.LoadUint64(&l.events),
		Hits:      atomic.LoadUint64(&l.hits),
		Malformed: atomic.LoadUint64(&l.malformed),
		Bytes:     atomic.LoadUint64(&l.bytes),
	}
}

// Run polls the board until ctx is cancelled, the maximum number of
// events is reached or the board fails.
// Sinks are flushed in all cases. Run returns nil when stopped by ctx.
func (l *Loop) Run(ctx context.Context) error {
	err := l.run(ctx)
	if ctx.Err() != nil {
		err = nil
	}

	for _, sink := range l.sinks {
		e := sink.Flush()
		if e != nil && err == nil {
			err = fmt.Errorf("readout: could not flush sink: %w", e)
		}
	}

	st := l.Stats()
	l.cfg.msg.Printf("readout stopped: events=%d, hits=%d, malformed=%d", st.Events, st.Hits, st.Malformed)
	return err
}

func (l *Loop) run(ctx context.Context) error {
	var (
		lim  = rate.NewLimiter(l.cfg.limit, 1)
		skip = l.cfg.flush
		ievt = 0
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if l.cfg.maxEvts > 0 && ievt >= l.cfg.maxEvts {
			return nil
		}

		err := lim.Wait(ctx)
		if err != nil {
			return err
		}

		atomic.AddUint64(&l.polls, 1)
		irq, err := l.brd.Interrupt()
		if err != nil {
			return fmt.Errorf("readout: could not poll interrupt: %w", err)
		}
		if !irq {
			continue
		}

		err = l.cfg.sleep(ctx, l.cfg.delay)
		if err != nil {
			return err
		}

		beg := l.cfg.now()
		raw, err := l.readout()
		if err != nil {
			return err
		}

		if skip {
			skip = false
			l.cfg.msg.Printf("discarded FPGA flush (%d bytes)", len(raw))
			continue
		}

		evt := Event{
			Index:   ievt,
			Time:    beg,
			Raw:     raw,
			Records: l.dec.Records(ievt, beg, raw),
		}
		ievt++
		l.count(evt)

		for _, sink := range l.sinks {
			err = sink.WriteEvent(evt)
			if err != nil {
				return fmt.Errorf("readout: could not write event %d: %w", evt.Index, err)
			}
		}
	}
}

func (l *Loop) readout() ([]byte, error) {
	err := l.brd.WriteSPIBytes(l.cfg.idle)
	if err != nil {
		return nil, fmt.Errorf("readout: could not clock out idle bytes: %w", err)
	}
	raw, err := l.brd.ReadSPIFIFO()
	if err != nil {
		return nil, fmt.Errorf("readout: could not read SPI FIFO: %w", err)
	}
	return raw, nil
}

func (l *Loop) count(evt Event) {
	var bad uint64
	for _, rec := range evt.Records {
		if !rec.Hit.Valid() {
			bad++
		}
	}
	atomic.AddUint64(&l.events, 1)
	atomic.AddUint64(&l.hits, uint64(len(evt.Records)))
	atomic.AddUint64(&l.malformed, bad)
	atomic.AddUint64(&l.bytes, uint64(len(evt.Raw)))
}
