// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package readout

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/go-lpc/astropix/hits"
	"github.com/go-lpc/astropix/internal/rawlog"
	"golang.org/x/sync/errgroup"
)

type multi struct {
	sinks []Sink
}

// Multi returns a sink forwarding events to all sinks concurrently.
func Multi(sinks ...Sink) Sink {
	return &multi{sinks: sinks}
}

func (m *multi) WriteEvent(evt Event) error {
	var grp errgroup.Group
	for i := range m.sinks {
		sink := m.sinks[i]
		grp.Go(func() error {
			return sink.WriteEvent(evt)
		})
	}
	return grp.Wait()
}

func (m *multi) Flush() error {
	var grp errgroup.Group
	for i := range m.sinks {
		sink := m.sinks[i]
		grp.Go(sink.Flush)
	}
	return grp.Wait()
}

type rawSink struct {
	w *rawlog.Writer
}

// RawSink writes the readout streams as a raw log.
func RawSink(w io.Writer) Sink {
	return &rawSink{w: rawlog.NewWriter(w)}
}

func (s *rawSink) WriteEvent(evt Event) error {
	return s.w.Write(evt.Index, evt.Raw)
}

func (s *rawSink) Flush() error {
	return s.w.Flush()
}

type tableSink struct {
	w *hits.Writer
}

// TableSink writes the decoded hits as a delimited text table.
func TableSink(w *hits.Writer) Sink {
	return &tableSink{w: w}
}

func (s *tableSink) WriteEvent(evt Event) error {
	return s.w.Write(evt.Records)
}

func (s *tableSink) Flush() error {
	return s.w.Flush()
}

type consoleSink struct {
	w   io.Writer
	dec *hits.Decoder
}

// ConsoleSink prints the readout streams and decoded hits to w.
func ConsoleSink(w io.Writer, dec *hits.Decoder) Sink {
	return &consoleSink{w: w, dec: dec}
}

func (s *consoleSink) WriteEvent(evt Event) error {
	_, err := fmt.Fprintf(s.w, "%s\n", hex.EncodeToString(evt.Raw))
	if err != nil {
		return fmt.Errorf("readout: could not print event %d: %w", evt.Index, err)
	}
	hs := make([]hits.Hit, len(evt.Records))
	for i, rec := range evt.Records {
		hs[i] = rec.Hit
	}
	return hits.Print(s.w, s.dec, hs)
}

func (s *consoleSink) Flush() error { return nil }

type npySink struct {
	w    io.Writer
	dec  *hits.Decoder
	recs []hits.Record
}

// NpySink accumulates decoded hits and writes them as a NumPy array
// when flushed.
func NpySink(w io.Writer, dec *hits.Decoder) Sink {
	return &npySink{w: w, dec: dec}
}

func (s *npySink) WriteEvent(evt Event) error {
	s.recs = append(s.recs, evt.Records...)
	return nil
}

func (s *npySink) Flush() error {
	if len(s.recs) == 0 {
		return nil
	}
	err := s.dec.WriteNpy(s.w, s.recs)
	s.recs = s.recs[:0]
	return err
}
