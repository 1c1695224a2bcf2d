// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hits

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Header holds the column names of a decoded hits table.
var Header = []string{
	"NEvent", "ChipId", "Payload", "Locatn", "Row/Col",
	"tStamp", "MSB", "LSB", "ToT", "ToT(us)", "RealTime",
}

// Record is a hit read out during an event.
type Record struct {
	Event int       // index of the readout event
	Time  time.Time // time of the readout
	Hit   Hit
}

// Records decodes the raw readout of an event into records.
func (dec *Decoder) Records(evt int, beg time.Time, raw []byte) []Record {
	hits := dec.Decode(raw)
	if len(hits) == 0 {
		return nil
	}
	o := make([]Record, len(hits))
	for i, h := range hits {
		o[i] = Record{Event: evt, Time: beg, Hit: h}
	}
	return o
}

const (
	ansiRed   = "\x1b[0;31;40m"
	ansiReset = "\x1b[0m"
)

func colorize(v uint8, ok, color bool) string {
	s := strconv.Itoa(int(v))
	if ok || !color {
		return s
	}
	return ansiRed + s + ansiReset
}

// formatFloat formats v with the shortest representation, always
// keeping a decimal point.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// Writer writes decoded hits as a delimited text table.
type Writer struct {
	w     *csv.Writer
	dec   *Decoder
	color bool
	hdr   bool
	err   error
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithDelimiter sets the field delimiter (default ',').
func WithDelimiter(r rune) WriterOption {
	return func(w *Writer) {
		w.w.Comma = r
	}
}

// WithColor highlights malformed chip IDs and payloads with ANSI
// escape sequences.
func WithColor(v bool) WriterOption {
	return func(w *Writer) {
		w.color = v
	}
}

// WithoutHeader disables the header line.
func WithoutHeader() WriterOption {
	return func(w *Writer) {
		w.hdr = true
	}
}

// NewWriter returns a writer of decoded hits.
func NewWriter(w io.Writer, dec *Decoder, opts ...WriterOption) *Writer {
	if dec == nil {
		dec = NewDecoder(DefaultPeriod, true)
	}
	hw := &Writer{w: csv.NewWriter(w), dec: dec}
	for _, opt := range opts {
		opt(hw)
	}
	return hw
}

func (w *Writer) header() {
	if w.hdr || w.err != nil {
		return
	}
	w.hdr = true
	w.err = w.w.Write(Header)
}

// Write writes the records.
func (w *Writer) Write(recs []Record) error {
	w.header()
	for _, rec := range recs {
		if w.err != nil {
			break
		}
		h := rec.Hit
		w.err = w.w.Write([]string{
			strconv.Itoa(rec.Event),
			colorize(h.ChipID, h.ChipID == 0, w.color),
			colorize(h.Payload, h.Payload == 4, w.color),
			strconv.Itoa(int(h.Location)),
			h.RowCol(),
			strconv.Itoa(int(h.Timestamp)),
			strconv.Itoa(int(h.ToTMSB)),
			strconv.Itoa(int(h.ToTLSB)),
			strconv.Itoa(int(h.ToT())),
			formatFloat(w.dec.ToT(h)),
			formatFloat(float64(rec.Time.UnixNano()) / 1e9),
		})
	}
	if w.err != nil {
		return fmt.Errorf("hits: could not write records: %w", w.err)
	}
	return nil
}

// Flush flushes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	w.header()
	if w.err != nil {
		return fmt.Errorf("hits: could not write records: %w", w.err)
	}
	w.w.Flush()
	err := w.w.Error()
	if err != nil {
		return fmt.Errorf("hits: could not flush records: %w", err)
	}
	return nil
}

// Print writes a human readable description of the hits to w.
func Print(w io.Writer, dec *Decoder, hits []Hit) error {
	for _, h := range hits {
		_, err := fmt.Fprintf(w,
			"Header: ChipId: %s\tPayload: %s\tLocation: %d\tRow/Col: %s\t"+
				"Timestamp: %d\tToT: MSB: %d\tLSB: %d Total: %d (%s us)\n",
			colorize(h.ChipID, h.ChipID == 0, true),
			colorize(h.Payload, h.Payload == 4, true),
			h.Location, h.RowCol(), h.Timestamp,
			h.ToTMSB, h.ToTLSB, h.ToT(), formatFloat(dec.ToT(h)),
		)
		if err != nil {
			return fmt.Errorf("hits: could not print hit: %w", err)
		}
	}
	return nil
}
