// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rawlog reads and writes raw readout logs: one readout per
// line, as its index followed by a tab and the hex-encoded bytes.
package rawlog // import "github.com/go-lpc/astropix/internal/rawlog"

import (
	"bufio"
	"encoding/hex"
	"io"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Entry is a raw readout.
type Entry struct {
	Index int
	Data  []byte
}

// Writer writes raw readout logs.
type Writer struct {
	w   *bufio.Writer
	buf []byte
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write writes a readout to the log.
func (w *Writer) Write(i int, raw []byte) error {
	if w.err != nil {
		return w.err
	}
	w.buf = strconv.AppendInt(w.buf[:0], int64(i), 10)
	w.buf = append(w.buf, '\t')
	n := len(w.buf)
	w.buf = append(w.buf, make([]byte, hex.EncodedLen(len(raw)))...)
	hex.Encode(w.buf[n:], raw)
	w.buf = append(w.buf, '\n')

	_, w.err = w.w.Write(w.buf)
	if w.err != nil {
		w.err = xerrors.Errorf("rawlog: could not write readout %d: %w", i, w.err)
	}
	return w.err
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	if w.err != nil {
		w.err = xerrors.Errorf("rawlog: could not flush: %w", w.err)
	}
	return w.err
}

// Reader reads raw readout logs.
//
// Reader also accepts the b'...' quoted hex payloads of legacy logs,
// and lines without index, numbered after their position.
type Reader struct {
	sc   *bufio.Scanner
	line int
	cur  Entry
	err  error
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Reader{sc: sc}
}

// Next reads the next readout, skipping blank lines.
// It returns false at the end of the log or on error.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.sc.Scan() {
		r.line++
		txt := strings.TrimRight(r.sc.Text(), "\r")
		if strings.TrimSpace(txt) == "" {
			continue
		}
		r.cur, r.err = parse(txt, r.line)
		return r.err == nil
	}
	r.err = r.sc.Err()
	if r.err != nil {
		r.err = xerrors.Errorf("rawlog: could not scan line %d: %w", r.line+1, r.err)
	}
	return false
}

// Entry returns the last readout read by Next.
func (r *Reader) Entry() Entry { return r.cur }

// Err returns the first error encountered by the reader.
func (r *Reader) Err() error { return r.err }

// ReadAll reads all the readouts of a log.
func ReadAll(r io.Reader) ([]Entry, error) {
	var (
		o  []Entry
		rr = NewReader(r)
	)
	for rr.Next() {
		o = append(o, rr.Entry())
	}
	return o, rr.Err()
}

func parse(txt string, line int) (Entry, error) {
	var (
		idx = line - 1
		val = txt
	)
	if i := strings.IndexAny(txt, "\t "); i >= 0 {
		v, err := strconv.Atoi(txt[:i])
		if err != nil {
			return Entry{}, xerrors.Errorf("rawlog: invalid readout index %q (line %d): %w", txt[:i], line, err)
		}
		idx = v
		val = strings.TrimSpace(txt[i+1:])
	}

	if strings.HasPrefix(val, "b'") && strings.HasSuffix(val, "'") && len(val) >= 3 {
		val = val[2 : len(val)-1]
	}

	raw, err := hex.DecodeString(val)
	if err != nil {
		return Entry{}, xerrors.Errorf("rawlog: invalid readout payload (line %d): %w", line, err)
	}
	return Entry{Index: idx, Data: raw}, nil
}
