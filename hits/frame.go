// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hits splits the AstroPix SPI readout stream into hit frames
// and decodes them.
package hits // import "github.com/go-lpc/astropix/hits"

import (
	"math/bits"
)

const (
	FrameSize = 5 // size of a hit frame, in bytes

	IdleByte = 0x3d // filler byte sent by the ASIC when idle

	maxCount = 0x0f // largest byte terminating an idle marker
)

// Frame is a raw 5-byte hit frame.
type Frame [FrameSize]byte

// Marker locates a run of idle bytes in a readout stream.
//
// For an idle marker, Start is the position of the first idle byte
// (aligned on the frame grid of the previous marker) and End is the
// position of the byte following the run, which starts the next frame.
type Marker struct {
	Start int
	End   int
}

// ReverseBits returns a copy of p with the bits of every byte reversed.
func ReverseBits(p []byte) []byte {
	o := make([]byte, len(p))
	for i, v := range p {
		o[i] = bits.Reverse8(v)
	}
	return o
}

// idleRun returns the first run of idle bytes at or after pos that is
// followed by a byte in [0x00, 0x0f].
// It returns the position of the run and of the terminating byte.
func idleRun(p []byte, pos int) (beg, end int, ok bool) {
	for i := pos; i < len(p); {
		if p[i] != IdleByte {
			i++
			continue
		}
		j := i
		for j < len(p) && p[j] == IdleByte {
			j++
		}
		if j < len(p) && p[j] <= maxCount {
			return i, j, true
		}
		i = j
	}
	return 0, 0, false
}

// anyRun returns the first run of idle bytes at or after pos.
// The returned end is the position following the run.
func anyRun(p []byte, pos int) (beg, end int, ok bool) {
	for i := pos; i < len(p); i++ {
		if p[i] != IdleByte {
			continue
		}
		j := i
		for j < len(p) && p[j] == IdleByte {
			j++
		}
		return i, j, true
	}
	return 0, 0, false
}

// ceil5 returns ceil(n/5).
func ceil5(n int) int {
	if n > 0 {
		return (n + FrameSize - 1) / FrameSize
	}
	return n / FrameSize
}

// Markers locates the idle markers of a readout stream.
//
// The first marker is the first idle run of the stream. Every idle run
// found by scanning the stream is then recorded, its start aligned on
// the 5-byte grid following the previous marker. A trailing run of idle
// bytes after the last marker terminates the list.
func Markers(p []byte) []Marker {
	beg, end, ok := idleRun(p, 0)
	if !ok {
		return nil
	}

	ms := []Marker{{Start: beg, End: end}}
	for pos := 0; ; {
		beg, end, ok := idleRun(p, pos)
		if !ok {
			break
		}
		prev := ms[len(ms)-1].End
		ms = append(ms, Marker{
			Start: prev + ceil5(beg-prev)*FrameSize,
			End:   end,
		})
		pos = end + 1
	}

	last := ms[len(ms)-1].End
	if beg, end, ok := anyRun(p, last); ok {
		ms = append(ms, Marker{Start: beg, End: end})
	}

	if len(ms) > 1 && ms[0].End == ms[1].End {
		ms = append(ms[:1], ms[2:]...)
	}
	return ms
}

// Frames extracts the hit frames from a readout stream.
// If reverse is set, the bits of every byte are reversed first.
// The input slice is never modified.
//
// Frames truncated by the end of the stream are dropped.
func Frames(raw []byte, reverse bool) []Frame {
	p := raw
	if reverse {
		p = ReverseBits(raw)
	}

	ms := Markers(p)
	if len(ms) < 2 {
		return nil
	}

	var (
		frames []Frame
		add    = func(pos int) {
			if pos+FrameSize > len(p) {
				return
			}
			var f Frame
			copy(f[:], p[pos:pos+FrameSize])
			frames = append(frames, f)
		}
	)
	for i, m := range ms[:len(ms)-1] {
		add(m.End)
		next := ms[i+1].Start
		for pos := m.End + FrameSize; next > pos; pos += FrameSize {
			add(pos)
		}
	}
	return frames
}
