// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hits

import (
	"fmt"
	"time"
)

// DefaultPeriod is the default period of the ASIC sample clock.
const DefaultPeriod = 10 * time.Nanosecond

// Hit is a decoded AstroPix v2 hit.
//
//   byte 0: chip ID (bits 7-3), payload (bits 2-0)
//   byte 1: column flag (bit 7), location (bits 5-0)
//   byte 2: timestamp
//   byte 3: ToT MSB (bits 3-0)
//   byte 4: ToT LSB
type Hit struct {
	ChipID    uint8
	Payload   uint8
	Location  uint8
	IsColumn  bool
	Timestamp uint8
	ToTMSB    uint8
	ToTLSB    uint8
}

// Decode decodes a hit frame. Decoding never fails: malformed frames
// are reported by Valid.
func Decode(f Frame) Hit {
	return Hit{
		ChipID:    f[0] >> 3,
		Payload:   f[0] & 0x7,
		Location:  f[1] & 0x3f,
		IsColumn:  (f[1]>>7)&1 == 1,
		Timestamp: f[2],
		ToTMSB:    f[3] & 0xf,
		ToTLSB:    f[4],
	}
}

// Valid reports whether the hit header is the one of an AstroPix v2
// hit from chip 0.
func (h Hit) Valid() bool {
	return h.ChipID == 0 && h.Payload == 4
}

// ToT returns the time over threshold, in sample clock ticks.
func (h Hit) ToT() uint16 {
	return uint16(h.ToTMSB)<<8 | uint16(h.ToTLSB)
}

// RowCol returns "Col" for column hits and "Row" otherwise.
func (h Hit) RowCol() string {
	if h.IsColumn {
		return "Col"
	}
	return "Row"
}

func (h Hit) String() string {
	return fmt.Sprintf(
		"Hit{chip=%d, payload=%d, %s=%d, ts=%d, tot=%d}",
		h.ChipID, h.Payload, h.RowCol(), h.Location, h.Timestamp, h.ToT(),
	)
}

// Decoder decodes readout streams into hits.
type Decoder struct {
	period  time.Duration
	reverse bool
}

// NewDecoder returns a decoder for a sample clock of the given period.
// Readout streams are bit-reversed before framing when reverse is set.
func NewDecoder(period time.Duration, reverse bool) *Decoder {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Decoder{period: period, reverse: reverse}
}

// Period returns the sample clock period.
func (dec *Decoder) Period() time.Duration { return dec.period }

// Reverse reports whether readout streams are bit-reversed before framing.
func (dec *Decoder) Reverse() bool { return dec.reverse }

// Decode frames and decodes a readout stream.
func (dec *Decoder) Decode(raw []byte) []Hit {
	frames := Frames(raw, dec.reverse)
	if len(frames) == 0 {
		return nil
	}
	o := make([]Hit, len(frames))
	for i, f := range frames {
		o[i] = Decode(f)
	}
	return o
}

// ToT returns the time over threshold of h, in microseconds.
func (dec *Decoder) ToT(h Hit) float64 {
	return float64(h.ToT()) * float64(dec.period.Nanoseconds()) / 1000
}
