// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asic

import (
	"bytes"
	"strings"
)

// BitVector is an immutable, ordered sequence of bits.
// Bit 0 is the first bit shifted into the ASIC.
type BitVector struct {
	n int
	p []byte // packed bits, bit i is p[i/8]>>(7-i%8)
}

// FromBits creates a bit vector from a slice of 0/1 values.
func FromBits(bits []uint8) BitVector {
	var w bitWriter
	w.init(len(bits))
	for _, b := range bits {
		w.writeBit(b & 1)
	}
	return w.vector()
}

// Len returns the number of bits in the vector.
func (bv BitVector) Len() int { return bv.n }

// Bit returns the i-th bit of the vector.
func (bv BitVector) Bit(i int) uint8 {
	if i < 0 || i >= bv.n {
		panic("asic: bit index out of range")
	}
	return (bv.p[i>>3] >> (7 - uint(i&7))) & 1
}

// Reverse returns a new bit vector with the bits in reverse order.
func (bv BitVector) Reverse() BitVector {
	var w bitWriter
	w.init(bv.n)
	for i := bv.n - 1; i >= 0; i-- {
		w.writeBit(bv.Bit(i))
	}
	return w.vector()
}

// Bytes returns a copy of the packed bits, first bit in the MSB of the
// first byte. Trailing bits of the last byte are zero.
func (bv BitVector) Bytes() []byte {
	o := make([]byte, len(bv.p))
	copy(o, bv.p)
	return o
}

// Equal reports whether both vectors hold the same bits.
func (bv BitVector) Equal(o BitVector) bool {
	return bv.n == o.n && bytes.Equal(bv.p, o.p)
}

// String returns the bits as a string of '0' and '1'.
func (bv BitVector) String() string {
	var sb strings.Builder
	sb.Grow(bv.n)
	for i := 0; i < bv.n; i++ {
		sb.WriteByte('0' + bv.Bit(i))
	}
	return sb.String()
}

type bitWriter struct {
	n int
	p []byte
}

func (w *bitWriter) init(n int) {
	w.n = 0
	w.p = make([]byte, 0, (n+7)/8)
}

func (w *bitWriter) writeBit(b uint8) {
	if w.n&7 == 0 {
		w.p = append(w.p, 0)
	}
	if b != 0 {
		w.p[w.n>>3] |= 1 << (7 - uint(w.n&7))
	}
	w.n++
}

// writeBits writes the width least significant bits of v, MSB first.
func (w *bitWriter) writeBits(v uint64, width int) {
	for i := width - 1; i >= 0; i-- {
		w.writeBit(uint8(v>>uint(i)) & 1)
	}
}

func (w *bitWriter) vector() BitVector {
	return BitVector{n: w.n, p: w.p}
}

// BitVector flattens the configuration into the vector loaded into
// the ASIC shift register.
//
// Each field is written MSB first, in group order (digital, bias, dacs,
// columns). Unless msbFirst is set, the whole vector is then reversed.
// An error wrapping ErrOverflow is returned if a value does not fit in
// its field.
func (cfg Config) BitVector(msbFirst bool) (BitVector, error) {
	err := cfg.Validate()
	if err != nil {
		return BitVector{}, err
	}

	var w bitWriter
	w.init(NumBits)
	for _, v := range cfg.Digital {
		w.writeBits(uint64(v), 1)
	}
	for _, v := range cfg.Bias {
		w.writeBits(uint64(v), 1)
	}
	for _, v := range cfg.DACs {
		w.writeBits(uint64(v), DACWidth)
	}
	for _, v := range cfg.Columns {
		w.writeBits(v, ColWidth)
	}

	bv := w.vector()
	if !msbFirst {
		bv = bv.Reverse()
	}
	return bv, nil
}
