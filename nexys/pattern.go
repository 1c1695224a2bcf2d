// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nexys

import (
	"errors"
	"fmt"

	"github.com/go-lpc/astropix/asic"
)

var (
	ErrClockDivider = errors.New("nexys: invalid clock divider")
	ErrLength       = errors.New("nexys: pattern length overflows 16 bits")
)

// Pattern is a clocked waveform driving a shift register of the board.
type Pattern struct {
	Data []byte // waveform bytes, already replicated by the clock divider
	Len  int    // length announced in the frame header
}

// Frame returns the pattern prefixed by the write header addressed to addr.
func (p Pattern) Frame(addr uint8) ([]byte, error) {
	if p.Len > MaxLength {
		return nil, fmt.Errorf("%w (len=%d)", ErrLength, p.Len)
	}
	o := make([]byte, 4, 4+len(p.Data))
	o[0] = cmdWrite
	o[1] = addr
	o[2] = uint8(p.Len >> 8)
	o[3] = uint8(p.Len)
	o = append(o, p.Data...)
	return o, nil
}

func checkClkDiv(clkdiv int) error {
	if clkdiv < 1 {
		return fmt.Errorf("%w (clkdiv=%d)", ErrClockDivider, clkdiv)
	}
	return nil
}

// replicate repeats every byte of p n times.
func replicate(dst, p []byte, n int) []byte {
	for _, v := range p {
		for i := 0; i < n; i++ {
			dst = append(dst, v)
		}
	}
	return dst
}

// ASICPattern encodes the bit vector into the waveform programming
// the ASIC configuration shift register.
//
// Each bit is clocked with two phases. When load is set, the pattern
// ends with the load strobe, held clkdiv*10 times longer.
func ASICPattern(bv asic.BitVector, load bool, clkdiv int) (Pattern, error) {
	err := checkClkDiv(clkdiv)
	if err != nil {
		return Pattern{}, err
	}

	n := bv.Len()
	data := make([]byte, 0, n*5)
	for i := 0; i < n; i++ {
		var p byte
		if bv.Bit(i) == 1 {
			p = sinASIC
		}
		data = append(data, p, p|1, p, p|2, p)
	}

	var (
		size = (n*5 + 30) * clkdiv
		o    = make([]byte, 0, size)
	)
	o = replicate(o, data, clkdiv)
	if load {
		o = replicate(o, []byte{0x00, ldASIC, 0x00}, clkdiv*10)
	}

	return Pattern{Data: o, Len: size}, nil
}

// ReadbackPattern encodes the waveform shifting the ASIC configuration
// back out of the shift register.
func ReadbackPattern(bv asic.BitVector, clkdiv int) (Pattern, error) {
	err := checkClkDiv(clkdiv)
	if err != nil {
		return Pattern{}, err
	}

	n := bv.Len()
	data := make([]byte, 0, (n+1)*5)
	data = append(data,
		rbHeader|sinASIC, rbHeader|sinASIC|1,
		rbHeader|sinASIC, rbHeader|sinASIC|2,
		rbHeader|sinASIC,
	)
	for i := 0; i < n; i++ {
		data = append(data, sinASIC, sinASIC|1, sinASIC, sinASIC|2, sinASIC)
	}

	size := (n + 1) * 5 * clkdiv
	o := replicate(make([]byte, 0, size), data, clkdiv)
	return Pattern{Data: o, Len: size}, nil
}

// GeccoPattern encodes the bit vector into the waveform programming
// a shift register of the GECCO carrier board.
func GeccoPattern(bv asic.BitVector, clkdiv int) (Pattern, error) {
	err := checkClkDiv(clkdiv)
	if err != nil {
		return Pattern{}, err
	}

	n := bv.Len()
	data := make([]byte, 0, n*3+20)
	for i := 0; i < n; i++ {
		var p byte
		if bv.Bit(i) == 1 {
			p = sinGecco
		}
		data = append(data, p, p|1, p)
	}
	data = append(data, ldGecco, 0x00)
	for i := 0; i < 8; i++ {
		data = append(data, 0x01, 0x00)
	}
	data = append(data, ldGecco, 0x00)

	size := (n*3 + 20) * clkdiv
	o := replicate(make([]byte, 0, size), data, clkdiv)
	return Pattern{Data: o, Len: size}, nil
}

// WriteRegisterFrame returns the frame writing v into register reg.
func WriteRegisterFrame(reg, v uint8) []byte {
	return []byte{cmdWrite, reg, 0x00, 0x01, v}
}

// WriteRegistersFrame returns the frame writing data into register reg.
func WriteRegistersFrame(reg uint8, data []byte) ([]byte, error) {
	if len(data) > MaxLength {
		return nil, fmt.Errorf("%w (len=%d)", ErrLength, len(data))
	}
	o := make([]byte, 4, 4+len(data))
	o[0] = cmdWrite
	o[1] = reg
	o[2] = uint8(len(data) >> 8)
	o[3] = uint8(len(data))
	return append(o, data...), nil
}

// ReadRegisterFrame returns the frame requesting n bytes from register reg.
func ReadRegisterFrame(reg uint8, n int) ([]byte, error) {
	if n < 0 || n > MaxLength {
		return nil, fmt.Errorf("%w (len=%d)", ErrLength, n)
	}
	return []byte{cmdRead, reg, uint8(n >> 8), uint8(n)}, nil
}
