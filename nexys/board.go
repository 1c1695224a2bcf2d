// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nexys

import (
	"context"
	"fmt"
	"log"
	"math/bits"
	"os"
	"time"

	"github.com/go-lpc/astropix/asic"
)

// Board implements the AstroPix operations of a Nexys board on top
// of a transport.
type Board struct {
	t   Transport
	msg *log.Logger
	err error

	// ResetDelay is how long the ASIC is held in reset by ChipReset.
	ResetDelay time.Duration
}

// NewBoard returns a board talking through t.
func NewBoard(t Transport) *Board {
	return &Board{
		t:          t,
		msg:        log.New(os.Stdout, "nexys: ", 0),
		ResetDelay: 1 * time.Second,
	}
}

// Transport returns the underlying transport.
func (brd *Board) Transport() Transport { return brd.t }

func (brd *Board) readReg(reg uint8) uint8 {
	if brd.err != nil {
		return 0
	}
	p, err := brd.t.ReadRegister(reg, 1)
	if err != nil {
		brd.err = err
		return 0
	}
	return p[0]
}

func (brd *Board) writeReg(reg, v uint8) {
	if brd.err != nil {
		return
	}
	brd.err = brd.t.WriteRegister(reg, v)
}

func (brd *Board) write(p []byte) {
	if brd.err != nil {
		return
	}
	brd.err = brd.t.Write(p)
}

// flush returns and clears the sticky error.
func (brd *Board) flush() error {
	err := brd.err
	brd.err = nil
	return err
}

func (brd *Board) setBit(reg uint8, bit uint) {
	v := brd.readReg(reg)
	brd.writeReg(reg, v|1<<bit)
}

func (brd *Board) clearBit(reg uint8, bit uint) {
	v := brd.readReg(reg)
	brd.writeReg(reg, v&^(1<<bit))
}

// WriteASIC loads the configuration into the ASIC shift register.
func (brd *Board) WriteASIC(cfg asic.Config, clkdiv int) error {
	bv, err := cfg.BitVector(false)
	if err != nil {
		return fmt.Errorf("nexys: could not build ASIC vector: %w", err)
	}
	pat, err := ASICPattern(bv, true, clkdiv)
	if err != nil {
		return fmt.Errorf("nexys: could not build ASIC pattern: %w", err)
	}
	frame, err := pat.Frame(AddrASIC)
	if err != nil {
		return fmt.Errorf("nexys: could not frame ASIC pattern: %w", err)
	}
	brd.msg.Printf("writing ASIC configuration (%d bits, %d bytes)", bv.Len(), len(frame))

	brd.write(frame)
	if err := brd.flush(); err != nil {
		return fmt.Errorf("nexys: could not write ASIC configuration: %w", err)
	}
	return nil
}

// ReadbackASIC shifts the ASIC configuration out of its shift register.
func (brd *Board) ReadbackASIC(cfg asic.Config, clkdiv int) error {
	bv, err := cfg.BitVector(false)
	if err != nil {
		return fmt.Errorf("nexys: could not build ASIC vector: %w", err)
	}
	pat, err := ReadbackPattern(bv, clkdiv)
	if err != nil {
		return fmt.Errorf("nexys: could not build readback pattern: %w", err)
	}
	frame, err := pat.Frame(AddrASIC)
	if err != nil {
		return fmt.Errorf("nexys: could not frame readback pattern: %w", err)
	}

	brd.write(frame)
	if err := brd.flush(); err != nil {
		return fmt.Errorf("nexys: could not write readback pattern: %w", err)
	}
	return nil
}

// WriteGecco loads bv into the GECCO shift register at addr.
func (brd *Board) WriteGecco(addr uint8, bv asic.BitVector, clkdiv int) error {
	pat, err := GeccoPattern(bv, clkdiv)
	if err != nil {
		return fmt.Errorf("nexys: could not build GECCO pattern: %w", err)
	}
	frame, err := pat.Frame(addr)
	if err != nil {
		return fmt.Errorf("nexys: could not frame GECCO pattern: %w", err)
	}
	brd.write(frame)
	if err := brd.flush(); err != nil {
		return fmt.Errorf("nexys: could not write GECCO register 0x%x: %w", addr, err)
	}
	return nil
}

// ConfigRegister returns the value of the board configuration register.
func (brd *Board) ConfigRegister() (uint8, error) {
	v := brd.readReg(RegConfig)
	return v, brd.flush()
}

// ChipReset holds the ASIC in reset for ResetDelay.
func (brd *Board) ChipReset(ctx context.Context) error {
	brd.setBit(RegConfig, cfgChipReset)
	if err := brd.flush(); err != nil {
		return fmt.Errorf("nexys: could not assert chip reset: %w", err)
	}

	tck := time.NewTimer(brd.ResetDelay)
	defer tck.Stop()
	select {
	case <-ctx.Done():
	case <-tck.C:
	}

	// release reset even when cancelled.
	brd.clearBit(RegConfig, cfgChipReset)
	if err := brd.flush(); err != nil {
		return fmt.Errorf("nexys: could not release chip reset: %w", err)
	}
	return ctx.Err()
}

// Interrupt reports whether the ASIC signals pending hits.
// The interrupt line is active low.
func (brd *Board) Interrupt() (bool, error) {
	v := brd.readReg(RegInterrupt)
	if err := brd.flush(); err != nil {
		return false, fmt.Errorf("nexys: could not read interrupt: %w", err)
	}
	return v == 0, nil
}

// SPIEnable enables or disables the SPI master.
func (brd *Board) SPIEnable(enable bool) error {
	switch enable {
	case true:
		brd.setBit(RegSPIConfig, spiEnable)
	default:
		brd.clearBit(RegSPIConfig, spiEnable)
	}
	if err := brd.flush(); err != nil {
		return fmt.Errorf("nexys: could not configure SPI: %w", err)
	}
	return nil
}

// SPIReset resets the SPI write and read FIFOs.
func (brd *Board) SPIReset() error {
	brd.setBit(RegSPIConfig, spiWFIFOReset)
	brd.setBit(RegSPIConfig, spiRFIFOReset)
	brd.clearBit(RegSPIConfig, spiWFIFOReset)
	brd.clearBit(RegSPIConfig, spiRFIFOReset)
	if err := brd.flush(); err != nil {
		return fmt.Errorf("nexys: could not reset SPI FIFOs: %w", err)
	}
	return nil
}

// SRReadbackReset resets the shift-register readback logic.
func (brd *Board) SRReadbackReset() error {
	brd.setBit(RegSPIConfig, spiSRRBReset)
	brd.clearBit(RegSPIConfig, spiSRRBReset)
	if err := brd.flush(); err != nil {
		return fmt.Errorf("nexys: could not reset SR readback: %w", err)
	}
	return nil
}

// SetSPIClkDiv sets the SPI clock divider.
func (brd *Board) SetSPIClkDiv(clkdiv uint8) error {
	if clkdiv < 1 {
		return fmt.Errorf("%w (clkdiv=%d)", ErrClockDivider, clkdiv)
	}
	brd.writeReg(RegSPIClkDiv, clkdiv)
	if err := brd.flush(); err != nil {
		return fmt.Errorf("nexys: could not set SPI clock divider: %w", err)
	}
	return nil
}

// SendRoutingCmd asks the ASICs of the chain to report their routing.
func (brd *Board) SendRoutingCmd() error {
	return brd.WriteSPI([]byte{SPIHeaderRouting, 0x00, 0x00}, false)
}

// WriteSPI writes p into the SPI write FIFO.
// Unless msbFirst is set, the bits of every byte are reversed.
func (brd *Board) WriteSPI(p []byte, msbFirst bool) error {
	data := make([]byte, len(p))
	for i, v := range p {
		if !msbFirst {
			v = bits.Reverse8(v)
		}
		data[i] = v
	}

	for len(data) > 0 {
		n := len(data)
		if n > spiMaxChunkLen {
			n = spiMaxChunkLen
		}
		frame, err := WriteRegistersFrame(RegSPIWrite, data[:n])
		if err != nil {
			return err
		}
		brd.write(frame)
		data = data[n:]
	}
	if err := brd.flush(); err != nil {
		return fmt.Errorf("nexys: could not write SPI data: %w", err)
	}
	return nil
}

// WriteSPIBytes clocks n*8 empty bytes through the SPI bus, pushing
// pending hit data into the read FIFO.
func (brd *Board) WriteSPIBytes(n int) error {
	p := make([]byte, n*8)
	for i := range p {
		p[i] = SPIHeaderEmpty
	}
	return brd.WriteSPI(p, false)
}

// ReadSPIFIFO drains the SPI read FIFO.
func (brd *Board) ReadSPIFIFO() ([]byte, error) {
	var o []byte
	for i := 0; i < spiMaxCycles; i++ {
		status := brd.readReg(RegSPIConfig)
		if brd.err != nil || status&(1<<spiRFIFOEmpty) != 0 {
			break
		}
		p, err := brd.t.ReadRegister(RegSPIRead, spiReadChunk)
		if err != nil {
			brd.err = err
			break
		}
		o = append(o, p...)
	}
	if err := brd.flush(); err != nil {
		return nil, fmt.Errorf("nexys: could not read SPI FIFO: %w", err)
	}
	return o, nil
}

// SPIConfigVector encodes bv as SPI shift-register commands addressed
// to chipID, or to all chips when broadcast is set.
func SPIConfigVector(bv asic.BitVector, chipID uint8, load, broadcast bool) []byte {
	o := make([]byte, 0, bv.Len()+2)
	switch {
	case broadcast:
		o = append(o, SPISRBroadcast)
	default:
		o = append(o, SPIHeaderSR|chipID&0x1f)
	}
	for i := 0; i < bv.Len(); i++ {
		switch bv.Bit(i) {
		case 1:
			o = append(o, SPISRBit1)
		default:
			o = append(o, SPISRBit0)
		}
	}
	if load {
		o = append(o, SPISRLoad)
	}
	return o
}

// WriteASICSPI loads the configuration into the ASIC through SPI.
func (brd *Board) WriteASICSPI(cfg asic.Config, chipID uint8, broadcast bool) error {
	bv, err := cfg.BitVector(false)
	if err != nil {
		return fmt.Errorf("nexys: could not build ASIC vector: %w", err)
	}
	return brd.WriteSPI(SPIConfigVector(bv, chipID, true, broadcast), false)
}
