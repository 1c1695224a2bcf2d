// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nexys

const (
	VendorID  = 0x0403 // FTDI
	ProductID = 0x6010 // FT2232H

	Description  = "Digilent USB Device A"
	SerialPrefix = "210276"
)

// FIFO commands.
const (
	cmdRead  = 0x00
	cmdWrite = 0x01
)

// shift-register addresses and lines.
const (
	AddrASIC = 0x00 // ASIC configuration shift register

	sinASIC = 0x04 // ASIC serial input
	ldASIC  = 0x08 // ASIC load strobe

	sinGecco = 0x02 // GECCO serial input
	ldGecco  = 0x04 // GECCO load strobe

	rbHeader = 0x20 // readback enable
)

// FPGA registers.
const (
	RegConfig    = 0x00 // board configuration
	RegInterrupt = 70   // ASIC interrupt line, 0 when hits are pending

	RegSPIConfig = 0x15 // SPI configuration and FIFO status
	RegSPIClkDiv = 0x16 // SPI clock divider
	RegSPIWrite  = 0x17 // SPI write FIFO
	RegSPIRead   = 0x18 // SPI read FIFO
)

// bits of RegConfig.
const (
	cfgChipReset = 4 // res_n
)

// bits of RegSPIConfig.
const (
	spiWFIFOReset  = 0
	spiRFIFOReset  = 1
	spiSRRBReset   = 2 // shift-register readback reset
	spiRFIFOEmpty  = 3 // read-only
	spiWFIFOEmpty  = 4 // read-only
	spiEnable      = 7
	spiReadChunk   = 8 // bytes read from the SPI read FIFO per request
	spiMaxCycles   = 10
	spiMaxChunkLen = 8191
)

// SPI command headers.
const (
	SPIHeaderEmpty   = 0b001 << 5
	SPIHeaderRouting = 0b010 << 5
	SPIHeaderSR      = 0b011 << 5

	SPISRBroadcast = 0x7e
	SPISRBit0      = 0x00
	SPISRBit1      = 0x01
	SPISRLoad      = 0x03
	SPIEmptyByte   = 0x00
)

const (
	// MaxLength is the largest payload a single frame can announce.
	MaxLength = 0xffff

	// chunkSize is the largest buffer sent to the FTDI chip at once.
	chunkSize = 64000
)
