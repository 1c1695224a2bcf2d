// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asic describes the configuration of an AstroPix ASIC and
// flattens it into the bit vector loaded into its shift register.
package asic // import "github.com/go-lpc/astropix/asic"

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	NumDigital = 35 // number of 1-bit digital control fields
	NumBias    = 6  // number of 1-bit bias block fields
	NumDACs    = 19 // number of DACs
	NumCols    = 35 // number of pixel columns
	NumRows    = 35 // number of pixel rows

	DACWidth = 6  // width of a DAC value, in bits
	ColWidth = 38 // width of a column configuration word, in bits

	// NumBits is the length of the configuration vector.
	NumBits = NumDigital + NumBias + NumDACs*DACWidth + NumCols*ColWidth
)

// Configuration groups, in shift-register order.
const (
	Digital = "digital"
	Bias    = "bias"
	DACs    = "dacs"
	Columns = "columns"
)

const (
	colInjRow  = 0  // inject charge into the row of the same index
	colInjCol  = 36 // inject charge into this column
	colAmpOut  = 37 // route this column to the amplifier output
	colMaskLSB = 1  // mask bit of row 0

	colMask = ((uint64(1) << NumRows) - 1) << colMaskLSB

	// DefaultColumn masks all the pixels of a column, with injection
	// and amplifier output disabled.
	DefaultColumn uint64 = 0b001_11111_11111_11111_11111_11111_11111_11110
)

var (
	ErrOverflow = errors.New("asic: value overflows field width")
	ErrField    = errors.New("asic: unknown configuration field")
	ErrRange    = errors.New("asic: pixel index out of range")
)

// OverflowError describes a configuration value that does not fit
// in its declared width.
type OverflowError struct {
	Group string
	Field string
	Width int
	Value uint64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf(
		"asic: value %d overflows %d-bit field %s/%s",
		e.Value, e.Width, e.Group, e.Field,
	)
}

func (e *OverflowError) Is(target error) bool { return target == ErrOverflow }

// Config is the configuration of an AstroPix ASIC.
//
// Config only holds fixed-size arrays: assigning a Config takes a
// snapshot that can be encoded while the original is being modified.
type Config struct {
	Digital [NumDigital]uint8
	Bias    [NumBias]uint8
	DACs    [NumDACs]uint8
	Columns [NumCols]uint64 // indexed by column number
}

var (
	digitalNames = func() [NumDigital]string {
		var (
			names [NumDigital]string
			i     = 0
			add   = func(name string) {
				names[i] = name
				i++
			}
		)
		add("interrupt_pushpull")
		for j := 1; j <= 18; j++ {
			add("En_Inj" + strconv.Itoa(j))
		}
		add("ResetB")
		for j := 0; j < 15; j++ {
			add("Extrabit" + strconv.Itoa(j))
		}
		return names
	}()

	biasNames = [NumBias]string{
		"DisHiDR", "q01", "qon0", "qon1", "qon2", "qon3",
	}

	dacNames = [NumDACs]string{
		"blres", "nu1", "vn1", "vnfb", "vnfoll",
		"nu5", "nu6", "nu7", "nu8", "vn2",
		"vnfoll2", "vnbias", "vpload", "nu13", "vncomp",
		"vpfoll", "nu16", "vprec", "vnrec",
	}

	colNames = func() [NumCols]string {
		var names [NumCols]string
		for i := range names {
			names[i] = "ColConfig" + strconv.Itoa(i)
		}
		return names
	}()

	// fields maps "group/name" to the position of a field in its group.
	fields = func() map[string]int {
		m := make(map[string]int, NumDigital+NumBias+NumDACs+NumCols)
		for i, n := range digitalNames {
			m[Digital+"/"+n] = i
		}
		for i, n := range biasNames {
			m[Bias+"/"+n] = i
		}
		for i, n := range dacNames {
			m[DACs+"/"+n] = i
		}
		for i, n := range colNames {
			m[Columns+"/"+n] = i
		}
		return m
	}()
)

// Default returns the default configuration of an AstroPix v2 ASIC,
// with all pixels masked.
func Default() Config {
	var cfg Config
	cfg.Digital[0] = 1 // interrupt_pushpull
	for i := 0; i < 8; i++ {
		cfg.Digital[20+i] = 1 // Extrabit0-7
	}

	cfg.Bias = [NumBias]uint8{0, 0, 0, 1, 0, 1}
	cfg.DACs = [NumDACs]uint8{
		0, 0, 20, 1, 10,
		0, 0, 0, 0, 0,
		1, 0, 5, 0, 2,
		60, 0, 30, 30,
	}
	for i := range cfg.Columns {
		cfg.Columns[i] = DefaultColumn
	}
	return cfg
}

// Field is a named configuration value.
type Field struct {
	Group string
	Name  string
	Width int
	Value uint64
}

// Fields returns all the configuration fields, in shift-register order.
func (cfg *Config) Fields() []Field {
	o := make([]Field, 0, NumDigital+NumBias+NumDACs+NumCols)
	for i, v := range cfg.Digital {
		o = append(o, Field{Digital, digitalNames[i], 1, uint64(v)})
	}
	for i, v := range cfg.Bias {
		o = append(o, Field{Bias, biasNames[i], 1, uint64(v)})
	}
	for i, v := range cfg.DACs {
		o = append(o, Field{DACs, dacNames[i], DACWidth, uint64(v)})
	}
	for i, v := range cfg.Columns {
		o = append(o, Field{Columns, colNames[i], ColWidth, v})
	}
	return o
}

// Width returns the width in bits of the fields of a group.
func Width(group string) int {
	switch group {
	case Digital, Bias:
		return 1
	case DACs:
		return DACWidth
	case Columns:
		return ColWidth
	}
	return 0
}

func lookup(group, name string) (int, error) {
	i, ok := fields[group+"/"+name]
	if !ok {
		return 0, fmt.Errorf("%w %s/%s", ErrField, group, name)
	}
	return i, nil
}

// Get returns the value of the named field.
func (cfg *Config) Get(group, name string) (uint64, error) {
	i, err := lookup(group, name)
	if err != nil {
		return 0, err
	}
	switch group {
	case Digital:
		return uint64(cfg.Digital[i]), nil
	case Bias:
		return uint64(cfg.Bias[i]), nil
	case DACs:
		return uint64(cfg.DACs[i]), nil
	default:
		return cfg.Columns[i], nil
	}
}

// Set sets the value of the named field.
// Set returns an error wrapping ErrOverflow if v does not fit in the
// width of the field. cfg is left untouched in that case.
func (cfg *Config) Set(group, name string, v uint64) error {
	i, err := lookup(group, name)
	if err != nil {
		return err
	}
	err = check(group, name, v)
	if err != nil {
		return err
	}
	switch group {
	case Digital:
		cfg.Digital[i] = uint8(v)
	case Bias:
		cfg.Bias[i] = uint8(v)
	case DACs:
		cfg.DACs[i] = uint8(v)
	default:
		cfg.Columns[i] = v
	}
	return nil
}

func check(group, name string, v uint64) error {
	w := Width(group)
	if v>>uint(w) != 0 {
		return &OverflowError{Group: group, Field: name, Width: w, Value: v}
	}
	return nil
}

// Validate checks that every field value fits in its width.
func (cfg *Config) Validate() error {
	for i, v := range cfg.Digital {
		if err := check(Digital, digitalNames[i], uint64(v)); err != nil {
			return err
		}
	}
	for i, v := range cfg.Bias {
		if err := check(Bias, biasNames[i], uint64(v)); err != nil {
			return err
		}
	}
	for i, v := range cfg.DACs {
		if err := check(DACs, dacNames[i], uint64(v)); err != nil {
			return err
		}
	}
	for i, v := range cfg.Columns {
		if err := check(Columns, colNames[i], v); err != nil {
			return err
		}
	}
	return nil
}

// SetDAC sets the named DAC to v.
func (cfg *Config) SetDAC(name string, v uint8) error {
	return cfg.Set(DACs, name, uint64(v))
}

func checkPixel(col, row int) error {
	if col < 0 || col >= NumCols || row < 0 || row >= NumRows {
		return fmt.Errorf("%w (col=%d, row=%d)", ErrRange, col, row)
	}
	return nil
}

func rowBit(row int) uint64 { return uint64(1) << uint(row+colMaskLSB) }

// EnablePixel unmasks the pixel at (col, row) and masks all the other
// pixels of that column.
func (cfg *Config) EnablePixel(col, row int) error {
	if err := checkPixel(col, row); err != nil {
		return err
	}
	cfg.Columns[col] |= colMask
	cfg.Columns[col] &^= rowBit(row)
	return nil
}

// UnmaskPixel unmasks the pixel at (col, row).
func (cfg *Config) UnmaskPixel(col, row int) error {
	if err := checkPixel(col, row); err != nil {
		return err
	}
	cfg.Columns[col] &^= rowBit(row)
	return nil
}

// DisablePixel masks the pixel at (col, row).
func (cfg *Config) DisablePixel(col, row int) error {
	if err := checkPixel(col, row); err != nil {
		return err
	}
	cfg.Columns[col] |= rowBit(row)
	return nil
}

// MaskPixel is an alias for DisablePixel.
func (cfg *Config) MaskPixel(col, row int) error {
	return cfg.DisablePixel(col, row)
}

// PixelEnabled reports whether the pixel at (col, row) is unmasked.
func (cfg *Config) PixelEnabled(col, row int) bool {
	if checkPixel(col, row) != nil {
		return false
	}
	return cfg.Columns[col]&rowBit(row) == 0
}

// MaskAll masks every pixel.
func (cfg *Config) MaskAll() {
	for i := range cfg.Columns {
		cfg.Columns[i] |= colMask
	}
}

// UnmaskAll unmasks every pixel.
func (cfg *Config) UnmaskAll() {
	for i := range cfg.Columns {
		cfg.Columns[i] &^= colMask
	}
}

// EnableInjRow enables charge injection into the given row.
func (cfg *Config) EnableInjRow(row int) error {
	if err := checkPixel(0, row); err != nil {
		return err
	}
	cfg.Columns[row] |= 1 << colInjRow
	return nil
}

// EnableInjCol enables charge injection into the given column.
func (cfg *Config) EnableInjCol(col int) error {
	if err := checkPixel(col, 0); err != nil {
		return err
	}
	cfg.Columns[col] |= 1 << colInjCol
	return nil
}

// EnableAmpOutCol routes the given column to the amplifier output.
// Only one column may be routed at a time.
func (cfg *Config) EnableAmpOutCol(col int) error {
	if err := checkPixel(col, 0); err != nil {
		return err
	}
	for i := range cfg.Columns {
		cfg.Columns[i] &^= 1 << colAmpOut
	}
	cfg.Columns[col] |= 1 << colAmpOut
	return nil
}
