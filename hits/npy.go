// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hits

import (
	"fmt"
	"io"
	"time"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// NumColumns is the number of columns of the matrix built by Matrix.
const NumColumns = 11

// Matrix returns the records as a N x 11 matrix, with the columns
// ordered as Header. Row/Col is 1 for columns and 0 for rows.
func (dec *Decoder) Matrix(recs []Record) *mat.Dense {
	if len(recs) == 0 {
		return nil
	}
	m := mat.NewDense(len(recs), NumColumns, nil)
	for i, rec := range recs {
		h := rec.Hit
		col := 0.0
		if h.IsColumn {
			col = 1
		}
		m.SetRow(i, []float64{
			float64(rec.Event),
			float64(h.ChipID),
			float64(h.Payload),
			float64(h.Location),
			col,
			float64(h.Timestamp),
			float64(h.ToTMSB),
			float64(h.ToTLSB),
			float64(h.ToT()),
			dec.ToT(h),
			float64(rec.Time.UnixNano()) / 1e9,
		})
	}
	return m
}

// WriteNpy writes the records as a NumPy array.
func (dec *Decoder) WriteNpy(w io.Writer, recs []Record) error {
	m := dec.Matrix(recs)
	if m == nil {
		return fmt.Errorf("hits: no record to write")
	}
	err := npyio.Write(w, m)
	if err != nil {
		return fmt.Errorf("hits: could not write npy array: %w", err)
	}
	return nil
}

// ReadNpy reads records back from a NumPy array written by WriteNpy.
func ReadNpy(r io.Reader) ([]Record, error) {
	var m mat.Dense
	err := npyio.Read(r, &m)
	if err != nil {
		return nil, fmt.Errorf("hits: could not read npy array: %w", err)
	}
	if m.IsEmpty() {
		return nil, nil
	}
	rows, cols := m.Dims()
	if cols != NumColumns {
		return nil, fmt.Errorf("hits: invalid npy array shape (%d, %d)", rows, cols)
	}

	o := make([]Record, rows)
	for i := range o {
		row := m.RawRowView(i)
		sec := row[10]
		o[i] = Record{
			Event: int(row[0]),
			Time:  time.Unix(0, int64(sec*1e9)),
			Hit: Hit{
				ChipID:    uint8(row[1]),
				Payload:   uint8(row[2]),
				Location:  uint8(row[3]),
				IsColumn:  row[4] != 0,
				Timestamp: uint8(row[5]),
				ToTMSB:    uint8(row[6]),
				ToTLSB:    uint8(row[7]),
			},
		}
	}
	return o, nil
}
