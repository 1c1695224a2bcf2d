// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/go-lpc/astropix/internal/rawlog"
	"go-hep.org/x/hep/lcio"
)

// LCIO2Raw extracts the readout streams of LCIO events into a raw log.
func LCIO2Raw(w *rawlog.Writer, r *lcio.Reader, freq int, msg *log.Logger) error {
	if freq <= 0 {
		freq = 1
	}
	i := 0
	for r.Next() {
		if i%freq == 0 {
			msg.Printf("processing evt %d...", i)
		}
		evt := r.Event()
		raw, err := Raw(&evt)
		if err != nil {
			return fmt.Errorf("could not decode event %d: %w", evt.EventNumber, err)
		}

		err = w.Write(int(evt.EventNumber), raw)
		if err != nil {
			return fmt.Errorf("could not write event %d: %w", evt.EventNumber, err)
		}
		i++
	}

	err := w.Flush()
	if err != nil {
		return fmt.Errorf("could not flush raw log: %w", err)
	}
	return nil
}

func bytesFromI32s(raw []int32) ([]byte, error) {
	const i32sz = 4
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing stream length")
	}
	n := int(raw[0])
	if n < 0 || n > i32sz*(len(raw)-1) {
		return nil, fmt.Errorf("invalid stream length %d", n)
	}
	o := make([]byte, i32sz*(len(raw)-1))
	for i, v := range raw[1:] {
		binary.LittleEndian.PutUint32(o[i32sz*i:], uint32(v))
	}
	return o[:n], nil
}
