// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/go-lpc/astropix/hits"
	"github.com/go-lpc/astropix/internal/rawlog"
	"go-hep.org/x/hep/lcio"
)

// Raw2LCIO converts a raw readout log into LCIO events.
//
// Every event carries the readout stream (RawCollection) and one
// generic object per decoded hit (HitsCollection), with:
//  - I32s: chip, payload, location, is-column, timestamp, ToT;
//  - F32s: ToT in microseconds.
func Raw2LCIO(w *lcio.Writer, r *rawlog.Reader, dec *hits.Decoder, run int32, msg *log.Logger) error {
	err := w.WriteRunHeader(&lcio.RunHeader{
		RunNumber: run,
		Detector:  Detector,
		Params:    runParams(dec),
	})
	if err != nil {
		return fmt.Errorf("could not write run header: %w", err)
	}

loop:
	for i := 0; ; i++ {
		if i%100 == 0 {
			msg.Printf("processing evt %d...", i)
		}
		if !r.Next() {
			break loop
		}
		entry := r.Entry()

		evt := lcio.Event{
			RunNumber:   run,
			EventNumber: int32(entry.Index),
			Detector:    Detector,
		}
		evt.Add(RawCollection, &lcio.GenericObject{
			Data: []lcio.GenericObjectData{
				{I32s: i32sFrom(entry.Data)},
			},
		})
		evt.Add(HitsCollection, hitsFrom(dec, entry.Data))

		err = w.WriteEvent(&evt)
		if err != nil {
			return fmt.Errorf("could not write event %d: %w", entry.Index, err)
		}
	}

	err = r.Err()
	if err != nil {
		return fmt.Errorf("could not read raw log: %w", err)
	}
	return nil
}

func hitsFrom(dec *hits.Decoder, raw []byte) *lcio.GenericObject {
	hs := dec.Decode(raw)
	obj := &lcio.GenericObject{
		Data: make([]lcio.GenericObjectData, len(hs)),
	}
	for i, h := range hs {
		col := int32(0)
		if h.IsColumn {
			col = 1
		}
		obj.Data[i] = lcio.GenericObjectData{
			I32s: []int32{
				int32(h.ChipID), int32(h.Payload), int32(h.Location),
				col, int32(h.Timestamp), int32(h.ToT()),
			},
			F32s: []float32{float32(dec.ToT(h))},
		}
	}
	return obj
}

// i32sFrom packs a byte stream into int32 words, prefixed by its length.
func i32sFrom(raw []byte) []int32 {
	const i32sz = 4

	o := make([]int32, 1+(len(raw)+i32sz-1)/i32sz)
	o[0] = int32(len(raw))

	var buf [i32sz]byte
	for i := 0; i < len(raw); i += i32sz {
		buf = [i32sz]byte{}
		copy(buf[:], raw[i:])
		o[1+i/i32sz] = int32(binary.LittleEndian.Uint32(buf[:]))
	}
	return o
}
