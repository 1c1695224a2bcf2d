// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/astropix/hits"
	"go-hep.org/x/hep/lcio"
)

// Rewrite copies the AstroPix events of r into w, setting their run
// number to run.
// If dec is not nil, the hits collection of every event is decoded
// again from its readout stream.
func Rewrite(w *lcio.Writer, r *lcio.Reader, run int32, dec *hits.Decoder, freq int, msg *log.Logger) (int, error) {
	if freq <= 0 {
		freq = 1
	}

	n := 0
	for r.Next() {
		if n == 0 {
			rhdr := r.RunHeader()
			if rhdr.Detector != Detector {
				return n, fmt.Errorf("not an AstroPix run (detector=%q)", rhdr.Detector)
			}
			rhdr.RunNumber = run
			if dec != nil {
				rhdr.Params = runParams(dec)
			}

			err := w.WriteRunHeader(&rhdr)
			if err != nil {
				return n, fmt.Errorf("could not write run header: %w", err)
			}
		}

		evt := r.Event()
		if n%freq == 0 {
			msg.Printf("processing event %d...", evt.EventNumber)
		}

		out := evt
		out.RunNumber = run
		if dec != nil {
			raw, err := Raw(&evt)
			if err != nil {
				return n, err
			}
			out = lcio.Event{
				RunNumber:   run,
				EventNumber: evt.EventNumber,
				TimeStamp:   evt.TimeStamp,
				Detector:    evt.Detector,
				Params:      evt.Params,
			}
			out.Add(RawCollection, evt.Get(RawCollection))
			out.Add(HitsCollection, hitsFrom(dec, raw))
		}

		err := w.WriteEvent(&out)
		if err != nil {
			return n, fmt.Errorf("could not write event %d: %w", evt.EventNumber, err)
		}
		n++
	}

	err := r.Err()
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("could not read LCIO file: %w", err)
	}
	return n, nil
}

func runParams(dec *hits.Decoder) lcio.Params {
	reverse := int32(0)
	if dec.Reverse() {
		reverse = 1
	}
	return lcio.Params{
		Ints: map[string][]int32{
			"ClockPeriod": {int32(dec.Period().Nanoseconds())},
			"Reverse":     {reverse},
		},
	}
}
