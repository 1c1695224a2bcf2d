// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"fmt"

	"github.com/go-lpc/astropix/hits"
	"go-hep.org/x/hep/lcio"
)

// Raw returns the readout stream stored in an LCIO event.
func Raw(evt *lcio.Event) ([]byte, error) {
	obj, ok := evt.Get(RawCollection).(*lcio.GenericObject)
	if !ok || len(obj.Data) != 1 {
		return nil, fmt.Errorf("event %d has no valid %s collection", evt.EventNumber, RawCollection)
	}
	return bytesFromI32s(obj.Data[0].I32s)
}

// Hits returns the decoded hits stored in an LCIO event, with their
// ToT in microseconds.
func Hits(evt *lcio.Event) ([]hits.Hit, []float64, error) {
	obj, ok := evt.Get(HitsCollection).(*lcio.GenericObject)
	if !ok {
		return nil, nil, fmt.Errorf("event %d has no %s collection", evt.EventNumber, HitsCollection)
	}

	var (
		hs  = make([]hits.Hit, len(obj.Data))
		tot = make([]float64, len(obj.Data))
	)
	for i, data := range obj.Data {
		if len(data.I32s) != 6 || len(data.F32s) != 1 {
			return nil, nil, fmt.Errorf(
				"event %d: invalid hit %d (i32s=%d, f32s=%d)",
				evt.EventNumber, i, len(data.I32s), len(data.F32s),
			)
		}
		v := data.I32s
		hs[i] = hits.Hit{
			ChipID:    uint8(v[0]),
			Payload:   uint8(v[1]),
			Location:  uint8(v[2]),
			IsColumn:  v[3] != 0,
			Timestamp: uint8(v[4]),
			ToTMSB:    uint8(v[5]>>8) & 0xf,
			ToTLSB:    uint8(v[5]),
		}
		tot[i] = float64(data.F32s[0])
	}
	return hs, tot, nil
}
