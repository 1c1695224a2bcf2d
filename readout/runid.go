// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package readout

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewRunID returns a new, lexically sortable, run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// RunTime returns the creation time of a run identifier.
func RunTime(id string) (time.Time, error) {
	v, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(v.Time()), nil
}
