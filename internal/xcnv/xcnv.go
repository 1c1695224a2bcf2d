// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv provides tools to convert AstroPix raw logs to/from LCIO.
package xcnv // import "github.com/go-lpc/astropix/internal/xcnv"

const (
	Detector = "AstroPix"

	// RawCollection holds the readout stream of an event.
	RawCollection = "ASTROPIX_RAW"
	// HitsCollection holds the decoded hits of an event.
	HitsCollection = "ASTROPIX_HITS"
)
