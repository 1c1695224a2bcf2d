// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package astropix holds code to configure and read out AstroPix
// monolithic pixel sensors through a Nexys FPGA board.
//
// The sub-packages are organized as follows:
//  - asic: ASIC configuration model and shift-register bit vector;
//  - nexys: FTDI transport, waveform patterns and board operations;
//  - hits: hit framing and decoding of the SPI readout stream;
//  - readout: interrupt-driven readout loop and its sinks;
//  - conddb: configuration and run registry database.
package astropix // import "github.com/go-lpc/astropix"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of astropix and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

const modpath = "github.com/go-lpc/astropix"

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	if b.Main.Path == modpath {
		return moduleVersion(&b.Main)
	}

	for _, m := range b.Deps {
		if m.Path == modpath {
			return moduleVersion(m)
		}
	}
	return "", ""
}

func moduleVersion(m *debug.Module) (version, sum string) {
	r := m.Replace
	switch {
	case r == nil:
		return m.Version, m.Sum
	case r.Version != "" && r.Path != "":
		return fmt.Sprintf("%s %s", r.Path, r.Version), r.Sum
	case r.Version != "":
		return r.Version, r.Sum
	case r.Path != "":
		return r.Path, r.Sum
	default:
		return m.Version + "*", ""
	}
}
