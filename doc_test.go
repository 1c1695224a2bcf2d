// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package astropix

import (
	"runtime/debug"
	"testing"
)

func TestVersionOf(t *testing.T) {
	const root = "github.com/go-lpc/astropix"
	for _, tc := range []struct {
		name string
		deps []*debug.Module
		vers string
		sum  string
	}{
		{
			name: "missing",
			deps: []*debug.Module{{Path: "github.com/ziutek/ftdi", Version: "v0.0.1"}},
		},
		{
			name: "plain",
			deps: []*debug.Module{{Path: root, Version: "v0.2.0", Sum: "h1:abc"}},
			vers: "v0.2.0",
			sum:  "h1:abc",
		},
		{
			name: "replace-path",
			deps: []*debug.Module{{
				Path: root, Version: "v0.2.0",
				Replace: &debug.Module{Path: "../astropix"},
			}},
			vers: "../astropix",
		},
		{
			name: "replace-version",
			deps: []*debug.Module{{
				Path: root, Version: "v0.2.0",
				Replace: &debug.Module{Path: "example.org/astropix", Version: "v0.3.0", Sum: "h1:def"},
			}},
			vers: "example.org/astropix v0.3.0",
			sum:  "h1:def",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			vers, sum := versionOf(&debug.BuildInfo{Deps: tc.deps})
			if vers != tc.vers || sum != tc.sum {
				t.Fatalf("invalid version: got=(%q, %q), want=(%q, %q)", vers, sum, tc.vers, tc.sum)
			}
		})
	}

	main := &debug.BuildInfo{
		Main: debug.Module{Path: root, Version: "(devel)"},
		Deps: []*debug.Module{{Path: root, Version: "v0.1.0"}},
	}
	if vers, sum := versionOf(main); vers != "(devel)" || sum != "" {
		t.Fatalf("invalid version for main module: (%q, %q)", vers, sum)
	}

	if vers, sum := versionOf(nil); vers != "" || sum != "" {
		t.Fatalf("invalid version for nil build info: (%q, %q)", vers, sum)
	}
}
