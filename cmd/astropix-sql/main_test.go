// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/astropix/asic"
	"github.com/go-lpc/astropix/conddb"
)

type fakeDB struct {
	cfgs  map[string]asic.Config
	infos []conddb.ConfigInfo
	runs  []conddb.Run
	saved []string
}

func newFakeDB() *fakeDB {
	beg := time.Date(2022, 4, 15, 10, 0, 0, 0, time.UTC)
	cfg := asic.Default()
	_ = cfg.SetDAC("vncomp", 42)
	return &fakeDB{
		cfgs: map[string]asic.Config{
			"default": asic.Default(),
			"beam":    cfg,
		},
		infos: []conddb.ConfigInfo{
			{Name: "beam", Time: beg.Add(time.Hour), Comment: "vncomp raised"},
			{Name: "default", Time: beg, Comment: "power-up values"},
		},
		runs: []conddb.Run{{
			ID: "01G0NJ3ZKM8X2Y8RQCX3W4T6RN", Config: "beam",
			Start: beg, Stop: beg.Add(90 * time.Minute),
			Events: 120, Hits: 130, Malformed: 2,
		}},
	}
}

func (db *fakeDB) LastConfigName(ctx context.Context) (string, error) {
	return db.infos[0].Name, nil
}

func (db *fakeDB) Configs(ctx context.Context) ([]conddb.ConfigInfo, error) {
	return db.infos, nil
}

func (db *fakeDB) ASICConfig(ctx context.Context, name string) (asic.Config, error) {
	cfg, ok := db.cfgs[name]
	if !ok {
		return cfg, fmt.Errorf("no such config %q", name)
	}
	return cfg, nil
}

func (db *fakeDB) SaveASICConfig(ctx context.Context, name, comment string, cfg asic.Config) error {
	db.cfgs[name] = cfg
	db.saved = append(db.saved, name)
	return nil
}

func (db *fakeDB) Runs(ctx context.Context) ([]conddb.Run, error) {
	return db.runs, nil
}

func TestCommand(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		name string
		cmd  command
		want []string
	}{
		{
			name: "list",
			cmd:  command{list: true},
			want: []string{"NAME", "beam", "2022-04-15T11:00:00Z", "power-up values"},
		},
		{
			name: "list-verbose",
			cmd:  command{list: true, v: true},
			want: []string{"conddb.ConfigInfo", `Name: (string) (len=4) "beam"`},
		},
		{
			name: "runs",
			cmd:  command{runs: true},
			want: []string{"MALFORMED", "01G0NJ3ZKM8X2Y8RQCX3W4T6RN", "1h30m0s"},
		},
		{
			name: "last",
			cmd:  command{},
			want: []string{"vncomp: 42"},
		},
		{
			name: "get",
			cmd:  command{get: "default"},
			want: []string{"vncomp: 2\n"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			o := new(bytes.Buffer)
			err := tc.cmd.run(ctx, o, newFakeDB())
			if err != nil {
				t.Fatalf("could not run command: %+v", err)
			}
			for _, want := range tc.want {
				if !strings.Contains(o.String(), want) {
					t.Fatalf("missing %q in output:\n%s", want, o.String())
				}
			}
		})
	}
}

func TestUploadDownload(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	db := newFakeDB()

	oname := filepath.Join(tmp, "beam.csv")
	err := command{get: "beam", out: oname}.run(ctx, new(bytes.Buffer), db)
	if err != nil {
		t.Fatalf("could not download config: %+v", err)
	}
	if _, err := os.Stat(oname); err != nil {
		t.Fatalf("could not stat downloaded config: %+v", err)
	}

	o := new(bytes.Buffer)
	err = command{put: oname, name: "beam-copy", cmt: "copy"}.run(ctx, o, db)
	if err != nil {
		t.Fatalf("could not upload config: %+v", err)
	}
	if got, want := db.saved, []string{"beam-copy"}; len(got) != 1 || got[0] != want[0] {
		t.Fatalf("invalid saved configs: got=%v, want=%v", got, want)
	}
	if got, want := db.cfgs["beam-copy"], db.cfgs["beam"]; got != want {
		t.Fatalf("round-trip config differs")
	}

	for _, tc := range []struct {
		name string
		cmd  command
	}{
		{"missing-name", command{put: oname}},
		{"missing-file", command{put: filepath.Join(tmp, "nope.yaml"), name: "x"}},
		{"unknown-config", command{get: "nope"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cmd.run(ctx, new(bytes.Buffer), db)
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}
