// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package readout

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-lpc/astropix/asic"
)

// Status is the state of a run, as served by the status router.
type Status struct {
	Run    string    `json:"run"`
	Start  time.Time `json:"start"`
	Uptime string    `json:"uptime"`
	Stats  Stats     `json:"stats"`
}

// NewStatusRouter returns a router serving the state of a run:
//  - GET /status: run counters, as JSON;
//  - GET /config: current ASIC configuration, as YAML.
func NewStatusRouter(run string, start time.Time, loop *Loop, cfg *asic.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		st := Status{
			Run:    run,
			Start:  start,
			Uptime: time.Since(start).Round(time.Second).String(),
			Stats:  loop.Stats(),
		}
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(st)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})

	r.Get("/config", func(w http.ResponseWriter, req *http.Request) {
		buf := new(bytes.Buffer)
		err := asic.WriteYAML(buf, cfg.Snapshot())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		_, _ = w.Write(buf.Bytes())
	})

	return r
}
