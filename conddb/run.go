// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb

import (
	"context"
	"fmt"
	"time"
)

// Run is an entry of the runs registry.
type Run struct {
	ID        string    `json:"id"`
	Config    string    `json:"config"`
	Start     time.Time `json:"start"`
	Stop      time.Time `json:"stop"`
	Events    uint64    `json:"events"`
	Hits      uint64    `json:"hits"`
	Malformed uint64    `json:"malformed"`
}

// RecordRun adds a run to the registry.
func (db *DB) RecordRun(ctx context.Context, run Run) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		"INSERT INTO runs (id, config, start, stop, events, hits, malformed) VALUES (?, ?, ?, ?, ?, ?, ?)",
		run.ID, run.Config, run.Start.UTC(), run.Stop.UTC(),
		int64(run.Events), int64(run.Hits), int64(run.Malformed),
	)
	if err != nil {
		return fmt.Errorf("conddb: could not record run %s: %w", run.ID, err)
	}
	return nil
}

// Runs returns the registered runs, most recent first.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var runs []Run
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT id, config, start, stop, events, hits, malformed FROM runs ORDER BY start DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not run runs query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var run Run
		err = rows.Scan(
			&run.ID, &run.Config, &run.Start, &run.Stop,
			&run.Events, &run.Hits, &run.Malformed,
		)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not scan runs: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for runs: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving runs: %w", err)
	}

	return runs, nil
}
