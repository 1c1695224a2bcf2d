// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package readout

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-lpc/astropix/hits"
)

const chTimeFormat = "2006-01-02 15:04:05.000000"

// Run describes a data taking run.
type Run struct {
	ID     string // ULID of the run
	Config string // name of the ASIC configuration
	Start  time.Time
	End    time.Time
	Stats  Stats
}

// ClickHouse stores runs and decoded hits in a ClickHouse database.
//
// It expects the following tables:
//  - runs (id, config, start, end, events, hits, malformed)
//  - hits (run, event, time, chip, payload, location, is_col, tstamp, tot, tot_us)
type ClickHouse struct {
	conn clickhouse.Conn
	run  Run
	dec  *hits.Decoder
	wait bool
}

// ClickHouseOptions returns the connection options of a ClickHouse
// database.
func ClickHouseOptions(addr, db, usr, pwd string) *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: db,
			Username: usr,
			Password: pwd,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: "astropix", Version: "devel"},
			},
		},
	}
}

// NewClickHouse connects to the database and records the start of run.
// Hits ToT are converted to microseconds with dec.
func NewClickHouse(ctx context.Context, opts *clickhouse.Options, run Run, dec *hits.Decoder) (*ClickHouse, error) {
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("readout: could not open ClickHouse connection: %w", err)
	}
	err = conn.Ping(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("readout: could not ping ClickHouse server: %w", err)
	}

	db := &ClickHouse{
		conn: conn,
		run:  run,
		dec:  dec,
	}

	err = db.insertRun(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *ClickHouse) insertRun(ctx context.Context) error {
	err := db.conn.AsyncInsert(ctx,
		`INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?)`, db.wait,
		runRow(db.run)...,
	)
	if err != nil {
		return fmt.Errorf("readout: could not insert run %s: %w", db.run.ID, err)
	}
	return nil
}

func runRow(run Run) []interface{} {
	end := ""
	if !run.End.IsZero() {
		end = run.End.Format(chTimeFormat)
	}
	return []interface{}{
		run.ID, run.Config,
		run.Start.Format(chTimeFormat), end,
		run.Stats.Events, run.Stats.Hits, run.Stats.Malformed,
	}
}

func hitRows(runID string, evt Event, dec *hits.Decoder) [][]interface{} {
	rows := make([][]interface{}, len(evt.Records))
	for i, rec := range evt.Records {
		h := rec.Hit
		rows[i] = []interface{}{
			runID, uint32(evt.Index), rec.Time.Format(chTimeFormat),
			h.ChipID, h.Payload, h.Location, h.IsColumn,
			h.Timestamp, h.ToT(), dec.ToT(h),
		}
	}
	return rows
}

func (db *ClickHouse) WriteEvent(evt Event) error {
	ctx := context.Background()
	for _, row := range hitRows(db.run.ID, evt, db.dec) {
		err := db.conn.AsyncInsert(ctx,
			`INSERT INTO hits VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, db.wait,
			row...,
		)
		if err != nil {
			return fmt.Errorf("readout: could not insert hits of event %d: %w", evt.Index, err)
		}
	}
	return nil
}

func (db *ClickHouse) Flush() error { return nil }

// Close records the end of run and closes the connection.
func (db *ClickHouse) Close(stats Stats) error {
	db.run.End = time.Now().UTC()
	db.run.Stats = stats
	err := db.insertRun(context.Background())
	if err != nil {
		_ = db.conn.Close()
		return err
	}
	err = db.conn.Close()
	if err != nil {
		return fmt.Errorf("readout: could not close ClickHouse connection: %w", err)
	}
	return nil
}
