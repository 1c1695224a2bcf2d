// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb

import (
	"context"
	"fmt"
	"time"

	"github.com/go-lpc/astropix/asic"
)

// ConfigInfo describes a named ASIC configuration.
type ConfigInfo struct {
	Name    string
	Time    time.Time
	Comment string
}

// LastConfigName returns the name of the most recent ASIC configuration.
func (db *DB) LastConfigName(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name FROM asic_configs ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return name, fmt.Errorf("conddb: could not query last ASIC cfg: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&name)
		if err != nil {
			return name, fmt.Errorf("conddb: could not get last ASIC cfg name: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return name, fmt.Errorf("conddb: could not scan db for last ASIC cfg: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return name, fmt.Errorf("conddb: context error while retrieving last ASIC cfg: %w", err)
	}

	if name == "" {
		return name, fmt.Errorf("conddb: no ASIC configuration in db %q", db.name)
	}

	return name, nil
}

// Configs lists the ASIC configurations, most recent first.
func (db *DB) Configs(ctx context.Context) ([]ConfigInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var infos []ConfigInfo
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name, datetime, comment FROM asic_configs ORDER BY datetime DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query ASIC cfgs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var info ConfigInfo
		err = rows.Scan(&info.Name, &info.Time, &info.Comment)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not scan ASIC cfg: %w", err)
		}
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for ASIC cfgs: %w", err)
	}

	return infos, nil
}

// ASICConfig returns the ASIC configuration registered under name.
// Fields absent from the database keep their default value.
func (db *DB) ASICConfig(ctx context.Context, name string) (asic.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		"SELECT grp, field, value FROM asic_fields WHERE config=?",
		name,
	)
	if err != nil {
		return asic.Config{}, fmt.Errorf("conddb: could not run ASIC cfg query: %w", err)
	}
	defer rows.Close()

	var tbl asic.Table
	for i := 0; rows.Next(); i++ {
		var e asic.Entry
		err = rows.Scan(&e.Group, &e.Field, &e.Value)
		if err != nil {
			return asic.Config{}, fmt.Errorf("conddb: could not scan row %d for ASIC cfg: %w", i, err)
		}
		tbl = append(tbl, e)
	}

	if err := rows.Err(); err != nil {
		return asic.Config{}, fmt.Errorf("conddb: could not scan db for ASIC cfg: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return asic.Config{}, fmt.Errorf("conddb: context error while retrieving ASIC cfg: %w", err)
	}

	if len(tbl) == 0 {
		return asic.Config{}, fmt.Errorf("conddb: no ASIC configuration %q", name)
	}

	cfg, err := tbl.Config()
	if err != nil {
		return cfg, fmt.Errorf("conddb: invalid ASIC configuration %q: %w", name, err)
	}
	return cfg, nil
}

// SaveASICConfig registers cfg under name, in a single transaction.
func (db *DB) SaveASICConfig(ctx context.Context, name, comment string, cfg asic.Config) error {
	err := cfg.Validate()
	if err != nil {
		return fmt.Errorf("conddb: could not save ASIC cfg %q: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("conddb: could not start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		"INSERT INTO asic_configs (name, datetime, comment) VALUES (?, ?, ?)",
		name, time.Now().UTC(), comment,
	)
	if err != nil {
		return fmt.Errorf("conddb: could not insert ASIC cfg %q: %w", name, err)
	}

	for _, e := range cfg.Table() {
		_, err = tx.ExecContext(
			ctx,
			"INSERT INTO asic_fields (config, grp, field, value) VALUES (?, ?, ?, ?)",
			name, e.Group, e.Field, e.Value,
		)
		if err != nil {
			return fmt.Errorf("conddb: could not insert ASIC field %s/%s: %w", e.Group, e.Field, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("conddb: could not commit ASIC cfg %q: %w", name, err)
	}
	return nil
}
