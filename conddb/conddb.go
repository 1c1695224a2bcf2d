// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to describe the condition and configuration
// database of AstroPix test stands.
//
// The database holds named ASIC configurations and the registry of
// data taking runs:
//
//  asic_configs (name, datetime, comment)
//  asic_fields  (config, grp, field, value)
//  runs         (id, config, start, stop, events, hits, malformed)
package conddb // import "github.com/go-lpc/astropix/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var (
	drvName = "mysql"

	timeout = 5 * time.Second
)

type config struct {
	host string
	usr  string
	pwd  string
}

// Option configures the connection to the database.
type Option func(*config)

// WithHost sets the address of the database server (default localhost).
func WithHost(addr string) Option {
	return func(cfg *config) {
		cfg.host = addr
	}
}

// WithUser sets the credentials used to connect to the database.
func WithUser(usr, pwd string) Option {
	return func(cfg *config) {
		cfg.usr = usr
		cfg.pwd = pwd
	}
}

// DB exposes convenience methods to easily retrieve configuration data
// and to register runs in the AstroPix database.
type DB struct {
	db   *sql.DB
	name string // name of the AstroPix database
}

// Open opens a connection to the AstroPix database dbname.
func Open(dbname string, opts ...Option) (*DB, error) {
	cfg := config{
		host: "localhost",
		usr:  "astropix",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open(drvName, dsn(cfg, dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(cfg config, db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", cfg.usr, cfg.pwd, cfg.host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

// Name returns the name of the database.
func (db *DB) Name() string { return db.name }

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}
