// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command astropix-sql inspects and updates the AstroPix configuration
// database.
package main // import "github.com/go-lpc/astropix/cmd/astropix-sql"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-lpc/astropix/asic"
	"github.com/go-lpc/astropix/conddb"
)

const (
	dbname = "astropix"
)

func main() {
	log.SetPrefix("astropix-sql: ")
	log.SetFlags(0)

	var (
		host = flag.String("host", "localhost", "address of the database server")
		usr  = flag.String("user", "astropix", "database user")
		db   = flag.String("db", dbname, "name of the database")

		list  = flag.Bool("list", false, "list ASIC configurations")
		runs  = flag.Bool("runs", false, "list registered runs")
		get   = flag.String("get", "", "ASIC configuration to retrieve (empty: last one)")
		put   = flag.String("put", "", "ASIC configuration file to upload (.yaml, .csv)")
		name  = flag.String("name", "", "name of the uploaded ASIC configuration")
		cmt   = flag.String("comment", "", "comment of the uploaded ASIC configuration")
		oname = flag.String("o", "", "output file for the retrieved ASIC configuration (.yaml, .csv)")

		verbose = flag.Bool("v", false, "enable verbose mode")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: astropix-sql [OPTIONS]

ex:
 $> astropix-sql -list
 $> astropix-sql -get=threshold-scan -o=cfg.yaml
 $> astropix-sql -put=cfg.yaml -name=threshold-scan -comment="vcomp lowered"
 $> ASTROPIX_DB_PASSWORD=xxx astropix-sql -runs

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	conn, err := conddb.Open(*db,
		conddb.WithHost(*host),
		conddb.WithUser(*usr, os.Getenv("ASTROPIX_DB_PASSWORD")),
	)
	if err != nil {
		log.Fatalf("could not open AstroPix db: %+v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := command{
		list: *list,
		runs: *runs,
		get:  *get,
		put:  *put,
		name: *name,
		cmt:  *cmt,
		out:  *oname,
		v:    *verbose,
	}

	err = cmd.run(ctx, os.Stdout, conn)
	if err != nil {
		log.Fatalf("could not run query: %+v", err)
	}
}

type configDB interface {
	LastConfigName(ctx context.Context) (string, error)
	Configs(ctx context.Context) ([]conddb.ConfigInfo, error)
	ASICConfig(ctx context.Context, name string) (asic.Config, error)
	SaveASICConfig(ctx context.Context, name, comment string, cfg asic.Config) error
	Runs(ctx context.Context) ([]conddb.Run, error)
}

type command struct {
	list bool
	runs bool
	get  string
	put  string
	name string
	cmt  string
	out  string
	v    bool
}

func (cmd command) run(ctx context.Context, w io.Writer, db configDB) error {
	switch {
	case cmd.put != "":
		return cmd.upload(ctx, w, db)
	case cmd.list:
		return cmd.configs(ctx, w, db)
	case cmd.runs:
		return cmd.registry(ctx, w, db)
	default:
		return cmd.download(ctx, w, db)
	}
}

func (cmd command) upload(ctx context.Context, w io.Writer, db configDB) error {
	if cmd.name == "" {
		return fmt.Errorf("missing name of the configuration to upload")
	}

	cfg, err := asic.ReadFile(cmd.put)
	if err != nil {
		return fmt.Errorf("could not read ASIC configuration: %w", err)
	}

	err = db.SaveASICConfig(ctx, cmd.name, cmd.cmt, cfg)
	if err != nil {
		return fmt.Errorf("could not upload ASIC configuration %q: %w", cmd.name, err)
	}
	fmt.Fprintf(w, "uploaded %q as %q\n", cmd.put, cmd.name)
	return nil
}

func (cmd command) configs(ctx context.Context, w io.Writer, db configDB) error {
	cfgs, err := db.Configs(ctx)
	if err != nil {
		return fmt.Errorf("could not list ASIC configurations: %w", err)
	}

	if cmd.v {
		spew.Fdump(w, cfgs)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "NAME\tDATE\tCOMMENT\n")
	for _, cfg := range cfgs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", cfg.Name, cfg.Time.UTC().Format(time.RFC3339), cfg.Comment)
	}
	return tw.Flush()
}

func (cmd command) registry(ctx context.Context, w io.Writer, db configDB) error {
	runs, err := db.Runs(ctx)
	if err != nil {
		return fmt.Errorf("could not list runs: %w", err)
	}

	if cmd.v {
		spew.Fdump(w, runs)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "RUN\tCONFIG\tSTART\tDURATION\tEVENTS\tHITS\tMALFORMED\n")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%d\t%d\t%d\n",
			run.ID, run.Config,
			run.Start.UTC().Format(time.RFC3339),
			run.Stop.Sub(run.Start).Round(time.Second),
			run.Events, run.Hits, run.Malformed,
		)
	}
	return tw.Flush()
}

func (cmd command) download(ctx context.Context, w io.Writer, db configDB) error {
	name := cmd.get
	if name == "" {
		v, err := db.LastConfigName(ctx)
		if err != nil {
			return fmt.Errorf("could not get last ASIC configuration name: %w", err)
		}
		name = v
		log.Printf("config: %q", name)
	}

	cfg, err := db.ASICConfig(ctx, name)
	if err != nil {
		return fmt.Errorf("could not get ASIC configuration %q: %w", name, err)
	}

	switch {
	case cmd.out != "":
		err = asic.WriteFile(cmd.out, cfg)
		if err != nil {
			return fmt.Errorf("could not save ASIC configuration %q: %w", name, err)
		}
	case cmd.v:
		spew.Fdump(w, cfg)
	default:
		err = asic.WriteYAML(w, cfg)
		if err != nil {
			return fmt.Errorf("could not display ASIC configuration %q: %w", name, err)
		}
	}
	return nil
}
