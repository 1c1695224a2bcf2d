// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command astropix-ctl is an interactive shell to edit the configuration
// of an AstroPix chip and load it through a Nexys board.
package main // import "github.com/go-lpc/astropix/cmd/astropix-ctl"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/go-lpc/astropix/asic"
	"github.com/go-lpc/astropix/nexys"
	"github.com/peterh/liner"
	"golang.org/x/sys/unix"
)

func main() {
	log.SetPrefix("astropix-ctl: ")
	log.SetFlags(0)

	var (
		fname   = flag.String("cfg", "", "ASIC configuration file to load (.yaml, .csv)")
		offline = flag.Bool("offline", false, "do not connect to a Nexys board")
		serial  = flag.String("serial", nexys.SerialPrefix, "serial number prefix of the Nexys board")
		clkdiv  = flag.Int("clkdiv", 8, "clock divider of the ASIC configuration pattern")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: astropix-ctl [OPTIONS]

ex:
 $> astropix-ctl -cfg=chip602.yaml
 astropix> dac vncomp 10
 astropix> unmask 3 4
 astropix> write

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	cfg := asic.Default()
	if *fname != "" {
		v, err := asic.ReadFile(*fname)
		if err != nil {
			log.Fatalf("could not load ASIC configuration: %+v", err)
		}
		cfg = v
	}

	sh := newShell(os.Stdout, asic.NewStore(cfg), *clkdiv)
	if !*offline {
		dev, err := nexys.Open(nexys.WithSerialPrefix(*serial))
		if err != nil {
			log.Fatalf("could not open Nexys board: %+v", err)
		}
		defer dev.Close()
		sh.brd = nexys.NewBoard(dev)
	}

	err := run(ctx, sh)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".astropix_history")
}

func run(ctx context.Context, sh *shell) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(func(line string) []string {
		var o []string
		for _, cmd := range commands {
			if strings.HasPrefix(cmd.name, strings.ToLower(line)) {
				o = append(o, cmd.name)
			}
		}
		return o
	})

	hist := historyFile()
	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if hist == "" {
			return
		}
		f, err := os.Create(hist)
		if err != nil {
			log.Printf("could not save history: %+v", err)
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	for {
		line, err := term.Prompt("astropix> ")
		switch {
		case err == nil:
		case errors.Is(err, liner.ErrPromptAborted), errors.Is(err, io.EOF):
			fmt.Fprintln(sh.w)
			return nil
		default:
			return fmt.Errorf("could not read command: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		err = sh.exec(ctx, line)
		switch {
		case err == nil:
		case errors.Is(err, errQuit):
			return nil
		default:
			fmt.Fprintf(sh.w, "error: %+v\n", err)
		}
	}
}
