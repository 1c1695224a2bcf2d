// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-lpc/astropix/asic"
)

var (
	errQuit    = errors.New("quit")
	errNoBoard = errors.New("no Nexys board attached")
	errUsage   = errors.New("invalid arguments")
)

type board interface {
	WriteASIC(cfg asic.Config, clkdiv int) error
	ReadbackASIC(cfg asic.Config, clkdiv int) error
	ChipReset(ctx context.Context) error
	ConfigRegister() (uint8, error)
}

type shell struct {
	w      io.Writer
	cfg    *asic.Store
	brd    board
	clkdiv int
}

func newShell(w io.Writer, cfg *asic.Store, clkdiv int) *shell {
	return &shell{w: w, cfg: cfg, clkdiv: clkdiv}
}

type command struct {
	name  string
	usage string
	nargs int // expected number of arguments, -1 for any
	fn    func(sh *shell, ctx context.Context, args []string) error
}

var commands = []command{
	{"show", "show [group]: display the configuration", -1, (*shell).show},
	{"get", "get <group> <field>: display a field", 2, (*shell).get},
	{"set", "set <group> <field> <value>: modify a field", 3, (*shell).set},
	{"dac", "dac <name> <value>: modify a DAC", 2, (*shell).dac},
	{"enable", "enable <col> <row>: enable and unmask a pixel", 2, (*shell).pixel},
	{"disable", "disable <col> <row>: disable and mask a pixel", 2, (*shell).pixel},
	{"mask", "mask <col> <row>|all: mask pixels", -1, (*shell).mask},
	{"unmask", "unmask <col> <row>|all: unmask pixels", -1, (*shell).mask},
	{"inj", "inj row|col <index>: enable charge injection", 2, (*shell).inj},
	{"ampout", "ampout <col>: route a column to the amplifier output", 1, (*shell).ampout},
	{"load", "load <file>: load a configuration file (.yaml, .csv)", 1, (*shell).load},
	{"save", "save <file>: save the configuration (.yaml, .csv)", 1, (*shell).save},
	{"vector", "vector: display the configuration bit vector", 0, (*shell).vector},
	{"dump", "dump: dump the configuration", 0, (*shell).dump},
	{"write", "write: load the configuration into the chip", 0, (*shell).write},
	{"readback", "readback: shift the configuration out of the chip", 0, (*shell).readback},
	{"reset", "reset: reset the chip", 0, (*shell).reset},
	{"regs", "regs: display the board configuration register", 0, (*shell).regs},
	{"help", "help: display this message", 0, nil},
	{"quit", "quit: leave the shell", 0, nil},
}

func (sh *shell) exec(ctx context.Context, line string) error {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return nil
	}
	name, args := strings.ToLower(toks[0]), toks[1:]

	switch name {
	case "quit", "exit":
		return errQuit
	case "help", "?":
		for _, cmd := range commands {
			fmt.Fprintf(sh.w, "  %s\n", cmd.usage)
		}
		return nil
	}

	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		if cmd.nargs >= 0 && len(args) != cmd.nargs {
			return fmt.Errorf("%w (usage: %s)", errUsage, cmd.usage)
		}
		return cmd.fn(sh, ctx, append([]string{name}, args...))
	}
	return fmt.Errorf("unknown command %q", name)
}

func parseIndex(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an index", errUsage, s)
	}
	return v, nil
}

func parsePixel(args []string) (col, row int, err error) {
	col, err = parseIndex(args[0])
	if err != nil {
		return 0, 0, err
	}
	row, err = parseIndex(args[1])
	if err != nil {
		return 0, 0, err
	}
	return col, row, nil
}

func (sh *shell) show(ctx context.Context, args []string) error {
	var group string
	switch len(args) {
	case 1:
	case 2:
		group = args[1]
		if asic.Width(group) == 0 {
			return fmt.Errorf("%w %q", asic.ErrField, group)
		}
	default:
		return errUsage
	}

	cfg := sh.cfg.Snapshot()
	tw := tabwriter.NewWriter(sh.w, 0, 8, 1, ' ', 0)
	for _, f := range cfg.Fields() {
		if group != "" && f.Group != group {
			continue
		}
		switch f.Group {
		case asic.Columns:
			fmt.Fprintf(tw, "%s\t%s\t0b%0*b\n", f.Group, f.Name, f.Width, f.Value)
		default:
			fmt.Fprintf(tw, "%s\t%s\t%d\n", f.Group, f.Name, f.Value)
		}
	}
	return tw.Flush()
}

func (sh *shell) get(ctx context.Context, args []string) error {
	cfg := sh.cfg.Snapshot()
	v, err := cfg.Get(args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "%s/%s = %d (0x%x)\n", args[1], args[2], v, v)
	return nil
}

func (sh *shell) set(ctx context.Context, args []string) error {
	v, err := strconv.ParseUint(args[3], 0, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid value %q", errUsage, args[3])
	}
	return sh.cfg.Update(func(cfg *asic.Config) error {
		return cfg.Set(args[1], args[2], v)
	})
}

func (sh *shell) dac(ctx context.Context, args []string) error {
	v, err := strconv.ParseUint(args[2], 0, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid value %q", errUsage, args[2])
	}
	return sh.cfg.Update(func(cfg *asic.Config) error {
		return cfg.Set(asic.DACs, args[1], v)
	})
}

func (sh *shell) pixel(ctx context.Context, args []string) error {
	col, row, err := parsePixel(args[1:])
	if err != nil {
		return err
	}
	return sh.cfg.Update(func(cfg *asic.Config) error {
		if args[0] == "enable" {
			return cfg.EnablePixel(col, row)
		}
		return cfg.DisablePixel(col, row)
	})
}

func (sh *shell) mask(ctx context.Context, args []string) error {
	unmask := args[0] == "unmask"
	switch {
	case len(args) == 2 && args[1] == "all":
		return sh.cfg.Update(func(cfg *asic.Config) error {
			if unmask {
				cfg.UnmaskAll()
			} else {
				cfg.MaskAll()
			}
			return nil
		})
	case len(args) == 3:
		col, row, err := parsePixel(args[1:])
		if err != nil {
			return err
		}
		return sh.cfg.Update(func(cfg *asic.Config) error {
			if unmask {
				return cfg.UnmaskPixel(col, row)
			}
			return cfg.MaskPixel(col, row)
		})
	default:
		return errUsage
	}
}

func (sh *shell) inj(ctx context.Context, args []string) error {
	i, err := parseIndex(args[2])
	if err != nil {
		return err
	}
	return sh.cfg.Update(func(cfg *asic.Config) error {
		switch args[1] {
		case "row":
			return cfg.EnableInjRow(i)
		case "col":
			return cfg.EnableInjCol(i)
		default:
			return fmt.Errorf("%w: injection target %q", errUsage, args[1])
		}
	})
}

func (sh *shell) ampout(ctx context.Context, args []string) error {
	col, err := parseIndex(args[1])
	if err != nil {
		return err
	}
	return sh.cfg.Update(func(cfg *asic.Config) error {
		return cfg.EnableAmpOutCol(col)
	})
}

func (sh *shell) load(ctx context.Context, args []string) error {
	v, err := asic.ReadFile(args[1])
	if err != nil {
		return err
	}
	return sh.cfg.Update(func(cfg *asic.Config) error {
		*cfg = v
		return nil
	})
}

func (sh *shell) save(ctx context.Context, args []string) error {
	return asic.WriteFile(args[1], sh.cfg.Snapshot())
}

func (sh *shell) vector(ctx context.Context, args []string) error {
	cfg := sh.cfg.Snapshot()
	bv, err := cfg.BitVector(false)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "%d bits: %s\n", bv.Len(), bv)
	return nil
}

func (sh *shell) dump(ctx context.Context, args []string) error {
	spew.Fdump(sh.w, sh.cfg.Snapshot())
	return nil
}

func (sh *shell) write(ctx context.Context, args []string) error {
	if sh.brd == nil {
		return errNoBoard
	}
	return sh.brd.WriteASIC(sh.cfg.Snapshot(), sh.clkdiv)
}

func (sh *shell) readback(ctx context.Context, args []string) error {
	if sh.brd == nil {
		return errNoBoard
	}
	return sh.brd.ReadbackASIC(sh.cfg.Snapshot(), sh.clkdiv)
}

func (sh *shell) reset(ctx context.Context, args []string) error {
	if sh.brd == nil {
		return errNoBoard
	}
	return sh.brd.ChipReset(ctx)
}

func (sh *shell) regs(ctx context.Context, args []string) error {
	if sh.brd == nil {
		return errNoBoard
	}
	v, err := sh.brd.ConfigRegister()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "config: 0x%02x (0b%08b)\n", v, v)
	return nil
}
