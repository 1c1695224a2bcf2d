// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command astropix-srv starts a TDAQ server driving an AstroPix chip
// through a Nexys board.
//
// The node publishes decoded hits on its /hits output.
// Its configuration is read from the environment:
//
//  ASTROPIX_ASIC_CFG    ASIC configuration file (.yaml, .csv)
//  ASTROPIX_CLKDIV      clock divider of the ASIC configuration pattern (default 8)
//  ASTROPIX_SPI_CLKDIV  SPI clock divider (default 255)
//  ASTROPIX_SERIAL      serial number prefix of the Nexys board
//
// A YAML configuration sent as the body of the /config command
// overrides ASTROPIX_ASIC_CFG.
package main // import "github.com/go-lpc/astropix/cmd/astropix-srv"

import (
	"context"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/astropix/nexys"
)

func main() {
	cmd := flags.New()

	dev, err := newServer(cmd.Args[0], os.Getenv)
	if err != nil {
		log.Panicf("could not create AstroPix node: %+v", err)
	}
	dev.open = func() (device, error) {
		brd, err := nexys.Open(nexys.WithSerialPrefix(dev.serial))
		if err != nil {
			return nil, err
		}
		return brd, nil
	}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/hits", dev.hits)

	srv.RunHandle(dev.run)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
