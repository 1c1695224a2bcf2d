// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command astropix-reset brings up the SPI readout of a Nexys board
// and resets the AstroPix chip.
package main // import "github.com/go-lpc/astropix/cmd/astropix-reset"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/go-lpc/astropix/nexys"
	"golang.org/x/sys/unix"
)

func main() {
	log.SetPrefix("astropix-reset: ")
	log.SetFlags(0)

	var (
		serial = flag.String("serial", nexys.SerialPrefix, "serial number prefix of the Nexys board")
		clkdiv = flag.Uint("spi-clkdiv", 255, "SPI clock divider")
		delay  = flag.Duration("delay", 1*time.Second, "duration of the chip reset")
		retry  = flag.Duration("retry", 5*time.Second, "time budget to open the board")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: astropix-reset [OPTIONS]

ex:
 $> astropix-reset -spi-clkdiv=40 -delay=2s

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	dev, err := nexys.Open(
		nexys.WithSerialPrefix(*serial),
		nexys.WithRetry(*retry),
	)
	if err != nil {
		log.Fatalf("could not open Nexys board: %+v", err)
	}
	defer dev.Close()

	if *clkdiv > 0xff {
		log.Fatalf("invalid SPI clock divider %d", *clkdiv)
	}

	brd := nexys.NewBoard(dev)
	brd.ResetDelay = *delay

	err = run(ctx, brd, uint8(*clkdiv))
	if err != nil {
		log.Fatalf("could not reset board: %+v", err)
	}
}

func run(ctx context.Context, brd *nexys.Board, clkdiv uint8) error {
	err := brd.SPIEnable(true)
	if err != nil {
		return err
	}

	err = brd.SPIReset()
	if err != nil {
		return err
	}

	err = brd.SetSPIClkDiv(clkdiv)
	if err != nil {
		return err
	}

	err = brd.SendRoutingCmd()
	if err != nil {
		return err
	}

	log.Printf("resetting chip (%v)...", brd.ResetDelay)
	err = brd.ChipReset(ctx)
	if err != nil {
		return fmt.Errorf("could not reset chip: %w", err)
	}
	log.Printf("resetting chip... [done]")

	return nil
}
