// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nexys drives the Nexys FPGA board reading out AstroPix ASICs
// over its FTDI synchronous FIFO link.
package nexys // import "github.com/go-lpc/astropix/nexys"

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ziutek/ftdi"
)

var ErrNotFound = errors.New("nexys: no Nexys board found")

// Transport is the byte-level link to the board.
type Transport interface {
	Write(p []byte) error
	Read(n int) ([]byte, error)
	ReadRegister(reg uint8, n int) ([]byte, error)
	WriteRegister(reg, v uint8) error
}

type ftdiDevice interface {
	Reset() error

	SetBitmode(iomask byte, mode ftdi.Mode) error
	SetLatencyTimer(lt int) error
	SetWriteChunkSize(cs int) error
	SetReadChunkSize(cs int) error
	PurgeBuffers() error

	io.Writer
	io.Reader
	io.Closer
}

// usbInfo describes an FTDI device attached to the host.
type usbInfo struct {
	Description string
	Serial      string
}

var (
	ftdiList = ftdiListImpl
	ftdiOpen = ftdiOpenImpl
)

func ftdiListImpl(vid, pid uint16) ([]usbInfo, error) {
	lst, err := ftdi.FindAll(int(vid), int(pid))
	if err != nil {
		return nil, err
	}
	o := make([]usbInfo, 0, len(lst))
	for _, dev := range lst {
		o = append(o, usbInfo{Description: dev.Description, Serial: dev.Serial})
		dev.Close()
	}
	return o, nil
}

func ftdiOpenImpl(vid, pid uint16, serial string) (ftdiDevice, error) {
	lst, err := ftdi.FindAll(int(vid), int(pid))
	if err != nil {
		return nil, err
	}
	var usb *ftdi.USBDev
	for _, dev := range lst {
		if usb == nil && dev.Serial == serial {
			usb = dev
			continue
		}
		dev.Close()
	}
	if usb == nil {
		return nil, fmt.Errorf("%w (serial=%q)", ErrNotFound, serial)
	}
	defer usb.Close()

	dev, err := ftdi.OpenUSBDev(usb, ftdi.ChannelA)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

type config struct {
	vid    uint16
	pid    uint16
	desc   string
	prefix string
	retry  time.Duration
	msg    *log.Logger
}

func newConfig() config {
	return config{
		vid:    VendorID,
		pid:    ProductID,
		desc:   Description,
		prefix: SerialPrefix,
		retry:  3 * time.Second,
		msg:    log.New(os.Stdout, "nexys: ", 0),
	}
}

// Option configures how a Nexys board is looked up and opened.
type Option func(*config)

// WithIDs sets the USB vendor and product IDs of the board.
func WithIDs(vid, pid uint16) Option {
	return func(cfg *config) {
		cfg.vid = vid
		cfg.pid = pid
	}
}

// WithSerialPrefix selects boards whose serial number starts with prefix.
func WithSerialPrefix(prefix string) Option {
	return func(cfg *config) {
		cfg.prefix = prefix
	}
}

// WithRetry sets how long Open keeps retrying a failing board.
// A zero duration disables retries.
func WithRetry(d time.Duration) Option {
	return func(cfg *config) {
		cfg.retry = d
	}
}

func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// Device is a Nexys board connected through its FTDI chip.
type Device struct {
	msg    *log.Logger
	serial string
	ft     ftdiDevice
}

var _ Transport = (*Device)(nil)

// Open looks up the first Nexys board attached to the host and
// configures its FTDI chip in synchronous FIFO mode.
func Open(opts ...Option) (*Device, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var dev *Device
	op := func() error {
		serial, err := find(cfg)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		dev, err = newDevice(cfg, serial)
		return err
	}

	var err error
	switch {
	case cfg.retry <= 0:
		err = op()
		if perr, ok := err.(*backoff.PermanentError); ok {
			err = perr.Err
		}
	default:
		err = backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      cfg.retry,
			Clock:               backoff.SystemClock,
		})
	}
	if err != nil {
		return nil, err
	}

	dev.msg.Printf("Nexys board %q opened", dev.serial)
	return dev, nil
}

func find(cfg config) (string, error) {
	lst, err := ftdiList(cfg.vid, cfg.pid)
	if err != nil {
		return "", fmt.Errorf("nexys: could not list FTDI devices (vid=0x%x, pid=0x%x): %w", cfg.vid, cfg.pid, err)
	}
	for _, dev := range lst {
		if dev.Description != cfg.desc {
			continue
		}
		if !strings.HasPrefix(dev.Serial, cfg.prefix) {
			continue
		}
		return dev.Serial, nil
	}
	return "", ErrNotFound
}

func newDevice(cfg config, serial string) (*Device, error) {
	ft, err := ftdiOpen(cfg.vid, cfg.pid, serial)
	if err != nil {
		return nil, fmt.Errorf("nexys: could not open FTDI device %q: %w", serial, err)
	}

	dev := &Device{msg: cfg.msg, serial: serial, ft: ft}
	err = dev.init()
	if err != nil {
		ft.Close()
		return nil, fmt.Errorf("nexys: could not initialize FTDI device %q: %w", serial, err)
	}

	return dev, nil
}

func (dev *Device) init() error {
	var err error

	err = dev.ft.Reset()
	if err != nil {
		return fmt.Errorf("could not reset USB: %w", err)
	}

	err = dev.ft.SetBitmode(0xff, ftdi.ModeReset)
	if err != nil {
		return fmt.Errorf("could not reset bit mode: %w", err)
	}

	err = dev.ft.SetBitmode(0xff, ftdi.ModeSyncFF)
	if err != nil {
		return fmt.Errorf("could not enable synchronous FIFO mode: %w", err)
	}

	err = dev.ft.SetLatencyTimer(2)
	if err != nil {
		return fmt.Errorf("could not set latency timer to 2: %w", err)
	}

	err = dev.ft.SetWriteChunkSize(chunkSize)
	if err != nil {
		return fmt.Errorf("could not set write chunk-size to %d: %w", chunkSize, err)
	}

	err = dev.ft.SetReadChunkSize(chunkSize)
	if err != nil {
		return fmt.Errorf("could not set read chunk-size to %d: %w", chunkSize, err)
	}

	err = dev.ft.PurgeBuffers()
	if err != nil {
		return fmt.Errorf("could not purge USB buffers: %w", err)
	}

	return nil
}

// Serial returns the serial number of the board.
func (dev *Device) Serial() string { return dev.serial }

// Close releases the FTDI device.
func (dev *Device) Close() error {
	return dev.ft.Close()
}

// Write sends p to the board, in chunks of at most 64000 bytes.
func (dev *Device) Write(p []byte) error {
	for len(p) > 0 {
		n := len(p)
		if n > chunkSize {
			n = chunkSize
		}
		w, err := dev.ft.Write(p[:n])
		switch {
		case err != nil:
			return fmt.Errorf("nexys: could not write %d bytes: %w", n, err)
		case w != n:
			return fmt.Errorf("nexys: could not write %d bytes: %w", n, io.ErrShortWrite)
		}
		p = p[n:]
	}
	return nil
}

// Read reads exactly n bytes from the board.
func (dev *Device) Read(n int) ([]byte, error) {
	p := make([]byte, n)
	_, err := io.ReadFull(dev.ft, p)
	if err != nil {
		return nil, fmt.Errorf("nexys: could not read %d bytes: %w", n, err)
	}
	return p, nil
}

// ReadRegister reads n bytes from register reg.
func (dev *Device) ReadRegister(reg uint8, n int) ([]byte, error) {
	req, err := ReadRegisterFrame(reg, n)
	if err != nil {
		return nil, err
	}
	err = dev.Write(req)
	if err != nil {
		return nil, fmt.Errorf("nexys: could not request register 0x%x: %w", reg, err)
	}
	p, err := dev.Read(n)
	if err != nil {
		return nil, fmt.Errorf("nexys: could not read register 0x%x: %w", reg, err)
	}
	return p, nil
}

// WriteRegister writes v into register reg.
func (dev *Device) WriteRegister(reg, v uint8) error {
	err := dev.Write(WriteRegisterFrame(reg, v))
	if err != nil {
		return fmt.Errorf("nexys: could not write register 0x%x: %w", reg, err)
	}
	return nil
}

// List returns the serial numbers of the Nexys boards attached to the host.
func List(opts ...Option) ([]string, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	lst, err := ftdiList(cfg.vid, cfg.pid)
	if err != nil {
		return nil, fmt.Errorf("nexys: could not list FTDI devices: %w", err)
	}
	var o []string
	for _, dev := range lst {
		if dev.Description == cfg.desc && strings.HasPrefix(dev.Serial, cfg.prefix) {
			o = append(o, dev.Serial)
		}
	}
	return o, nil
}
