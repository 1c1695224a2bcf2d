// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/go-lpc/astropix/hits"
	"github.com/go-lpc/astropix/nexys"
	"github.com/spf13/viper"
)

// settings holds the parameters of a data taking run.
//
// Settings are read, in increasing order of precedence, from their
// default values, the astropix.yaml settings file, ASTROPIX_* environment
// variables and command-line flags.
type settings struct {
	Name   string `mapstructure:"name"`
	Run    int    `mapstructure:"run"`
	OutDir string `mapstructure:"outdir"`
	Log    string `mapstructure:"log"`

	Config   string `mapstructure:"asic-cfg"`
	DBConfig string `mapstructure:"db-cfg"`

	Serial    string        `mapstructure:"serial"`
	ClkDiv    int           `mapstructure:"clkdiv"`
	SPIClkDiv int           `mapstructure:"spi-clkdiv"`
	Settle    time.Duration `mapstructure:"settle"`

	Delay     time.Duration `mapstructure:"delay"`
	Idle      int           `mapstructure:"idle"`
	Period    time.Duration `mapstructure:"period"`
	Reverse   bool          `mapstructure:"reverse"`
	PollRate  float64       `mapstructure:"poll-rate"`
	MaxEvents int           `mapstructure:"max-events"`

	CSV  bool `mapstructure:"csv"`
	Npy  bool `mapstructure:"npy"`
	Show bool `mapstructure:"show"`

	HTTP string `mapstructure:"http"`
	ZMQ  string `mapstructure:"zmq"`

	CHAddr string `mapstructure:"ch-addr"`
	CHName string `mapstructure:"ch-db"`
	CHUser string `mapstructure:"ch-user"`
	CHPass string `mapstructure:"ch-password"`

	DBHost string `mapstructure:"db-host"`
	DBName string `mapstructure:"db-name"`
	DBUser string `mapstructure:"db-user"`
	DBPass string `mapstructure:"db-password"`
	Record bool   `mapstructure:"db-record"`

	PMon     bool          `mapstructure:"pmon"`
	PMonFreq time.Duration `mapstructure:"pmon-freq"`
	Mail     bool          `mapstructure:"mail"`
}

var defaults = settings{
	Name:   "beam",
	Run:    0,
	OutDir: ".",

	Serial:    nexys.SerialPrefix,
	ClkDiv:    8,
	SPIClkDiv: 255,
	Settle:    3 * time.Second,

	Delay:  50 * time.Millisecond,
	Idle:   20,
	Period: hits.DefaultPeriod,

	Reverse: true,

	CHName: "astropix",
	CHUser: "default",

	DBHost: "localhost",
	DBName: "astropix",
	DBUser: "astropix",

	PMonFreq: 1 * time.Second,
}

// settingsDirs are the directories searched for astropix.yaml.
var settingsDirs = []string{"$HOME/.astropix", "/etc/astropix", "."}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	d := defaults

	fs.String("name", d.Name, "prefix of the output files")
	fs.Int("run", d.Run, "run number")
	fs.String("outdir", d.OutDir, "output directory")
	fs.String("log", d.Log, "rotating log file (default: none)")

	fs.String("asic-cfg", d.Config, "ASIC configuration file (.yaml, .csv)")
	fs.String("db-cfg", d.DBConfig, "name of the ASIC configuration to retrieve from the database")

	fs.String("serial", d.Serial, "serial number prefix of the Nexys board")
	fs.Int("clkdiv", d.ClkDiv, "clock divider of the ASIC configuration pattern")
	fs.Int("spi-clkdiv", d.SPIClkDiv, "SPI clock divider")
	fs.Duration("settle", d.Settle, "settle time after configuration")

	fs.Duration("delay", d.Delay, "delay between an interrupt and the readout")
	fs.Int("idle", d.Idle, "number of idle byte groups clocked out per readout")
	fs.Duration("period", d.Period, "ToT clock period")
	fs.Bool("reverse", d.Reverse, "bit-reverse the readout stream")
	fs.Float64("poll-rate", d.PollRate, "maximum interrupt polling rate in Hz (0: unlimited)")
	fs.Int("max-events", d.MaxEvents, "stop after this number of events (0: unlimited)")

	fs.Bool("csv", d.CSV, "save decoded hits as CSV instead of TSV")
	fs.Bool("npy", d.Npy, "also save decoded hits as a NumPy array")
	fs.Bool("show", d.Show, "display hits while taking data")

	fs.String("http", d.HTTP, "[addr]:port of the status server (default: none)")
	fs.String("zmq", d.ZMQ, "ZMQ endpoint to publish events on (default: none)")

	fs.String("ch-addr", d.CHAddr, "ClickHouse server address (default: none)")
	fs.String("ch-db", d.CHName, "ClickHouse database")
	fs.String("ch-user", d.CHUser, "ClickHouse user")

	fs.String("db-host", d.DBHost, "MySQL server address")
	fs.String("db-name", d.DBName, "MySQL database")
	fs.String("db-user", d.DBUser, "MySQL user")
	fs.Bool("db-record", d.Record, "register the run in the MySQL database")

	fs.Bool("pmon", d.PMon, "enable pmon self-monitoring")
	fs.Duration("pmon-freq", d.PMonFreq, "pmon sampling interval")
	fs.Bool("mail", d.Mail, "mail a summary at the end of the run")

	return fs
}

func setDefaults(v *viper.Viper) {
	d := defaults
	for k, val := range map[string]interface{}{
		"name":        d.Name,
		"run":         d.Run,
		"outdir":      d.OutDir,
		"log":         d.Log,
		"asic-cfg":    d.Config,
		"db-cfg":      d.DBConfig,
		"serial":      d.Serial,
		"clkdiv":      d.ClkDiv,
		"spi-clkdiv":  d.SPIClkDiv,
		"settle":      d.Settle,
		"delay":       d.Delay,
		"idle":        d.Idle,
		"period":      d.Period,
		"reverse":     d.Reverse,
		"poll-rate":   d.PollRate,
		"max-events":  d.MaxEvents,
		"csv":         d.CSV,
		"npy":         d.Npy,
		"show":        d.Show,
		"http":        d.HTTP,
		"zmq":         d.ZMQ,
		"ch-addr":     d.CHAddr,
		"ch-db":       d.CHName,
		"ch-user":     d.CHUser,
		"ch-password": d.CHPass,
		"db-host":     d.DBHost,
		"db-name":     d.DBName,
		"db-user":     d.DBUser,
		"db-password": d.DBPass,
		"db-record":   d.Record,
		"pmon":        d.PMon,
		"pmon-freq":   d.PMonFreq,
		"mail":        d.Mail,
	} {
		v.SetDefault(k, val)
	}
}

// loadSettings reads the settings file from dirs and applies the
// flags explicitly set on fs.
func loadSettings(fs *flag.FlagSet, dirs []string) (settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("astropix")
	v.SetConfigType("yaml")
	for _, dir := range dirs {
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix("astropix")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return settings{}, fmt.Errorf("could not read settings file: %w", err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		v.Set(f.Name, f.Value.String())
	})

	var s settings
	err = v.Unmarshal(&s)
	if err != nil {
		return s, fmt.Errorf("could not decode settings: %w", err)
	}

	err = s.validate()
	if err != nil {
		return s, err
	}
	return s, nil
}

func (s settings) validate() error {
	switch {
	case s.Run < 0:
		return fmt.Errorf("invalid run number %d", s.Run)
	case s.ClkDiv < 1:
		return fmt.Errorf("invalid clock divider %d", s.ClkDiv)
	case s.SPIClkDiv < 1 || s.SPIClkDiv > 0xff:
		return fmt.Errorf("invalid SPI clock divider %d", s.SPIClkDiv)
	case s.Idle < 1:
		return fmt.Errorf("invalid number of idle bytes %d", s.Idle)
	case s.Period <= 0:
		return fmt.Errorf("invalid clock period %v", s.Period)
	case s.MaxEvents < 0:
		return fmt.Errorf("invalid maximum number of events %d", s.MaxEvents)
	case s.Config != "" && s.DBConfig != "":
		return fmt.Errorf("asic-cfg and db-cfg are mutually exclusive")
	}
	return nil
}
