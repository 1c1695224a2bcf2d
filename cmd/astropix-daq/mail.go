// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"time"

	mail "gopkg.in/gomail.v2"
)

type mailer struct {
	usr  string
	pwd  string
	srv  string
	port int
	tgts []string
}

// newMailer returns a mailer configured from the MAIL_* environment
// variables.
func newMailer(getenv func(string) string) (mailer, error) {
	m := mailer{
		usr: getenv("MAIL_USERNAME"),
		pwd: getenv("MAIL_PASSWORD"),
		srv: getenv("MAIL_SERVER"),
	}
	if v := getenv("MAIL_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return m, fmt.Errorf("invalid MAIL_PORT value %q: %w", v, err)
		}
		m.port = port
	}
	for _, tgt := range strings.Split(getenv("MAIL_TGTS"), ",") {
		tgt = strings.TrimSpace(tgt)
		if tgt != "" {
			m.tgts = append(m.tgts, tgt)
		}
	}

	if m.usr == "" || m.pwd == "" || m.srv == "" || m.port == 0 || len(m.tgts) == 0 {
		return m, fmt.Errorf("missing mail credentials")
	}
	return m, nil
}

func (m mailer) send(subject, body string) error {
	msg := mail.NewMessage()
	msg.SetHeader("From", m.usr)
	msg.SetHeader("Bcc", m.tgts...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dial := mail.NewDialer(m.srv, m.port, m.usr, m.pwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		return fmt.Errorf("could not send mail: %w", err)
	}
	return nil
}

func mailSubject(sum summary) string {
	status := "done"
	if sum.Err != nil {
		status = "FAILED"
	}
	return fmt.Sprintf("[astropix-daq] run %d (%s): %s", sum.Run, sum.ID, status)
}

func mailBody(sum summary) string {
	o := new(strings.Builder)
	fmt.Fprintf(o, "run:       %d\n", sum.Run)
	fmt.Fprintf(o, "id:        %s\n", sum.ID)
	if sum.Version != "" {
		fmt.Fprintf(o, "version:   %s\n", sum.Version)
	}
	fmt.Fprintf(o, "config:    %s\n", sum.Config)
	fmt.Fprintf(o, "start:     %s\n", sum.Start.UTC().Format(time.RFC3339))
	fmt.Fprintf(o, "stop:      %s\n", sum.Stop.UTC().Format(time.RFC3339))
	fmt.Fprintf(o, "duration:  %v\n", sum.Stop.Sub(sum.Start).Round(time.Second))
	fmt.Fprintf(o, "events:    %d\n", sum.Stats.Events)
	fmt.Fprintf(o, "hits:      %d\n", sum.Stats.Hits)
	fmt.Fprintf(o, "malformed: %d\n", sum.Stats.Malformed)
	fmt.Fprintf(o, "bytes:     %d\n", sum.Stats.Bytes)
	if len(sum.Files) > 0 {
		fmt.Fprintf(o, "files:\n")
		for _, fname := range sum.Files {
			fmt.Fprintf(o, " - %s\n", fname)
		}
	}
	if sum.Err != nil {
		fmt.Fprintf(o, "error:     %+v\n", sum.Err)
	}
	return o.String()
}
