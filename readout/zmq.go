// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package readout

import (
	"encoding/binary"
	"fmt"

	"github.com/go-lpc/astropix/hits"
	zmq "github.com/pebbe/zmq4"
)

// ZMQ topics published by the ZMQ sink.
const (
	TopicRaw  = "RAW"
	TopicHits = "HITS"
)

// ZMQ publishes readout events on a ZeroMQ PUB socket.
//
// Every event is sent as two messages, each made of a topic frame and
// a payload frame:
//  - RAW:  index (u32), unix time in ns (i64), readout stream;
//  - HITS: index (u32), unix time in ns (i64), then 5-byte frames.
type ZMQ struct {
	ctx *zmq.Context
	pub *zmq.Socket
}

// NewZMQ binds a PUB socket to the endpoint (e.g. "tcp://*:5556").
func NewZMQ(endpoint string) (*ZMQ, error) {
	ctx, err := zmq.NewContext()
	if err != nil {
		return nil, fmt.Errorf("readout: could not create ZMQ context: %w", err)
	}
	pub, err := ctx.NewSocket(zmq.PUB)
	if err != nil {
		_ = ctx.Term()
		return nil, fmt.Errorf("readout: could not create ZMQ socket: %w", err)
	}
	err = pub.Bind(endpoint)
	if err != nil {
		_ = pub.Close()
		_ = ctx.Term()
		return nil, fmt.Errorf("readout: could not bind ZMQ socket to %q: %w", endpoint, err)
	}
	return &ZMQ{ctx: ctx, pub: pub}, nil
}

func (s *ZMQ) WriteEvent(evt Event) error {
	raw, hs := EncodeEvent(evt)
	_, err := s.pub.SendMessage(TopicRaw, raw)
	if err != nil {
		return fmt.Errorf("readout: could not publish raw event %d: %w", evt.Index, err)
	}
	_, err = s.pub.SendMessage(TopicHits, hs)
	if err != nil {
		return fmt.Errorf("readout: could not publish hits of event %d: %w", evt.Index, err)
	}
	return nil
}

func (s *ZMQ) Flush() error { return nil }

// Close closes the socket and its context.
func (s *ZMQ) Close() error {
	err := s.pub.Close()
	if err != nil {
		return fmt.Errorf("readout: could not close ZMQ socket: %w", err)
	}
	err = s.ctx.Term()
	if err != nil {
		return fmt.Errorf("readout: could not terminate ZMQ context: %w", err)
	}
	return nil
}

const zmqHdrLen = 12

// EncodeEvent encodes the readout stream and the hits of an event, each
// prefixed by the event index (u32) and unix time in ns (i64), big-endian.
// Hits are re-encoded as 5-byte frames.
func EncodeEvent(evt Event) (raw, hs []byte) {
	var hdr [zmqHdrLen]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(evt.Index))
	binary.BigEndian.PutUint64(hdr[4:12], uint64(evt.Time.UnixNano()))

	raw = make([]byte, 0, zmqHdrLen+len(evt.Raw))
	raw = append(raw, hdr[:]...)
	raw = append(raw, evt.Raw...)

	hs = make([]byte, 0, zmqHdrLen+len(evt.Records)*hits.FrameSize)
	hs = append(hs, hdr[:]...)
	for _, rec := range evt.Records {
		f := encodeHit(rec.Hit)
		hs = append(hs, f[:]...)
	}
	return raw, hs
}

// encodeHit re-encodes a decoded hit into its 5-byte frame.
// The reserved bit of the location byte is lost.
func encodeHit(h hits.Hit) hits.Frame {
	var col uint8
	if h.IsColumn {
		col = 1 << 7
	}
	return hits.Frame{
		h.ChipID<<3 | h.Payload&0x7,
		col | h.Location&0x3f,
		h.Timestamp,
		h.ToTMSB & 0xf,
		h.ToTLSB,
	}
}
