// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_sink

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
	"github.com/rapidaai/recorder/pkg/commons"
)

const (
	rtpHeaderSize = 12
	defaultMTU    = 1200
)

// rtpCodec describes how one codec is payloaded.
type rtpCodec struct {
	name        string
	payloadType uint8
	clockRate   uint32
	marker      bool
	payloader   func() rtp.Payloader
}

var rtpCodecs = map[string]rtpCodec{
	"opus": {"opus", 111, 48000, true, func() rtp.Payloader { return &codecs.OpusPayloader{} }},
	"pcmu": {"pcmu", 0, 8000, true, func() rtp.Payloader { return &codecs.G711Payloader{} }},
	"pcma": {"pcma", 8, 8000, true, func() rtp.Payloader { return &codecs.G711Payloader{} }},
	"h264": {"h264", 102, 90000, false, func() rtp.Payloader { return &codecs.H264Payloader{} }},
	"vp8":  {"vp8", 96, 90000, false, func() rtp.Payloader { return &codecs.VP8Payloader{} }},
}

// RTPSink packetizes encoded samples into RTP and writes each packet to out
// prefixed with its big-endian uint16 length. The RTP timestamp of every
// packet is derived from the sample timestamp, so pauses removed upstream
// never show up as gaps in the stream.
type RTPSink struct {
	mu        sync.Mutex
	logger    commons.Logger
	out       io.Writer
	buf       *bufio.Writer
	codec     rtpCodec
	payloader rtp.Payloader
	sequencer rtp.Sequencer
	ssrc      uint32
	mtu       uint16
	hasBase   bool
	base      time.Duration
	packets   uint64
	finished  bool
}

type RTPOption func(*RTPSink)

func WithSSRC(ssrc uint32) RTPOption {
	return func(s *RTPSink) { s.ssrc = ssrc }
}

func WithMTU(mtu uint16) RTPOption {
	return func(s *RTPSink) { s.mtu = mtu }
}

func WithPayloadType(pt uint8) RTPOption {
	return func(s *RTPSink) { s.codec.payloadType = pt }
}

// NewRTPSink supports opus, pcmu, pcma, h264 and vp8.
func NewRTPSink(out io.Writer, codec string, logger commons.Logger, opts ...RTPOption) (*RTPSink, error) {
	c, ok := rtpCodecs[strings.ToLower(codec)]
	if !ok {
		return nil, fmt.Errorf("unsupported rtp codec %q", codec)
	}
	s := &RTPSink{
		logger:    logger,
		out:       out,
		buf:       bufio.NewWriter(out),
		codec:     c,
		payloader: c.payloader(),
		sequencer: rtp.NewRandomSequencer(),
		ssrc:      rand.Uint32(),
		mtu:       defaultMTU,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mtu <= rtpHeaderSize {
		return nil, fmt.Errorf("rtp mtu %d is too small", s.mtu)
	}
	return s, nil
}

func (s *RTPSink) IsReadyForMoreData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.finished
}

func (s *RTPSink) rtpTimestamp(ts time.Duration) uint32 {
	if ts < s.base {
		ts = s.base
	}
	return uint32(uint64(math.Round((ts-s.base).Seconds()*float64(s.codec.clockRate))) & 0xffffffff)
}

func (s *RTPSink) Write(sample internal_type.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return ErrSinkFinished
	}
	if len(sample.Data) == 0 {
		return nil
	}
	if !s.hasBase {
		s.hasBase = true
		s.base = sample.Timestamp
	}

	payloads := s.payloader.Payload(s.mtu-rtpHeaderSize, sample.Data)
	timestamp := s.rtpTimestamp(sample.Timestamp)
	for i, payload := range payloads {
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         s.codec.marker || i == len(payloads)-1,
				PayloadType:    s.codec.payloadType,
				SequenceNumber: s.sequencer.NextSequenceNumber(),
				Timestamp:      timestamp,
				SSRC:           s.ssrc,
			},
			Payload: payload,
		}
		raw, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal rtp packet: %w", err)
		}
		if err := binary.Write(s.buf, binary.BigEndian, uint16(len(raw))); err != nil {
			return err
		}
		if _, err := s.buf.Write(raw); err != nil {
			return err
		}
		s.packets++
	}
	return nil
}

// MarkFinished flushes buffered packets and closes out when it is an
// io.Closer. Calling it again is a no-op.
func (s *RTPSink) MarkFinished() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil
	}
	s.finished = true
	s.logger.Infof("RTP stream finished: codec=%s ssrc=%d packets=%d", s.codec.name, s.ssrc, s.packets)
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush rtp stream: %w", err)
	}
	if closer, ok := s.out.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// ReadRTPStream decodes a stream written by RTPSink.
func ReadRTPStream(r io.Reader) ([]*rtp.Packet, error) {
	var out []*rtp.Packet
	br := bufio.NewReader(r)
	for {
		var size uint16
		if err := binary.Read(br, binary.BigEndian, &size); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		raw := make([]byte, size)
		if _, err := io.ReadFull(br, raw); err != nil {
			return out, err
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(raw); err != nil {
			return out, fmt.Errorf("failed to unmarshal rtp packet: %w", err)
		}
		out = append(out, pkt)
	}
}
