// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_sink

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/zaf/g711"

	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
	"github.com/rapidaai/recorder/pkg/commons"
)

// AudioEncoding selects the sample format of the rendered WAV file.
type AudioEncoding int

const (
	EncodingLinear16 AudioEncoding = iota
	EncodingMuLaw
	EncodingALaw
)

func (e AudioEncoding) String() string {
	switch e {
	case EncodingLinear16:
		return "linear16"
	case EncodingMuLaw:
		return "mulaw"
	case EncodingALaw:
		return "alaw"
	default:
		return "unknown"
	}
}

// ParseAudioEncoding maps a config value to an AudioEncoding.
func ParseAudioEncoding(s string) (AudioEncoding, error) {
	switch s {
	case "", "linear16", "pcm":
		return EncodingLinear16, nil
	case "mulaw", "pcmu":
		return EncodingMuLaw, nil
	case "alaw", "pcma":
		return EncodingALaw, nil
	}
	return 0, fmt.Errorf("unknown audio encoding %q", s)
}

const (
	bytesPerLinearSample = 2 // LINEAR16 input
	wavHeaderSize        = 44

	wavFormatPCM   = 1
	wavFormatALaw  = 6
	wavFormatMuLaw = 7

	// only outputs that cannot seek are held in memory until MarkFinished
	defaultMaxBufferedBytes = 64 << 20
	silenceBlock            = 32 << 10
)

var (
	ErrSinkFinished   = errors.New("sink already finished")
	ErrSinkBufferFull = errors.New("wav buffer limit reached")
)

// WAVSink writes LINEAR16 audio samples into one WAV file. Each sample is
// placed at its (pause-corrected) timestamp so that capture jitter does not
// stretch or shrink the track; gaps are silence and overlaps continue from
// the previous chunk.
//
// Audio is streamed to an io.WriteSeeker as it arrives and the RIFF sizes are
// patched on MarkFinished. Any other writer gets the whole file on
// MarkFinished, buffered up to a byte limit.
type WAVSink struct {
	mu     sync.Mutex
	logger commons.Logger
	out    io.Writer
	seeker io.WriteSeeker

	sampleRate  uint32
	channels    uint16
	encoding    AudioEncoding
	maxBuffered int

	buffered   bytes.Buffer
	headerDone bool
	carry      []byte
	dataBytes  int
	audioBytes int
	hasBase    bool
	base       time.Duration
	cursor     int
	finished   bool
	err        error
}

type WAVOption func(*WAVSink)

func WithSampleRate(rate uint32) WAVOption {
	return func(s *WAVSink) { s.sampleRate = rate }
}

func WithChannels(channels uint16) WAVOption {
	return func(s *WAVSink) { s.channels = channels }
}

func WithEncoding(encoding AudioEncoding) WAVOption {
	return func(s *WAVSink) { s.encoding = encoding }
}

// WithMaxBufferedBytes bounds the encoded audio held for a writer that cannot
// seek. Writes past it fail with ErrSinkBufferFull.
func WithMaxBufferedBytes(n int) WAVOption {
	return func(s *WAVSink) { s.maxBuffered = n }
}

// NewWAVSink writes into out. If out is an io.Closer it is closed by
// MarkFinished.
func NewWAVSink(out io.Writer, logger commons.Logger, opts ...WAVOption) *WAVSink {
	s := &WAVSink{
		logger:      logger,
		out:         out,
		sampleRate:  16000,
		channels:    1,
		encoding:    EncodingLinear16,
		maxBuffered: defaultMaxBufferedBytes,
	}
	if ws, ok := out.(io.WriteSeeker); ok {
		s.seeker = ws
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WAVSink) bytesPerSecond() int {
	return int(s.sampleRate) * int(s.channels) * bytesPerLinearSample
}

// durationBytes converts a duration to a frame-aligned byte count.
func (s *WAVSink) durationBytes(d time.Duration) int {
	raw := int(math.Round(d.Seconds() * float64(s.bytesPerSecond())))
	frameSize := bytesPerLinearSample * int(s.channels)
	return (raw / frameSize) * frameSize
}

func (s *WAVSink) IsReadyForMoreData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.finished && s.err == nil
}

func (s *WAVSink) Write(sample internal_type.Sample) error {
	if len(sample.Data) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return ErrSinkFinished
	}
	if s.err != nil {
		return s.err
	}

	if !s.hasBase {
		s.hasBase = true
		s.base = sample.Timestamp
	}
	offset := s.durationBytes(sample.Timestamp - s.base)
	if offset < s.cursor {
		offset = s.cursor
	}

	if err := s.silenceLocked(offset - s.cursor); err != nil {
		return s.failLocked(err)
	}
	if err := s.emitLocked(sample.Data); err != nil {
		return s.failLocked(err)
	}
	s.cursor = offset + len(sample.Data)
	s.audioBytes += len(sample.Data)
	return nil
}

func (s *WAVSink) failLocked(err error) error {
	s.err = err
	s.logger.Errorf("WAV sink stopped accepting audio: %v", err)
	return err
}

func (s *WAVSink) silenceLocked(n int) error {
	if n <= 0 {
		return nil
	}
	block := make([]byte, min(n, silenceBlock))
	for n > 0 {
		size := min(n, len(block))
		if err := s.emitLocked(block[:size]); err != nil {
			return err
		}
		n -= size
	}
	return nil
}

// emitLocked encodes LINEAR16 pcm and hands it to the output. An odd trailing
// byte is carried into the next call so companding always sees whole samples.
func (s *WAVSink) emitLocked(pcm []byte) error {
	if len(s.carry) > 0 {
		pcm = append(s.carry, pcm...)
		s.carry = nil
	}
	if len(pcm)%bytesPerLinearSample != 0 {
		s.carry = []byte{pcm[len(pcm)-1]}
		pcm = pcm[:len(pcm)-1]
	}
	if len(pcm) == 0 {
		return nil
	}
	data := s.encode(pcm)

	if s.seeker == nil {
		if s.buffered.Len()+len(data) > s.maxBuffered {
			return fmt.Errorf("%w: %d bytes", ErrSinkBufferFull, s.maxBuffered)
		}
		s.buffered.Write(data)
		s.dataBytes += len(data)
		return nil
	}
	if !s.headerDone {
		if err := s.writeHeaderLocked(); err != nil {
			return err
		}
	}
	if _, err := s.out.Write(data); err != nil {
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	s.dataBytes += len(data)
	return nil
}

func (s *WAVSink) encode(pcm []byte) []byte {
	switch s.encoding {
	case EncodingMuLaw:
		return g711.EncodeUlaw(pcm)
	case EncodingALaw:
		return g711.EncodeAlaw(pcm)
	}
	// copy to avoid caller mutations of buffered data
	if s.seeker == nil {
		return append([]byte(nil), pcm...)
	}
	return pcm
}

// writeHeaderLocked writes a header sized for the audio emitted so far.
func (s *WAVSink) writeHeaderLocked() error {
	header, err := s.createHeader(s.dataBytes)
	if err != nil {
		return err
	}
	if _, err := s.out.Write(header); err != nil {
		return fmt.Errorf("failed to write wav header: %w", err)
	}
	s.headerDone = true
	return nil
}

// MarkFinished completes the WAV file. Calling it again is a no-op.
func (s *WAVSink) MarkFinished() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil
	}
	s.finished = true
	s.carry = nil

	s.logger.Infof("WAV render: audio=%d (%.2fs), total=%d (%.2fs), encoding=%s",
		s.audioBytes, float64(s.audioBytes)/float64(s.bytesPerSecond()),
		s.cursor, float64(s.cursor)/float64(s.bytesPerSecond()),
		s.encoding)

	if err := s.completeLocked(); err != nil {
		return err
	}
	if closer, ok := s.out.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close wav output: %w", err)
		}
	}
	return s.err
}

func (s *WAVSink) completeLocked() error {
	if s.seeker == nil {
		if err := s.writeHeaderLocked(); err != nil {
			return err
		}
		if _, err := s.buffered.WriteTo(s.out); err != nil {
			return fmt.Errorf("failed to write wav file: %w", err)
		}
		return nil
	}
	if !s.headerDone {
		return s.writeHeaderLocked()
	}
	if err := s.patchLocked(4, uint32(36+s.dataBytes)); err != nil {
		return err
	}
	if err := s.patchLocked(40, uint32(s.dataBytes)); err != nil {
		return err
	}
	if _, err := s.seeker.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek wav output: %w", err)
	}
	return nil
}

func (s *WAVSink) patchLocked(offset int64, size uint32) error {
	if _, err := s.seeker.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek wav output: %w", err)
	}
	if err := binary.Write(s.seeker, binary.LittleEndian, size); err != nil {
		return fmt.Errorf("failed to patch wav header: %w", err)
	}
	return nil
}

// Duration is the written track length.
func (s *WAVSink) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(int64(s.cursor) * int64(time.Second) / int64(s.bytesPerSecond()))
}

func (s *WAVSink) createHeader(dataLen int) ([]byte, error) {
	format := uint16(wavFormatPCM)
	bitsPerSample := uint16(16)
	switch s.encoding {
	case EncodingMuLaw:
		format, bitsPerSample = wavFormatMuLaw, 8
	case EncodingALaw:
		format, bitsPerSample = wavFormatALaw, 8
	}
	blockAlign := s.channels * bitsPerSample / 8
	byteRate := s.sampleRate * uint32(blockAlign)

	var buf bytes.Buffer
	buf.Grow(wavHeaderSize)
	buf.WriteString("RIFF")
	if err := binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen)); err != nil {
		return nil, err
	}
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	fmtChunk := []interface{}{
		uint32(16),
		format,
		s.channels,
		s.sampleRate,
		byteRate,
		blockAlign,
		bitsPerSample,
	}
	for _, f := range fmtChunk {
		if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}

	buf.WriteString("data")
	if err := binary.Write(&buf, binary.LittleEndian, uint32(dataLen)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
