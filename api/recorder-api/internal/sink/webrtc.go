// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_sink

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
	"github.com/rapidaai/recorder/pkg/commons"
)

// WebRTCSink forwards written samples to a local WebRTC track so a recording
// can be monitored live. The caller adds Track() to a peer connection.
type WebRTCSink struct {
	mu       sync.Mutex
	logger   commons.Logger
	track    *webrtc.TrackLocalStaticSample
	hasLast  bool
	last     time.Duration
	finished bool
}

// NewWebRTCSink creates an Opus track for audio and a VP8 track for video.
func NewWebRTCSink(kind internal_type.TrackKind, streamID string, logger commons.Logger) (*WebRTCSink, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	if kind == internal_type.TrackKindAudio {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	track, err := webrtc.NewTrackLocalStaticSample(capability, kind.String(), streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to create local %s track: %w", kind, err)
	}
	return &WebRTCSink{logger: logger, track: track}, nil
}

func (s *WebRTCSink) Track() *webrtc.TrackLocalStaticSample {
	return s.track
}

func (s *WebRTCSink) IsReadyForMoreData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.finished
}

func (s *WebRTCSink) Write(sample internal_type.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return ErrSinkFinished
	}
	duration := sample.Duration
	if duration <= 0 && s.hasLast && sample.Timestamp > s.last {
		duration = sample.Timestamp - s.last
	}
	s.hasLast = true
	s.last = sample.Timestamp

	// an unbound track discards samples without error
	if err := s.track.WriteSample(media.Sample{Data: sample.Data, Duration: duration}); err != nil {
		return fmt.Errorf("failed to write sample to %s track: %w", s.track.Kind(), err)
	}
	return nil
}

func (s *WebRTCSink) MarkFinished() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil
	}
	s.finished = true
	s.logger.Debugf("webrtc %s track finished", s.track.Kind())
	return nil
}
