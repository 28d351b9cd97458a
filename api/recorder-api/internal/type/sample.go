// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import (
	"fmt"
	"strings"
	"time"
)

// TrackKind identifies the media carried by a track.
type TrackKind int

const (
	TrackKindVideo TrackKind = iota
	TrackKindAudio
)

func (k TrackKind) String() string {
	switch k {
	case TrackKindVideo:
		return "video"
	case TrackKindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// ParseTrackKind maps "video"/"audio" to a TrackKind.
func ParseTrackKind(s string) (TrackKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video":
		return TrackKindVideo, nil
	case "audio":
		return TrackKindAudio, nil
	}
	return 0, fmt.Errorf("unknown track kind %q", s)
}

// Sample is one captured unit of media: a video frame or an audio chunk.
// Timestamp is the presentation time on the session clock; it may be negative
// for pre-roll samples captured before the recording started.
type Sample struct {
	Data      []byte
	Timestamp time.Duration
	Duration  time.Duration
}

// WithTimestamp returns a copy of the sample re-stamped at ts. The payload is
// shared, not copied.
func (s Sample) WithTimestamp(ts time.Duration) Sample {
	s.Timestamp = ts
	return s
}
