// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_track

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
)

// Stats counts what happened to the samples offered to a track.
type Stats struct {
	Received            uint64 `json:"received"`
	Accepted            uint64 `json:"accepted"`
	Written             uint64 `json:"written"`
	RejectedBeforeStart uint64 `json:"rejectedBeforeStart"`
	RejectedPaused      uint64 `json:"rejectedPaused"`
	RejectedFinished    uint64 `json:"rejectedFinished"`
	NotReady            uint64 `json:"notReady"`
	WriteFailed         uint64 `json:"writeFailed"`
	DroppedAfterFinish  uint64 `json:"droppedAfterFinish"`
}

type counters struct {
	received            atomic.Uint64
	accepted            atomic.Uint64
	written             atomic.Uint64
	rejectedBeforeStart atomic.Uint64
	rejectedPaused      atomic.Uint64
	rejectedFinished    atomic.Uint64
	notReady            atomic.Uint64
	writeFailed         atomic.Uint64
	droppedAfterFinish  atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Received:            c.received.Load(),
		Accepted:            c.accepted.Load(),
		Written:             c.written.Load(),
		RejectedBeforeStart: c.rejectedBeforeStart.Load(),
		RejectedPaused:      c.rejectedPaused.Load(),
		RejectedFinished:    c.rejectedFinished.Load(),
		NotReady:            c.notReady.Load(),
		WriteFailed:         c.writeFailed.Load(),
		DroppedAfterFinish:  c.droppedAfterFinish.Load(),
	}
}

// Summary describes a finalized track.
type Summary struct {
	Kind           internal_type.TrackKind
	TargetDuration time.Duration
	ActualDuration time.Duration
	// Difference is ActualDuration - TargetDuration; negative means shorter.
	Difference time.Duration
	HasFirst   bool
	First      time.Duration
	Last       time.Duration
	Empty      bool
	Forced     bool
	Stats      Stats
	FinishErr  error
}

// Err reports an empty track and any sink finalization failure.
func (s Summary) Err() error {
	var errs []error
	if s.Empty {
		errs = append(errs, fmt.Errorf("%s: %w", s.Kind, ErrEmptyTrack))
	}
	if s.FinishErr != nil {
		errs = append(errs, fmt.Errorf("%s: %w", s.Kind, s.FinishErr))
	}
	return errors.Join(errs...)
}
