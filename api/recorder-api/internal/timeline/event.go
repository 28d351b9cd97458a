// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_timeline

import (
	"fmt"
	"time"
)

type EventKind int

const (
	EventStart EventKind = iota
	EventPause
	EventResume
	EventStop
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Event is one control call recorded on a timeline. It is never modified
// after being appended.
type Event struct {
	Kind      EventKind
	Timestamp time.Duration
}

func (e Event) String() string {
	switch e.Kind {
	case EventStart:
		return fmt.Sprintf("%.3fs: started", e.Timestamp.Seconds())
	case EventPause:
		return fmt.Sprintf("%.3fs: paused", e.Timestamp.Seconds())
	case EventResume:
		return fmt.Sprintf("%.3fs: resumed", e.Timestamp.Seconds())
	case EventStop:
		return fmt.Sprintf("%.3fs: stopped", e.Timestamp.Seconds())
	default:
		return fmt.Sprintf("%.3fs: unknown", e.Timestamp.Seconds())
	}
}

// Decision is the outcome of evaluating a sample timestamp against a timeline.
type Decision int

const (
	Accepted Decision = iota
	RejectedBeforeStart
	RejectedPaused
	RejectedFinished
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case RejectedBeforeStart:
		return "rejected_before_start"
	case RejectedPaused:
		return "rejected_paused"
	case RejectedFinished:
		return "rejected_finished"
	default:
		return "unknown"
	}
}

// State is the lifecycle position of a timeline, derived from its events.
//
//	NotStarted -> Recording -> (Paused <-> Recording)* -> Stopping -> Finished
//
// Stopping is the window between stop() and the first later sample.
type State int

const (
	StateNotStarted State = iota
	StateRecording
	StatePaused
	StateStopping
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}
