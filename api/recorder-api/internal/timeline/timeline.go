// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_timeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
	"github.com/rapidaai/recorder/pkg/commons"
)

var (
	ErrClockUnavailable  = errors.New("clock unavailable")
	ErrInvalidEventOrder = errors.New("invalid event order")
)

// TrackTimeline is the event log of one track together with the state derived
// from the samples evaluated against it.
//
// Samples passed to IsTimestampWithinTimeline are assumed to arrive in
// non-decreasing timestamp order. Once a sample arrives after stop() the
// timeline is marked finished and never accepts anything again.
//
// All methods are safe for concurrent use: control calls and sample evaluation
// are serialized on one mutex per timeline.
type TrackTimeline struct {
	mu     sync.Mutex
	kind   internal_type.TrackKind
	clock  Clock
	logger commons.Logger
	strict bool

	events   []Event
	finished bool
	latency  time.Duration

	hasFirst bool
	first    time.Duration
	hasLast  bool
	last     time.Duration

	// coordinator is set when this timeline is the master of a Coordinator.
	coordinator *Coordinator
	// follower is set when this timeline was added to a Coordinator.
	follower bool
}

type Option func(*TrackTimeline)

func WithLogger(logger commons.Logger) Option {
	return func(tl *TrackTimeline) {
		if logger != nil {
			tl.logger = logger
		}
	}
}

// WithStrictEventOrder makes a non-monotonic control call panic instead of
// being dropped. Meant for development builds and tests.
func WithStrictEventOrder(strict bool) Option {
	return func(tl *TrackTimeline) { tl.strict = strict }
}

func NewTrackTimeline(kind internal_type.TrackKind, clock Clock, opts ...Option) (*TrackTimeline, error) {
	if clock == nil {
		return nil, fmt.Errorf("%s timeline: %w", kind, ErrClockUnavailable)
	}
	tl := &TrackTimeline{
		kind:   kind,
		clock:  clock,
		logger: commons.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(tl)
	}
	return tl, nil
}

func (tl *TrackTimeline) Kind() internal_type.TrackKind {
	return tl.kind
}

// Start requests the timeline to begin at the current clock time.
func (tl *TrackTimeline) Start() error {
	return tl.appendEvent(EventStart)
}

// Pause opens a pause window at the current clock time.
func (tl *TrackTimeline) Pause() error {
	return tl.appendEvent(EventPause)
}

// Resume closes the open pause window at the current clock time.
func (tl *TrackTimeline) Resume() error {
	return tl.appendEvent(EventResume)
}

// Stop requests the timeline to end at the current clock time. The timeline
// only finishes once a sample later than this point is evaluated.
func (tl *TrackTimeline) Stop() error {
	return tl.appendEvent(EventStop)
}

func (tl *TrackTimeline) appendEvent(kind EventKind) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	now := tl.clock.Now()
	if n := len(tl.events); n > 0 && now < tl.events[n-1].Timestamp {
		prev := tl.events[n-1]
		if tl.strict {
			panic(fmt.Sprintf("%s timeline: %s at %v precedes %s at %v", tl.kind, kind, now, prev.Kind, prev.Timestamp))
		}
		tl.logger.Errorw("Dropping out-of-order timeline event",
			"track", tl.kind.String(),
			"event", kind.String(),
			"timestamp", now,
			"previous_event", prev.Kind.String(),
			"previous_timestamp", prev.Timestamp)
		return fmt.Errorf("%s timeline: %s at %v precedes %s at %v: %w",
			tl.kind, kind, now, prev.Kind, prev.Timestamp, ErrInvalidEventOrder)
	}

	if reason := tl.misuseLocked(kind); reason != "" {
		tl.logger.Warnw("Suspicious timeline control call",
			"track", tl.kind.String(),
			"event", kind.String(),
			"reason", reason)
	}

	tl.events = append(tl.events, Event{Kind: kind, Timestamp: now})
	tl.logger.Infof("%s timeline: %s requested at %.3fs", tl.kind, kind, now.Seconds())
	return nil
}

// misuseLocked describes why appending kind is probably a caller bug. Such
// events are still appended; the walk ignores them.
func (tl *TrackTimeline) misuseLocked(kind EventKind) string {
	started, paused, stopped := tl.controlStateLocked()
	switch {
	case stopped && kind == EventStop:
		return "stop called twice"
	case stopped:
		return "control call after stop"
	}
	switch kind {
	case EventStart:
		if started {
			return "start called twice"
		}
	case EventPause:
		if !started {
			return "pause before start"
		}
		if paused {
			return "pause while already paused"
		}
	case EventResume:
		if !paused {
			return "resume without pause"
		}
	case EventStop:
		if !started {
			return "stop before start"
		}
	}
	return ""
}

func (tl *TrackTimeline) controlStateLocked() (started, paused, stopped bool) {
	for _, ev := range tl.events {
		switch ev.Kind {
		case EventStart:
			started = true
		case EventPause:
			paused = true
		case EventResume:
			paused = false
		case EventStop:
			return started, paused, true
		}
	}
	return started, paused, false
}

// IsTimestampWithinTimeline decides whether a sample captured at timestamp
// belongs to the recording. Accepted samples update the first and last
// written timestamps; the first sample after stop() finishes the timeline.
func (tl *TrackTimeline) IsTimestampWithinTimeline(timestamp time.Duration) Decision {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.evaluateLocked(timestamp)
}

// Evaluate is IsTimestampWithinTimeline plus the pause offset to subtract
// from an accepted sample, computed under the same lock so that a concurrent
// control call cannot slip in between.
func (tl *TrackTimeline) Evaluate(timestamp time.Duration) (Decision, time.Duration) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	decision := tl.evaluateLocked(timestamp)
	if decision != Accepted {
		return decision, 0
	}
	return decision, tl.pauseOffsetLocked(timestamp)
}

func (tl *TrackTimeline) evaluateLocked(timestamp time.Duration) Decision {
	tl.latency = tl.clock.Now() - timestamp

	decision := tl.decideLocked(timestamp)
	if decision == Accepted {
		if !tl.hasFirst {
			tl.hasFirst = true
			tl.first = timestamp
			tl.logger.Infof("%s timeline: first timestamp %.3fs", tl.kind, timestamp.Seconds())
		}
		if !tl.hasLast || timestamp > tl.last {
			tl.hasLast = true
			tl.last = timestamp
		}
	}
	return decision
}

func (tl *TrackTimeline) decideLocked(timestamp time.Duration) Decision {
	if tl.finished {
		return RejectedFinished
	}

	startSeen := false
	paused := false
walk:
	for _, ev := range tl.events {
		switch ev.Kind {
		case EventStart:
			if startSeen {
				continue
			}
			startSeen = true
			if timestamp < ev.Timestamp {
				return tl.beforeStartLocked(timestamp)
			}
		case EventPause:
			// a sample captured before pause() but delivered after it still
			// falls into the window: only a later resume() can let it through
			paused = true
		case EventResume:
			if paused && timestamp < ev.Timestamp {
				return RejectedPaused
			}
			paused = false
		case EventStop:
			if timestamp <= ev.Timestamp {
				// later events are all after this stop, hence after timestamp
				break walk
			}
			if !paused && tl.coordinator != nil && tl.coordinator.extendsStop(timestamp) {
				return Accepted
			}
			tl.finishLocked(timestamp, ev.Timestamp)
			return RejectedFinished
		}
	}

	if !startSeen {
		return RejectedBeforeStart
	}
	if paused {
		return RejectedPaused
	}
	return Accepted
}

// beforeStartLocked handles a sample that predates start(). Every timeline
// accepts exactly one such sample so that the recording does not open on a
// blank frame. A master timeline additionally extends back as far as its
// earliest follower.
func (tl *TrackTimeline) beforeStartLocked(timestamp time.Duration) Decision {
	if !tl.hasFirst {
		return Accepted
	}
	if tl.coordinator != nil && tl.coordinator.extendsStart(timestamp) {
		return Accepted
	}
	return RejectedBeforeStart
}

func (tl *TrackTimeline) finishLocked(timestamp, stopTimestamp time.Duration) {
	tl.finished = true
	tl.logger.Infof("%s timeline: last timestamp arrived at %.3fs (%.3fs after stop()), timeline is now finished",
		tl.kind, timestamp.Seconds(), (timestamp - stopTimestamp).Seconds())
	tl.logger.Debugf("%s timeline events:\n%s", tl.kind, tl.describeLocked())
}

// ForceFinish marks the timeline finished without waiting for a post-stop
// sample. It reports whether this call performed the transition.
func (tl *TrackTimeline) ForceFinish() bool {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.finished {
		return false
	}
	tl.finished = true
	tl.logger.Warnf("%s timeline: force finished, no sample arrived after stop()", tl.kind)
	tl.logger.Debugf("%s timeline events:\n%s", tl.kind, tl.describeLocked())
	return true
}

// Pauses returns the duration of every pause window. A window that is still
// open counts up to the current clock time and is recomputed on every call.
// Once stop() is recorded an open window ends at the stop timestamp instead,
// so the duration of a recording stopped while paused stops growing; events
// after the first stop are ignored.
func (tl *TrackTimeline) Pauses() []time.Duration {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.pausesLocked()
}

func (tl *TrackTimeline) pausesLocked() []time.Duration {
	var result []time.Duration
	inPause := false
	var pauseStart time.Duration
	for _, ev := range tl.events {
		switch ev.Kind {
		case EventPause:
			if !inPause {
				inPause = true
				pauseStart = ev.Timestamp
			}
		case EventResume:
			if inPause {
				result = append(result, ev.Timestamp-pauseStart)
			}
			inPause = false
		case EventStop:
			if inPause {
				result = append(result, ev.Timestamp-pauseStart)
			}
			return result
		}
	}
	if inPause {
		result = append(result, tl.clock.Now()-pauseStart)
	}
	return result
}

func (tl *TrackTimeline) TotalPauseDuration() time.Duration {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.totalPauseLocked()
}

func (tl *TrackTimeline) totalPauseLocked() time.Duration {
	var total time.Duration
	for _, p := range tl.pausesLocked() {
		total += p
	}
	return total
}

// PauseOffsetAt is the amount to subtract from a sample captured at timestamp:
// the sum of pause windows that were closed at or before it. For samples that
// arrive after every pause it equals TotalPauseDuration.
func (tl *TrackTimeline) PauseOffsetAt(timestamp time.Duration) time.Duration {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.pauseOffsetLocked(timestamp)
}

func (tl *TrackTimeline) pauseOffsetLocked(timestamp time.Duration) time.Duration {
	var offset time.Duration
	inPause := false
	var pauseStart time.Duration
	for _, ev := range tl.events {
		switch ev.Kind {
		case EventPause:
			if !inPause {
				inPause = true
				pauseStart = ev.Timestamp
			}
		case EventResume:
			if inPause && ev.Timestamp <= timestamp {
				offset += ev.Timestamp - pauseStart
			}
			inPause = false
		case EventStop:
			if inPause && ev.Timestamp <= timestamp {
				offset += ev.Timestamp - pauseStart
			}
			return offset
		}
	}
	return offset
}

// TargetDuration is the requested recording length: from the first to the
// last control event, minus pauses.
func (tl *TrackTimeline) TargetDuration() time.Duration {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.targetDurationLocked()
}

func (tl *TrackTimeline) targetDurationLocked() time.Duration {
	if len(tl.events) == 0 {
		return 0
	}
	first := tl.events[0].Timestamp
	last := tl.events[len(tl.events)-1].Timestamp
	return last - first - tl.totalPauseLocked()
}

// ActualDuration is the written length: from the first to the last accepted
// timestamp, minus pauses. ok is false until a sample has been accepted.
func (tl *TrackTimeline) ActualDuration() (d time.Duration, ok bool) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.actualDurationLocked()
}

func (tl *TrackTimeline) actualDurationLocked() (time.Duration, bool) {
	if !tl.hasFirst || !tl.hasLast {
		return 0, false
	}
	// accepted samples never fall inside a pause, so only windows between the
	// first and last sample count and the result cannot go negative
	pauses := tl.pauseOffsetLocked(tl.last) - tl.pauseOffsetLocked(tl.first)
	return tl.last - tl.first - pauses, true
}

// Latency is clock.Now() minus the most recently evaluated timestamp.
func (tl *TrackTimeline) Latency() time.Duration {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.latency
}

func (tl *TrackTimeline) IsFinished() bool {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.finished
}

func (tl *TrackTimeline) FirstTimestamp() (time.Duration, bool) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.first, tl.hasFirst
}

func (tl *TrackTimeline) LastTimestamp() (time.Duration, bool) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.last, tl.hasLast
}

func (tl *TrackTimeline) State() State {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.stateLocked()
}

func (tl *TrackTimeline) stateLocked() State {
	if tl.finished {
		return StateFinished
	}
	started, paused, stopped := tl.controlStateLocked()
	switch {
	case stopped:
		return StateStopping
	case !started:
		return StateNotStarted
	case paused:
		return StatePaused
	default:
		return StateRecording
	}
}

// Events returns a copy of the event log.
func (tl *TrackTimeline) Events() []Event {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	out := make([]Event, len(tl.events))
	copy(out, tl.events)
	return out
}

// Snapshot is a consistent view of a timeline taken under its lock.
type Snapshot struct {
	Kind           internal_type.TrackKind
	State          State
	HasFirst       bool
	First          time.Duration
	HasLast        bool
	Last           time.Duration
	Latency        time.Duration
	TotalPause     time.Duration
	TargetDuration time.Duration
	ActualDuration time.Duration
}

func (tl *TrackTimeline) Snapshot() Snapshot {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	actual, _ := tl.actualDurationLocked()
	return Snapshot{
		Kind:           tl.kind,
		State:          tl.stateLocked(),
		HasFirst:       tl.hasFirst,
		First:          tl.first,
		HasLast:        tl.hasLast,
		Last:           tl.last,
		Latency:        tl.latency,
		TotalPause:     tl.totalPauseLocked(),
		TargetDuration: tl.targetDurationLocked(),
		ActualDuration: actual,
	}
}

func (tl *TrackTimeline) String() string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.describeLocked()
}

func (tl *TrackTimeline) describeLocked() string {
	lines := make([]string, len(tl.events))
	for i, ev := range tl.events {
		lines[i] = ev.String()
	}
	return strings.Join(lines, "\n")
}
