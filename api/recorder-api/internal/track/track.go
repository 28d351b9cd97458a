// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_track

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	internal_timeline "github.com/rapidaai/recorder/api/recorder-api/internal/timeline"
	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
	"github.com/rapidaai/recorder/pkg/commons"
)

var (
	// ErrSinkNotReady is recoverable: the sample is dropped and recording continues.
	ErrSinkNotReady = errors.New("sink not ready for more data")
	// ErrSinkWriteFailed is recoverable: the sample was consumed and cannot be retried.
	ErrSinkWriteFailed = errors.New("sink write failed")
	// ErrEmptyTrack reports a track that finished without writing any sample.
	ErrEmptyTrack = errors.New("track finished without any written sample")
)

// Track couples one timeline to one sink. It drops samples outside the
// timeline, removes pause gaps from the timestamps it forwards, and closes the
// sink exactly once when the timeline finishes.
type Track struct {
	kind     internal_type.TrackKind
	timeline *internal_timeline.TrackTimeline
	sink     internal_type.Sink
	logger   commons.Logger

	// writeMu keeps sink writes and MarkFinished from interleaving.
	writeMu     sync.Mutex
	finalized   atomic.Bool
	done        chan struct{}
	summary     Summary
	lastWritten time.Duration
	hasWritten  bool

	stats counters
}

type trackOptions struct {
	logger          commons.Logger
	timelineOptions []internal_timeline.Option
}

type Option func(*trackOptions)

func WithLogger(logger commons.Logger) Option {
	return func(o *trackOptions) { o.logger = logger }
}

func WithTimelineOptions(opts ...internal_timeline.Option) Option {
	return func(o *trackOptions) { o.timelineOptions = append(o.timelineOptions, opts...) }
}

// NewTrack builds a track and its timeline on the shared session clock.
func NewTrack(kind internal_type.TrackKind, sink internal_type.Sink, clock internal_timeline.Clock, opts ...Option) (*Track, error) {
	if sink == nil {
		return nil, fmt.Errorf("%s track requires a sink", kind)
	}
	o := &trackOptions{logger: commons.NewNopLogger()}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger.With("track", kind.String())

	tl, err := internal_timeline.NewTrackTimeline(kind, clock,
		append([]internal_timeline.Option{internal_timeline.WithLogger(logger)}, o.timelineOptions...)...)
	if err != nil {
		return nil, err
	}
	return &Track{
		kind:     kind,
		timeline: tl,
		sink:     sink,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

func (t *Track) Kind() internal_type.TrackKind {
	return t.kind
}

func (t *Track) Timeline() *internal_timeline.TrackTimeline {
	return t.timeline
}

func (t *Track) Start() error  { return t.timeline.Start() }
func (t *Track) Pause() error  { return t.timeline.Pause() }
func (t *Track) Resume() error { return t.timeline.Resume() }
func (t *Track) Stop() error   { return t.timeline.Stop() }

// Append offers one captured sample to the track. Rejected samples are
// dropped without error; the returned error is only ever ErrSinkNotReady or
// ErrSinkWriteFailed and never requires aborting the recording.
func (t *Track) Append(sample internal_type.Sample) error {
	t.stats.received.Add(1)

	// 1. finished tracks drop silently, this is the steady state after stop
	if t.timeline.IsFinished() {
		t.stats.droppedAfterFinish.Add(1)
		t.finalize(false)
		return nil
	}

	// 2. evaluate against the timeline
	decision, offset := t.timeline.Evaluate(sample.Timestamp)

	// 3. write or drop
	var err error
	switch decision {
	case internal_timeline.Accepted:
		err = t.write(sample, offset)
	case internal_timeline.RejectedBeforeStart:
		t.stats.rejectedBeforeStart.Add(1)
		t.logger.Debugf("Dropping %s sample at %.3fs: before start", t.kind, sample.Timestamp.Seconds())
	case internal_timeline.RejectedPaused:
		t.stats.rejectedPaused.Add(1)
		t.logger.Debugf("Dropping %s sample at %.3fs: paused", t.kind, sample.Timestamp.Seconds())
	case internal_timeline.RejectedFinished:
		t.stats.rejectedFinished.Add(1)
	}

	// 4. if the timeline finished just now, close the sink
	if t.timeline.IsFinished() {
		t.finalize(false)
	}
	return err
}

func (t *Track) write(sample internal_type.Sample, offset time.Duration) error {
	t.stats.accepted.Add(1)

	// encoders cannot represent a hole in the timeline, so pauses are cut out
	// instead of showing up as a frozen frame
	out := sample
	if offset > 0 {
		out = sample.WithTimestamp(sample.Timestamp - offset)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.finalized.Load() {
		t.stats.droppedAfterFinish.Add(1)
		return nil
	}
	if !t.sink.IsReadyForMoreData() {
		t.stats.notReady.Add(1)
		t.logger.Warnf("Failed to write %s sample at %.3fs: sink was not ready for more data",
			t.kind, out.Timestamp.Seconds())
		return fmt.Errorf("%s sample at %v: %w", t.kind, out.Timestamp, ErrSinkNotReady)
	}
	if err := t.sink.Write(out); err != nil {
		t.stats.writeFailed.Add(1)
		t.logger.Errorw("Failed to write sample to sink",
			"timestamp", out.Timestamp,
			"error", err)
		return fmt.Errorf("%s sample at %v: %w: %w", t.kind, out.Timestamp, ErrSinkWriteFailed, err)
	}
	t.stats.written.Add(1)
	t.lastWritten = out.Timestamp
	t.hasWritten = true
	return nil
}

// ForceFinalize finishes the track without waiting for a post-stop sample,
// e.g. when capture stopped delivering after stop(). It reports whether this
// call closed the sink.
func (t *Track) ForceFinalize() bool {
	forced := t.timeline.ForceFinish()
	return t.finalize(forced)
}

func (t *Track) finalize(forced bool) bool {
	if !t.finalized.CompareAndSwap(false, true) {
		return false
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	summary := t.buildSummaryLocked(forced)
	if err := t.sink.MarkFinished(); err != nil {
		summary.FinishErr = err
		t.logger.Errorw("Failed to mark sink as finished", "error", err)
	}

	diff := summary.Difference.Seconds()
	diffMsg := fmt.Sprintf("%.3f seconds shorter than expected", -diff)
	if diff > 0 {
		diffMsg = fmt.Sprintf("%.3f seconds longer than expected", diff)
	}
	t.logger.Infof("Marking %s track as finished - target duration: %.3fs, actual duration: %.3fs (%s)",
		t.kind, summary.TargetDuration.Seconds(), summary.ActualDuration.Seconds(), diffMsg)
	if summary.Empty {
		t.logger.Errorw("Track finished without any written sample",
			"received", summary.Stats.Received,
			"forced", forced)
	}

	t.summary = summary
	close(t.done)
	return true
}

// Done is closed once the sink has been marked finished.
func (t *Track) Done() <-chan struct{} {
	return t.done
}

func (t *Track) IsFinished() bool {
	return t.finalized.Load()
}

// Summary is available once Done is closed.
func (t *Track) Summary() (Summary, bool) {
	select {
	case <-t.done:
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
		return t.summary, true
	default:
		return Summary{}, false
	}
}

func (t *Track) Latency() time.Duration {
	return t.timeline.Latency()
}

func (t *Track) Duration() time.Duration {
	d, _ := t.timeline.ActualDuration()
	return d
}

func (t *Track) State() internal_timeline.State {
	return t.timeline.State()
}

// LastWrittenTimestamp is the pause-corrected timestamp of the last sample
// the sink accepted.
func (t *Track) LastWrittenTimestamp() (time.Duration, bool) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.lastWritten, t.hasWritten
}

func (t *Track) Stats() Stats {
	return t.stats.snapshot()
}

func (t *Track) buildSummaryLocked(forced bool) Summary {
	snap := t.timeline.Snapshot()
	stats := t.stats.snapshot()
	return Summary{
		Kind:           t.kind,
		TargetDuration: snap.TargetDuration,
		ActualDuration: snap.ActualDuration,
		Difference:     snap.ActualDuration - snap.TargetDuration,
		HasFirst:       snap.HasFirst,
		First:          snap.First,
		Last:           snap.Last,
		Empty:          stats.Written == 0,
		Forced:         forced,
		Stats:          stats,
	}
}
