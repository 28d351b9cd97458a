// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	internal_timeline "github.com/rapidaai/recorder/api/recorder-api/internal/timeline"
	internal_track "github.com/rapidaai/recorder/api/recorder-api/internal/track"
	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
	"github.com/rapidaai/recorder/pkg/commons"
)

const DefaultAutoStopTimeout = 4 * time.Second

var (
	ErrTrackExists    = errors.New("track already exists")
	ErrUnknownTrack   = errors.New("no track for kind")
	ErrAlreadyStarted = errors.New("recording already started")
	ErrNoTracks       = errors.New("recording has no tracks")
)

// RecordingSession owns the tracks of one recording and fans control calls
// out to them. All tracks share the session clock.
type RecordingSession struct {
	id     string
	logger commons.Logger
	clock  internal_timeline.Clock
	opts   sessionOptions

	mu          sync.RWMutex
	tracks      map[internal_type.TrackKind]*internal_track.Track
	order       []internal_type.TrackKind
	coordinator *internal_timeline.Coordinator
	started     bool
	stopTimer   *time.Timer
}

type sessionOptions struct {
	id                     string
	autoStopTimeout        time.Duration
	durationBalancing      bool
	excludePausedFollowers bool
	strictEventOrder       bool
}

type Option func(*sessionOptions)

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(o *sessionOptions) { o.id = id }
}

// WithAutoStopTimeout force-finalizes tracks that have not seen a sample
// after stop within d. Zero disables the timer.
func WithAutoStopTimeout(d time.Duration) Option {
	return func(o *sessionOptions) { o.autoStopTimeout = d }
}

// WithDurationBalancing makes the video timeline the master of the audio
// timeline so that both end up with the same length.
func WithDurationBalancing(enabled bool) Option {
	return func(o *sessionOptions) { o.durationBalancing = enabled }
}

func WithExcludePausedFollowers(exclude bool) Option {
	return func(o *sessionOptions) { o.excludePausedFollowers = exclude }
}

func WithStrictEventOrder(strict bool) Option {
	return func(o *sessionOptions) { o.strictEventOrder = strict }
}

func NewRecordingSession(logger commons.Logger, clock internal_timeline.Clock, opts ...Option) (*RecordingSession, error) {
	if clock == nil {
		return nil, fmt.Errorf("recording session: %w", internal_timeline.ErrClockUnavailable)
	}
	o := sessionOptions{
		autoStopTimeout:   DefaultAutoStopTimeout,
		durationBalancing: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	return &RecordingSession{
		id:     o.id,
		logger: logger.With("recording", o.id),
		clock:  clock,
		opts:   o,
		tracks: make(map[internal_type.TrackKind]*internal_track.Track),
	}, nil
}

func (s *RecordingSession) ID() string {
	return s.id
}

func (s *RecordingSession) Clock() internal_timeline.Clock {
	return s.clock
}

// AddTrack creates the track of the given kind. Tracks can only be added
// before the recording starts.
func (s *RecordingSession) AddTrack(kind internal_type.TrackKind, sink internal_type.Sink) (*internal_track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, fmt.Errorf("cannot add %s track: %w", kind, ErrAlreadyStarted)
	}
	if _, ok := s.tracks[kind]; ok {
		return nil, fmt.Errorf("%s: %w", kind, ErrTrackExists)
	}
	tr, err := internal_track.NewTrack(kind, sink, s.clock,
		internal_track.WithLogger(s.logger),
		internal_track.WithTimelineOptions(internal_timeline.WithStrictEventOrder(s.opts.strictEventOrder)),
	)
	if err != nil {
		return nil, err
	}
	s.tracks[kind] = tr
	s.order = append(s.order, kind)
	return tr, nil
}

func (s *RecordingSession) Track(kind internal_type.TrackKind) (*internal_track.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.tracks[kind]
	return tr, ok
}

// Tracks returns the tracks in the order they were added.
func (s *RecordingSession) Tracks() []*internal_track.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracksLocked()
}

func (s *RecordingSession) tracksLocked() []*internal_track.Track {
	out := make([]*internal_track.Track, 0, len(s.order))
	for _, kind := range s.order {
		out = append(out, s.tracks[kind])
	}
	return out
}

func (s *RecordingSession) balanceLocked() error {
	if !s.opts.durationBalancing {
		return nil
	}
	video, hasVideo := s.tracks[internal_type.TrackKindVideo]
	audio, hasAudio := s.tracks[internal_type.TrackKindAudio]
	if !hasVideo || !hasAudio {
		return nil
	}
	c, err := internal_timeline.NewCoordinator(video.Timeline(),
		internal_timeline.WithExcludePausedFollowers(s.opts.excludePausedFollowers),
		internal_timeline.WithCoordinatorLogger(s.logger),
	)
	if err != nil {
		return err
	}
	if err := c.AddFollower(audio.Timeline()); err != nil {
		return err
	}
	s.coordinator = c
	return nil
}

// control applies call to every track and reports how many accepted it.
func (s *RecordingSession) control(ctx context.Context, name string, call func(*internal_track.Track) error) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var errs []error
	applied := 0
	for _, tr := range s.tracksLocked() {
		if err := call(tr); err != nil {
			errs = append(errs, fmt.Errorf("%s %s track: %w", name, tr.Kind(), err))
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}

func (s *RecordingSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tracks) == 0 {
		return ErrNoTracks
	}
	if !s.started {
		if err := s.balanceLocked(); err != nil {
			return fmt.Errorf("failed to balance track durations: %w", err)
		}
		s.started = true
	}
	s.logger.Infof("Starting recording with %d tracks", len(s.tracks))
	_, err := s.control(ctx, "start", (*internal_track.Track).Start)
	return err
}

func (s *RecordingSession) Pause(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.control(ctx, "pause", (*internal_track.Track).Pause)
	return err
}

func (s *RecordingSession) Resume(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.control(ctx, "resume", (*internal_track.Track).Resume)
	return err
}

// Stop appends a stop event to every track. Tracks finish once they observe
// a sample past the stop, or when the auto-stop timeout fires. The timeout is
// armed only once at least one track recorded the stop.
func (s *RecordingSession) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied, err := s.control(ctx, "stop", (*internal_track.Track).Stop)
	if applied > 0 && s.opts.autoStopTimeout > 0 && s.stopTimer == nil {
		s.stopTimer = time.AfterFunc(s.opts.autoStopTimeout, s.forceFinalize)
	}
	return err
}

func (s *RecordingSession) forceFinalize() {
	for _, tr := range s.Tracks() {
		if tr.ForceFinalize() {
			s.logger.Warnf("Auto-stopped %s track %s after stop: no sample past the stop event arrived",
				tr.Kind(), s.opts.autoStopTimeout)
		}
	}
}

// Close stops the auto-stop timer and finalizes every track immediately.
func (s *RecordingSession) Close() {
	s.mu.Lock()
	if s.stopTimer != nil {
		s.stopTimer.Stop()
	}
	s.mu.Unlock()
	s.forceFinalize()
}

// Append routes one captured sample to the track of its kind.
func (s *RecordingSession) Append(kind internal_type.TrackKind, sample internal_type.Sample) error {
	tr, ok := s.Track(kind)
	if !ok {
		return fmt.Errorf("%s: %w", kind, ErrUnknownTrack)
	}
	return tr.Append(sample)
}

// Wait blocks until every track is finalized and returns the summary. Empty
// tracks and sink finalization failures are joined into the returned error,
// the summary is returned regardless.
func (s *RecordingSession) Wait(ctx context.Context) (*Summary, error) {
	tracks := s.Tracks()
	g, gctx := errgroup.WithContext(ctx)
	for _, tr := range tracks {
		tr := tr
		g.Go(func() error {
			select {
			case <-tr.Done():
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{ID: s.id}
	var errs []error
	for _, tr := range tracks {
		ts, _ := tr.Summary()
		summary.Tracks = append(summary.Tracks, ts)
		if err := ts.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return summary, errors.Join(errs...)
}

// State aggregates track states: finished when every track is, stopping
// once any track stopped, otherwise the most advanced running state.
func (s *RecordingSession) State() internal_timeline.State {
	tracks := s.Tracks()
	if len(tracks) == 0 {
		return internal_timeline.StateNotStarted
	}
	finished := 0
	state := internal_timeline.StateNotStarted
	for _, tr := range tracks {
		st := tr.State()
		if tr.IsFinished() {
			st = internal_timeline.StateFinished
			finished++
		}
		if st == internal_timeline.StateFinished {
			st = internal_timeline.StateStopping
		}
		if st > state {
			state = st
		}
	}
	if finished == len(tracks) {
		return internal_timeline.StateFinished
	}
	return state
}

// Stats returns the per-track counters keyed by track kind.
func (s *RecordingSession) Stats() map[internal_type.TrackKind]internal_track.Stats {
	out := make(map[internal_type.TrackKind]internal_track.Stats)
	for _, tr := range s.Tracks() {
		out[tr.Kind()] = tr.Stats()
	}
	return out
}
