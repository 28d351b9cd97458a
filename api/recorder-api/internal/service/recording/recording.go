// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_recording_service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"github.com/rapidaai/recorder/api/recorder-api/config"
	internal_service "github.com/rapidaai/recorder/api/recorder-api/internal/service"
	internal_session "github.com/rapidaai/recorder/api/recorder-api/internal/session"
	internal_sink "github.com/rapidaai/recorder/api/recorder-api/internal/sink"
	internal_store "github.com/rapidaai/recorder/api/recorder-api/internal/store"
	internal_timeline "github.com/rapidaai/recorder/api/recorder-api/internal/timeline"
	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
	"github.com/rapidaai/recorder/pkg/commons"
	storage_files "github.com/rapidaai/recorder/pkg/storages/file-storage"
)

// finished recordings stay addressable in memory this long; afterwards Get
// falls back to the state store and the repository.
const finishedRetention = 5 * time.Minute

// recording is one live session plus the files its sinks write.
type recording struct {
	session *internal_session.RecordingSession
	dir     string
	files   map[internal_type.TrackKind]string
	live    map[internal_type.TrackKind]*internal_sink.WebRTCSink

	finishOnce sync.Once
	done       chan struct{}
	status     string
	summary    *internal_session.Summary
	err        error
}

type recordingService struct {
	cfg        *config.AppConfig
	logger     commons.Logger
	repository internal_store.RecordingRepository
	state      internal_store.StateStore
	storage    storage_files.Storage
	newClock   func() internal_timeline.Clock

	mu         sync.RWMutex
	recordings map[string]*recording
	finishing  sync.WaitGroup
}

type Option func(*recordingService)

// WithClockFactory sets how each session gets its clock.
func WithClockFactory(f func() internal_timeline.Clock) Option {
	return func(s *recordingService) { s.newClock = f }
}

func NewRecordingService(
	cfg *config.AppConfig,
	logger commons.Logger,
	repository internal_store.RecordingRepository,
	state internal_store.StateStore,
	storage storage_files.Storage,
	opts ...Option,
) internal_service.RecordingService {
	s := &recordingService{
		cfg:        cfg,
		logger:     logger,
		repository: repository,
		state:      state,
		storage:    storage,
		newClock:   func() internal_timeline.Clock { return internal_timeline.NewMonotonicClock() },
		recordings: make(map[string]*recording),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *recordingService) sessionOptions() []internal_session.Option {
	rc := s.cfg.Recording
	return []internal_session.Option{
		internal_session.WithAutoStopTimeout(rc.AutoStopTimeout),
		internal_session.WithDurationBalancing(rc.DurationBalancing),
		internal_session.WithExcludePausedFollowers(rc.ExcludePausedFollowers),
		internal_session.WithStrictEventOrder(rc.StrictEventOrder),
	}
}

func (s *recordingService) Create(ctx context.Context) (*internal_store.Recording, error) {
	session, err := internal_session.NewRecordingSession(s.logger, s.newClock(), s.sessionOptions()...)
	if err != nil {
		return nil, err
	}
	r, err := s.attachSinks(session)
	if err != nil {
		return nil, err
	}

	rec := &internal_store.Recording{
		RecordingID:   session.ID(),
		VideoCodec:    s.cfg.Recording.VideoCodec,
		AudioEncoding: s.cfg.Recording.AudioEncoding,
	}
	if err := s.repository.Create(ctx, rec); err != nil {
		session.Close()
		_ = os.RemoveAll(r.dir)
		return nil, err
	}

	s.mu.Lock()
	s.recordings[session.ID()] = r
	s.mu.Unlock()

	s.saveState(ctx, r)
	s.logger.Infof("created recording %s in %s", session.ID(), r.dir)
	return rec, nil
}

// attachSinks creates the video RTP file and the audio WAV file of a session,
// plus live WebRTC tracks when the monitor is enabled.
func (s *recordingService) attachSinks(session *internal_session.RecordingSession) (*recording, error) {
	rc := s.cfg.Recording
	dir := filepath.Join(s.cfg.WorkDir, session.ID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	r := &recording{
		session: session,
		dir:     dir,
		files:   make(map[internal_type.TrackKind]string),
		live:    make(map[internal_type.TrackKind]*internal_sink.WebRTCSink),
		done:    make(chan struct{}),
		status:  internal_store.StatusCreated,
	}
	fail := func(err error) (*recording, error) {
		session.Close()
		_ = os.RemoveAll(dir)
		return nil, err
	}

	encoding, err := internal_sink.ParseAudioEncoding(rc.AudioEncoding)
	if err != nil {
		return fail(err)
	}

	videoPath := filepath.Join(dir, "video.rtp")
	videoFile, err := os.Create(videoPath)
	if err != nil {
		return fail(fmt.Errorf("failed to create video file: %w", err))
	}
	videoSink, err := internal_sink.NewRTPSink(videoFile, rc.VideoCodec, s.logger)
	if err != nil {
		videoFile.Close()
		return fail(err)
	}

	audioPath := filepath.Join(dir, "audio.wav")
	audioFile, err := os.Create(audioPath)
	if err != nil {
		videoFile.Close()
		return fail(fmt.Errorf("failed to create audio file: %w", err))
	}
	audioSink := internal_sink.NewWAVSink(audioFile, s.logger,
		internal_sink.WithSampleRate(rc.AudioSampleRate),
		internal_sink.WithChannels(rc.AudioChannels),
		internal_sink.WithEncoding(encoding),
	)

	sinks := map[internal_type.TrackKind]internal_type.Sink{
		internal_type.TrackKindVideo: videoSink,
		internal_type.TrackKindAudio: audioSink,
	}
	r.files[internal_type.TrackKindVideo] = videoPath
	r.files[internal_type.TrackKindAudio] = audioPath

	for _, kind := range []internal_type.TrackKind{internal_type.TrackKindVideo, internal_type.TrackKindAudio} {
		sink := sinks[kind]
		if rc.LiveMonitor {
			live, err := internal_sink.NewWebRTCSink(kind, session.ID(), s.logger)
			if err != nil {
				videoFile.Close()
				audioFile.Close()
				return fail(err)
			}
			r.live[kind] = live
			sink = internal_sink.NewMultiSink(sink, live)
		}
		if _, err := session.AddTrack(kind, sink); err != nil {
			videoFile.Close()
			audioFile.Close()
			return fail(err)
		}
	}
	return r, nil
}

func (s *recordingService) lookup(recordingID string) (*recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recordings[recordingID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", recordingID, internal_service.ErrSessionNotFound)
	}
	return r, nil
}

func (s *recordingService) control(
	ctx context.Context,
	recordingID, status string,
	call func(*internal_session.RecordingSession, context.Context) error,
) (*recording, error) {
	r, err := s.lookup(recordingID)
	if err != nil {
		return nil, err
	}
	if err := call(r.session, ctx); err != nil {
		return r, err
	}
	s.mu.Lock()
	r.status = status
	s.mu.Unlock()

	// persistence failures never interrupt a running recording
	if err := s.repository.UpdateStatus(ctx, recordingID, status); err != nil {
		s.logger.Errorw("Failed to persist recording status",
			"recording", recordingID,
			"status", status,
			"error", err)
	}
	s.saveState(ctx, r)
	return r, nil
}

func (s *recordingService) Start(ctx context.Context, recordingID string) error {
	_, err := s.control(ctx, recordingID, internal_store.StatusRecording, (*internal_session.RecordingSession).Start)
	return err
}

func (s *recordingService) Pause(ctx context.Context, recordingID string) error {
	_, err := s.control(ctx, recordingID, internal_store.StatusPaused, (*internal_session.RecordingSession).Pause)
	return err
}

func (s *recordingService) Resume(ctx context.Context, recordingID string) error {
	_, err := s.control(ctx, recordingID, internal_store.StatusRecording, (*internal_session.RecordingSession).Resume)
	return err
}

func (s *recordingService) Stop(ctx context.Context, recordingID string) error {
	r, err := s.control(ctx, recordingID, internal_store.StatusStopping, (*internal_session.RecordingSession).Stop)
	// a partial failure still leaves stop events behind, and those tracks
	// must be finalized
	if r != nil && r.session.State() >= internal_timeline.StateStopping {
		s.startFinish(r)
	}
	return err
}

func (s *recordingService) Append(ctx context.Context, recordingID string, kind internal_type.TrackKind, sample internal_type.Sample) error {
	r, err := s.lookup(recordingID)
	if err != nil {
		return err
	}
	return r.session.Append(kind, sample)
}

func (s *recordingService) Now(recordingID string) (time.Duration, error) {
	r, err := s.lookup(recordingID)
	if err != nil {
		return 0, err
	}
	return r.session.Clock().Now(), nil
}

func (s *recordingService) startFinish(r *recording) {
	r.finishOnce.Do(func() {
		s.finishing.Add(1)
		go func() {
			defer s.finishing.Done()
			s.finish(r)
		}()
	})
}

// finish waits for every track to finalize, uploads the files and completes
// the record. Tracks still open after the wait timeout are force-finalized.
func (s *recordingService) finish(r *recording) {
	id := r.session.ID()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Recording.WaitTimeout)
	defer cancel()

	summary, err := r.session.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warnf("recording %s did not finalize within %s, forcing", id, s.cfg.Recording.WaitTimeout)
		r.session.Close()
		summary, err = r.session.Wait(context.Background())
	}

	result := internal_store.RecordingResult{Status: internal_store.StatusCompleted}
	if summary != nil {
		for _, ts := range summary.Tracks {
			switch ts.Kind {
			case internal_type.TrackKindVideo:
				result.VideoDurationMs = ts.ActualDuration.Milliseconds()
			case internal_type.TrackKindAudio:
				result.AudioDurationMs = ts.ActualDuration.Milliseconds()
			}
			if d := ts.TargetDuration.Milliseconds(); d > result.TargetDurationMs {
				result.TargetDurationMs = d
			}
		}
	}

	var (
		pathsMu sync.Mutex
		g, gctx = errgroup.WithContext(context.Background())
	)
	for kind, path := range r.files {
		kind, path := kind, path
		g.Go(func() error {
			stored, err := s.upload(gctx, id, path)
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			pathsMu.Lock()
			defer pathsMu.Unlock()
			if kind == internal_type.TrackKindVideo {
				result.VideoPath = stored
			} else {
				result.AudioPath = stored
			}
			return nil
		})
	}
	uploadErr := g.Wait()
	if uploadErr == nil {
		_ = os.RemoveAll(r.dir)
	}

	if joined := errors.Join(err, uploadErr); joined != nil {
		result.Status = internal_store.StatusFailed
		result.ErrorMessage = joined.Error()
		s.logger.Errorw("Recording finished with errors", "recording", id, "error", joined)
	}

	persistCtx, persistCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer persistCancel()
	if perr := s.repository.Complete(persistCtx, id, result); perr != nil {
		s.logger.Errorw("Failed to complete recording", "recording", id, "error", perr)
	}

	s.mu.Lock()
	r.status = result.Status
	r.summary = summary
	r.err = errors.Join(err, uploadErr)
	s.mu.Unlock()
	s.saveState(persistCtx, r)

	close(r.done)
	time.AfterFunc(finishedRetention, func() {
		s.mu.Lock()
		delete(s.recordings, id)
		s.mu.Unlock()
	})
	s.logger.Infof("recording %s %s: video=%dms audio=%dms target=%dms",
		id, result.Status, result.VideoDurationMs, result.AudioDurationMs, result.TargetDurationMs)
}

func (s *recordingService) upload(ctx context.Context, recordingID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	out := s.storage.Store(ctx, filepath.Join(recordingID, filepath.Base(path)), f)
	if out.Error != nil {
		return "", out.Error
	}
	return out.CompletePath, nil
}

func (s *recordingService) Get(ctx context.Context, recordingID string) (*internal_store.RecordingState, error) {
	if r, err := s.lookup(recordingID); err == nil {
		return s.stateOf(r), nil
	}
	// the recording may run on another instance or be finished already
	state, err := s.state.Get(ctx, recordingID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, internal_store.ErrRecordingNotFound) {
		s.logger.Warnf("failed to read live state of %s: %v", recordingID, err)
	}
	rec, err := s.repository.Get(ctx, recordingID)
	if err != nil {
		if errors.Is(err, internal_store.ErrRecordingNotFound) {
			return nil, fmt.Errorf("%s: %w", recordingID, internal_service.ErrSessionNotFound)
		}
		return nil, err
	}
	return &internal_store.RecordingState{
		ID:        rec.RecordingID,
		Status:    rec.Status,
		UpdatedAt: rec.UpdatedDate,
	}, nil
}

func (s *recordingService) Wait(ctx context.Context, recordingID string) (*internal_session.Summary, error) {
	r, err := s.lookup(recordingID)
	if err != nil {
		return nil, err
	}
	select {
	case <-r.done:
		s.mu.RLock()
		defer s.mu.RUnlock()
		return r.summary, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *recordingService) LiveTrack(recordingID string, kind internal_type.TrackKind) (*webrtc.TrackLocalStaticSample, error) {
	r, err := s.lookup(recordingID)
	if err != nil {
		return nil, err
	}
	live, ok := r.live[kind]
	if !ok {
		return nil, internal_service.ErrLiveMonitorDisabled
	}
	return live.Track(), nil
}

// Shutdown finalizes every open recording and waits for the uploads.
func (s *recordingService) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	open := make([]*recording, 0, len(s.recordings))
	for _, r := range s.recordings {
		open = append(open, r)
	}
	s.mu.RUnlock()

	for _, r := range open {
		r.session.Close()
		s.startFinish(r)
	}

	done := make(chan struct{})
	go func() {
		s.finishing.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *recordingService) stateOf(r *recording) *internal_store.RecordingState {
	s.mu.RLock()
	status := r.status
	s.mu.RUnlock()

	state := &internal_store.RecordingState{
		ID:        r.session.ID(),
		Status:    status,
		UpdatedAt: time.Now(),
	}
	for _, tr := range r.session.Tracks() {
		stats := tr.Stats()
		state.Tracks = append(state.Tracks, internal_store.TrackState{
			Kind:             tr.Kind().String(),
			State:            tr.State().String(),
			Finished:         tr.IsFinished(),
			Received:         stats.Received,
			Written:          stats.Written,
			Rejected:         stats.RejectedBeforeStart + stats.RejectedPaused + stats.RejectedFinished,
			LatencyMs:        tr.Latency().Milliseconds(),
			TargetDurationMs: tr.Timeline().TargetDuration().Milliseconds(),
			ActualDurationMs: tr.Duration().Milliseconds(),
		})
	}
	return state
}

func (s *recordingService) saveState(ctx context.Context, r *recording) {
	if err := s.state.Save(ctx, s.stateOf(r)); err != nil {
		s.logger.Warnf("failed to save live state of %s: %v", r.session.ID(), err)
	}
}
