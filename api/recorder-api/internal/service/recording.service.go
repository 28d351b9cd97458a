// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_service

import (
	"context"
	"errors"
	"time"

	"github.com/pion/webrtc/v4"

	internal_session "github.com/rapidaai/recorder/api/recorder-api/internal/session"
	internal_store "github.com/rapidaai/recorder/api/recorder-api/internal/store"
	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
)

var (
	ErrSessionNotFound     = errors.New("recording session not found")
	ErrLiveMonitorDisabled = errors.New("live monitor is disabled")
)

type RecordingService interface {
	Create(ctx context.Context) (*internal_store.Recording, error)
	Start(ctx context.Context, recordingID string) error
	Pause(ctx context.Context, recordingID string) error
	Resume(ctx context.Context, recordingID string) error
	// Stop returns once the stop event is recorded; finalization, upload and
	// persistence continue in the background.
	Stop(ctx context.Context, recordingID string) error

	Append(ctx context.Context, recordingID string, kind internal_type.TrackKind, sample internal_type.Sample) error
	// Now is the current position of the recording's session clock, the
	// reference for sample timestamps.
	Now(recordingID string) (time.Duration, error)

	Get(ctx context.Context, recordingID string) (*internal_store.RecordingState, error)
	Wait(ctx context.Context, recordingID string) (*internal_session.Summary, error)
	LiveTrack(recordingID string, kind internal_type.TrackKind) (*webrtc.TrackLocalStaticSample, error)

	Shutdown(ctx context.Context) error
}
