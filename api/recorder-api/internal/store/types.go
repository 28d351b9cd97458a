// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_store

import (
	"errors"
	"time"
)

var ErrRecordingNotFound = errors.New("recording not found")

// Recording status constants.
const (
	StatusCreated   = "created"
	StatusRecording = "recording"
	StatusPaused    = "paused"
	StatusStopping  = "stopping"
	StatusCompleted = "completed" // every track finalized with data
	StatusFailed    = "failed"    // a track was empty or its sink failed
)

// Recording is the durable record of one recording session.
//
// Stored in Postgres (recordings table). Rows are created when the session is
// created and completed once every track has been finalized.
type Recording struct {
	RecordingID      string    `json:"recordingId" gorm:"column:recording_id;type:varchar(36);primaryKey;autoIncrement:false"`
	Status           string    `json:"status" gorm:"column:status;type:varchar(20);not null"`
	VideoCodec       string    `json:"videoCodec" gorm:"column:video_codec;type:varchar(20);not null"`
	AudioEncoding    string    `json:"audioEncoding" gorm:"column:audio_encoding;type:varchar(20);not null"`
	VideoPath        string    `json:"videoPath" gorm:"column:video_path;type:text"`
	AudioPath        string    `json:"audioPath" gorm:"column:audio_path;type:text"`
	TargetDurationMs int64     `json:"targetDurationMs" gorm:"column:target_duration_ms;type:bigint"`
	VideoDurationMs  int64     `json:"videoDurationMs" gorm:"column:video_duration_ms;type:bigint"`
	AudioDurationMs  int64     `json:"audioDurationMs" gorm:"column:audio_duration_ms;type:bigint"`
	ErrorMessage     string    `json:"errorMessage,omitempty" gorm:"column:error_message;type:text"`
	CreatedDate      time.Time `json:"createdDate" gorm:"column:created_date;type:timestamp;not null;<-:create"`
	UpdatedDate      time.Time `json:"updatedDate" gorm:"column:updated_date;type:timestamp"`
}

func (Recording) TableName() string {
	return "recordings"
}

// RecordingResult is what a finished session reports back to its record.
type RecordingResult struct {
	Status           string
	VideoPath        string
	AudioPath        string
	TargetDurationMs int64
	VideoDurationMs  int64
	AudioDurationMs  int64
	ErrorMessage     string
}

// TrackState is the live view of one track.
type TrackState struct {
	Kind             string `json:"kind"`
	State            string `json:"state"`
	Finished         bool   `json:"finished"`
	Received         uint64 `json:"received"`
	Written          uint64 `json:"written"`
	Rejected         uint64 `json:"rejected"`
	LatencyMs        int64  `json:"latencyMs"`
	TargetDurationMs int64  `json:"targetDurationMs"`
	ActualDurationMs int64  `json:"actualDurationMs"`
}

// RecordingState is the live view of a recording, kept while it runs.
type RecordingState struct {
	ID        string       `json:"id"`
	Status    string       `json:"status"`
	Tracks    []TrackState `json:"tracks"`
	UpdatedAt time.Time    `json:"updatedAt"`
}
