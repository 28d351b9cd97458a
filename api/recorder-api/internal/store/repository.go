// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rapidaai/recorder/pkg/commons"
	"github.com/rapidaai/recorder/pkg/connectors"
)

// RecordingRepository persists recording records in Postgres.
type RecordingRepository interface {
	Create(ctx context.Context, rec *Recording) error
	Get(ctx context.Context, recordingID string) (*Recording, error)
	UpdateStatus(ctx context.Context, recordingID, status string) error
	Complete(ctx context.Context, recordingID string, result RecordingResult) error
}

type postgresRepository struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

func NewRecordingRepository(postgres connectors.PostgresConnector, logger commons.Logger) RecordingRepository {
	return &postgresRepository{
		postgres: postgres,
		logger:   logger,
	}
}

func (r *postgresRepository) Create(ctx context.Context, rec *Recording) error {
	if rec.Status == "" {
		rec.Status = StatusCreated
	}
	if rec.CreatedDate.IsZero() {
		rec.CreatedDate = time.Now()
	}
	db := r.postgres.DB(ctx)
	if err := db.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create recording %s: %w", rec.RecordingID, err)
	}
	r.logger.Infof("created recording: recordingId=%s, videoCodec=%s, audioEncoding=%s",
		rec.RecordingID, rec.VideoCodec, rec.AudioEncoding)
	return nil
}

func (r *postgresRepository) Get(ctx context.Context, recordingID string) (*Recording, error) {
	db := r.postgres.DB(ctx)
	var rec Recording
	if err := db.Where("recording_id = ?", recordingID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", recordingID, ErrRecordingNotFound)
		}
		return nil, fmt.Errorf("failed to get recording %s: %w", recordingID, err)
	}
	return &rec, nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, recordingID, status string) error {
	return r.update(ctx, recordingID, map[string]interface{}{
		"status":       status,
		"updated_date": time.Now(),
	})
}

func (r *postgresRepository) Complete(ctx context.Context, recordingID string, result RecordingResult) error {
	err := r.update(ctx, recordingID, map[string]interface{}{
		"status":             result.Status,
		"video_path":         result.VideoPath,
		"audio_path":         result.AudioPath,
		"target_duration_ms": result.TargetDurationMs,
		"video_duration_ms":  result.VideoDurationMs,
		"audio_duration_ms":  result.AudioDurationMs,
		"error_message":      result.ErrorMessage,
		"updated_date":       time.Now(),
	})
	if err != nil {
		return err
	}
	r.logger.Infof("completed recording: recordingId=%s, status=%s", recordingID, result.Status)
	return nil
}

func (r *postgresRepository) update(ctx context.Context, recordingID string, values map[string]interface{}) error {
	db := r.postgres.DB(ctx)
	result := db.Model(&Recording{}).
		Where("recording_id = ?", recordingID).
		Updates(values)
	if result.Error != nil {
		return fmt.Errorf("failed to update recording %s: %w", recordingID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", recordingID, ErrRecordingNotFound)
	}
	r.logger.Debugf("updated recording: recordingId=%s, status=%v", recordingID, values["status"])
	return nil
}
