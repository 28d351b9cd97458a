// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rapidaai/recorder/pkg/commons"
	"github.com/rapidaai/recorder/pkg/connectors"
)

var recordingColumns = []string{
	"recording_id", "status", "video_codec", "audio_encoding", "video_path", "audio_path",
	"target_duration_ms", "video_duration_ms", "audio_duration_ms", "error_message",
	"created_date", "updated_date",
}

func newTestRepository(t *testing.T) (RecordingRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	require.NoError(t, err)
	logger := commons.NewNopLogger()
	return NewRecordingRepository(connectors.NewPostgresConnectorWithDB(db, logger), logger), mock
}

func TestRepository_Create(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "recordings"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &Recording{RecordingID: "rec-1", VideoCodec: "vp8", AudioEncoding: "linear16"}
	require.NoError(t, repo.Create(context.Background(), rec))
	assert.Equal(t, StatusCreated, rec.Status)
	assert.False(t, rec.CreatedDate.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateFailure(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "recordings"`)).
		WillReturnError(errors.New("duplicate key"))

	err := repo.Create(context.Background(), &Recording{RecordingID: "rec-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rec-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Get(t *testing.T) {
	repo, mock := newTestRepository(t)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "recordings" WHERE recording_id = $1`)).
		WillReturnRows(sqlmock.NewRows(recordingColumns).AddRow(
			"rec-1", StatusCompleted, "vp8", "mulaw", "rec-1/video.rtp", "rec-1/audio.wav",
			int64(1000), int64(1000), int64(980), "", created, created,
		))

	rec, err := repo.Get(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, "rec-1/audio.wav", rec.AudioPath)
	assert.Equal(t, int64(980), rec.AudioDurationMs)
	assert.Equal(t, created, rec.CreatedDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetMissing(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "recordings"`)).
		WillReturnRows(sqlmock.NewRows(recordingColumns))

	_, err := repo.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRecordingNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateStatusAndComplete(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		call     func(RecordingRepository) error
		notFound bool
	}{
		{
			name:     "update status",
			affected: 1,
			call: func(r RecordingRepository) error {
				return r.UpdateStatus(context.Background(), "rec-1", StatusPaused)
			},
		},
		{
			name:     "complete",
			affected: 1,
			call: func(r RecordingRepository) error {
				return r.Complete(context.Background(), "rec-1", RecordingResult{
					Status:          StatusCompleted,
					AudioPath:       "rec-1/audio.wav",
					AudioDurationMs: 980,
				})
			},
		},
		{
			name:     "missing row",
			affected: 0,
			call: func(r RecordingRepository) error {
				return r.UpdateStatus(context.Background(), "missing", StatusPaused)
			},
			notFound: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTestRepository(t)
			mock.ExpectExec(regexp.QuoteMeta(`UPDATE "recordings" SET`)).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := tt.call(repo)
			if tt.notFound {
				assert.True(t, errors.Is(err, ErrRecordingNotFound))
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
