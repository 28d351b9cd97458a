// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/rapidaai/recorder/pkg/commons"
	"github.com/rapidaai/recorder/pkg/connectors"
)

// newSQLiteRepository runs the repository against a real in-memory database
// so the gorm model and the generated SQL are exercised end to end.
func newSQLiteRepository(t *testing.T) RecordingRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:                 gorm_logger.Default.LogMode(gorm_logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&Recording{}))
	logger := commons.NewNopLogger()
	return NewRecordingRepository(connectors.NewPostgresConnectorWithDB(db, logger), logger)
}

func TestRepository_SQLiteLifecycle(t *testing.T) {
	repo := newSQLiteRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &Recording{RecordingID: "rec-1", VideoCodec: "vp8", AudioEncoding: "mulaw"}))
	assert.Error(t, repo.Create(ctx, &Recording{RecordingID: "rec-1", VideoCodec: "vp8", AudioEncoding: "mulaw"}),
		"recording ids are unique")

	require.NoError(t, repo.UpdateStatus(ctx, "rec-1", StatusPaused))
	rec, err := repo.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, rec.Status)
	assert.Equal(t, "mulaw", rec.AudioEncoding)

	require.NoError(t, repo.Complete(ctx, "rec-1", RecordingResult{
		Status:           StatusCompleted,
		VideoPath:        "/assets/rec-1/video.rtp",
		AudioPath:        "/assets/rec-1/audio.wav",
		TargetDurationMs: 600,
		VideoDurationMs:  600,
		AudioDurationMs:  590,
	}))
	rec, err = repo.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, int64(590), rec.AudioDurationMs)
	assert.Equal(t, "/assets/rec-1/video.rtp", rec.VideoPath)
	assert.False(t, rec.UpdatedDate.IsZero())
	assert.False(t, rec.CreatedDate.IsZero())
}

func TestRepository_SQLiteNotFound(t *testing.T) {
	repo := newSQLiteRepository(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRecordingNotFound))
	assert.True(t, errors.Is(repo.UpdateStatus(ctx, "missing", StatusFailed), ErrRecordingNotFound))
}
