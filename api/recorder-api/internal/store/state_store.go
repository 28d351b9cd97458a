// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rapidaai/recorder/pkg/commons"
)

const (
	// Uses hash tag {recording} so every recording key hashes to the same
	// Redis Cluster slot.
	recordingKeyPrefix = "{recording}:"

	DefaultStateTTL = 24 * time.Hour
)

// StateStore keeps the live state of running recordings so any instance can
// answer status queries.
type StateStore interface {
	Save(ctx context.Context, state *RecordingState) error
	Get(ctx context.Context, recordingID string) (*RecordingState, error)
	Delete(ctx context.Context, recordingID string) error
}

type redisStateStore struct {
	client *redis.Client
	logger commons.Logger
	ttl    time.Duration
}

func NewStateStore(client *redis.Client, logger commons.Logger, ttl time.Duration) StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &redisStateStore{client: client, logger: logger, ttl: ttl}
}

func recordingKey(recordingID string) string {
	return recordingKeyPrefix + recordingID
}

func (s *redisStateStore) Save(ctx context.Context, state *RecordingState) error {
	if s.client == nil {
		return fmt.Errorf("redis connection not available for recording state")
	}
	tracks, err := json.Marshal(state.Tracks)
	if err != nil {
		return fmt.Errorf("failed to encode tracks of %s: %w", state.ID, err)
	}
	key := recordingKey(state.ID)
	if err := s.client.HSet(ctx, key,
		"status", state.Status,
		"tracks", string(tracks),
		"updated_at", state.UpdatedAt.UnixMilli(),
	).Err(); err != nil {
		return fmt.Errorf("failed to save recording state %s: %w", state.ID, err)
	}
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set ttl on recording state %s: %w", state.ID, err)
	}
	s.logger.Debugf("saved recording state: recordingId=%s, status=%s", state.ID, state.Status)
	return nil
}

func (s *redisStateStore) Get(ctx context.Context, recordingID string) (*RecordingState, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis connection not available for recording state")
	}
	values, err := s.client.HGetAll(ctx, recordingKey(recordingID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recording state %s: %w", recordingID, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: %w", recordingID, ErrRecordingNotFound)
	}
	state := &RecordingState{ID: recordingID, Status: values["status"]}
	if raw := values["tracks"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &state.Tracks); err != nil {
			return nil, fmt.Errorf("failed to decode tracks of %s: %w", recordingID, err)
		}
	}
	if raw := values["updated_at"]; raw != "" {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid updated_at on %s: %w", recordingID, err)
		}
		state.UpdatedAt = time.UnixMilli(millis)
	}
	return state, nil
}

func (s *redisStateStore) Delete(ctx context.Context, recordingID string) error {
	if s.client == nil {
		return fmt.Errorf("redis connection not available for recording state")
	}
	return s.client.Del(ctx, recordingKey(recordingID)).Err()
}
