// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package recording_api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/recorder/api/recorder-api/config"
	internal_service "github.com/rapidaai/recorder/api/recorder-api/internal/service"
	internal_session "github.com/rapidaai/recorder/api/recorder-api/internal/session"
	internal_timeline "github.com/rapidaai/recorder/api/recorder-api/internal/timeline"
	internal_track "github.com/rapidaai/recorder/api/recorder-api/internal/track"
	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
	"github.com/rapidaai/recorder/pkg/commons"
	"github.com/rapidaai/recorder/pkg/utils"
)

// maxSampleSize bounds one posted sample.
const maxSampleSize = 4 << 20

type RecordingApi struct {
	cfg     *config.AppConfig
	logger  commons.Logger
	service internal_service.RecordingService
}

func NewRecordingApi(cfg *config.AppConfig, logger commons.Logger, service internal_service.RecordingService) *RecordingApi {
	return &RecordingApi{
		cfg:     cfg,
		logger:  logger,
		service: service,
	}
}

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, internal_service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, internal_service.ErrLiveMonitorDisabled):
		return http.StatusNotFound
	case errors.Is(err, internal_track.ErrSinkNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, internal_track.ErrSinkWriteFailed):
		return http.StatusInternalServerError
	case errors.Is(err, internal_session.ErrUnknownTrack):
		return http.StatusBadRequest
	case errors.Is(err, internal_session.ErrNoTracks),
		errors.Is(err, internal_timeline.ErrInvalidEventOrder):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (api *RecordingApi) fail(c *gin.Context, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		api.logger.Errorf("recording request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(code, gin.H{"success": false, "error": err.Error()})
}

// Create starts a new recording session with a video and an audio track.
//
// @Router /v1/recordings [post]
// @Summary Create recording
// @Produce json
// @Success 201 {object} gin.H
func (api *RecordingApi) Create(c *gin.Context) {
	rec, err := api.service.Create(c.Request.Context())
	if err != nil {
		api.fail(c, err)
		return
	}
	now, _ := api.service.Now(rec.RecordingID)
	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"recordingId": rec.RecordingID,
		"status":      rec.Status,
		"clockMs":     durationMs(now),
	})
}

func (api *RecordingApi) control(c *gin.Context, action string, call func(context.Context, string) error) {
	id := c.Param("recordingId")
	if err := call(c.Request.Context(), id); err != nil {
		api.fail(c, err)
		return
	}
	now, _ := api.service.Now(id)
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"recordingId": id,
		"action":      action,
		"clockMs":     durationMs(now),
	})
}

// @Router /v1/recordings/{recordingId}/start [post]
func (api *RecordingApi) Start(c *gin.Context) { api.control(c, "start", api.service.Start) }

// @Router /v1/recordings/{recordingId}/pause [post]
func (api *RecordingApi) Pause(c *gin.Context) { api.control(c, "pause", api.service.Pause) }

// @Router /v1/recordings/{recordingId}/resume [post]
func (api *RecordingApi) Resume(c *gin.Context) { api.control(c, "resume", api.service.Resume) }

// Stop records the stop event; tracks finalize once a later sample arrives or
// the auto-stop timeout fires.
//
// @Router /v1/recordings/{recordingId}/stop [post]
func (api *RecordingApi) Stop(c *gin.Context) { api.control(c, "stop", api.service.Stop) }

// Get returns the live state of a recording.
//
// @Router /v1/recordings/{recordingId} [get]
// @Produce json
// @Success 200 {object} internal_store.RecordingState
// @Failure 404 {object} gin.H
func (api *RecordingApi) Get(c *gin.Context) {
	state, err := api.service.Get(c.Request.Context(), c.Param("recordingId"))
	if err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Append offers one captured sample. The body is the raw sample; ts and
// duration are milliseconds on the recording clock. Without ts the sample is
// stamped on arrival.
//
// @Router /v1/recordings/{recordingId}/tracks/{kind}/samples [post]
// @Param ts query number false "capture timestamp in milliseconds"
// @Param duration query number false "sample duration in milliseconds"
// @Success 202 {object} gin.H
// @Failure 400 {object} gin.H
// @Failure 503 {object} gin.H
func (api *RecordingApi) Append(c *gin.Context) {
	id := c.Param("recordingId")
	kind, err := internal_type.ParseTrackKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSampleSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unable to read sample"})
		return
	}
	if len(data) == 0 || len(data) > maxSampleSize {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "sample must be between 1 byte and 4MiB"})
		return
	}

	sample := internal_type.Sample{Data: data}
	if sample.Timestamp, err = api.timestamp(c, id); err != nil {
		api.badQuery(c, "ts", err)
		return
	}
	if sample.Duration, err = parseMs(c.Query("duration")); err != nil {
		api.badQuery(c, "duration", err)
		return
	}

	if err := api.service.Append(c.Request.Context(), id, kind, sample); err != nil {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

func (api *RecordingApi) timestamp(c *gin.Context, id string) (time.Duration, error) {
	if raw := c.Query("ts"); !utils.IsEmpty(raw) {
		return parseMs(raw)
	}
	return api.service.Now(id)
}

func (api *RecordingApi) badQuery(c *gin.Context, name string, err error) {
	if errors.Is(err, internal_service.ErrSessionNotFound) {
		api.fail(c, err)
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid " + name + ": " + err.Error()})
}

func parseMs(raw string) (time.Duration, error) {
	if utils.IsEmpty(raw) {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(v * float64(time.Millisecond)), nil
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
