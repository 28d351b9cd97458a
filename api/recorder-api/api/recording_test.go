// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package recording_api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/recorder/api/recorder-api/config"
	internal_service "github.com/rapidaai/recorder/api/recorder-api/internal/service"
	internal_session "github.com/rapidaai/recorder/api/recorder-api/internal/session"
	internal_store "github.com/rapidaai/recorder/api/recorder-api/internal/store"
	internal_track "github.com/rapidaai/recorder/api/recorder-api/internal/track"
	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
	"github.com/rapidaai/recorder/pkg/commons"
)

type appended struct {
	id     string
	kind   internal_type.TrackKind
	sample internal_type.Sample
}

type fakeService struct {
	mu        sync.Mutex
	controls  []string
	appended  []appended
	appendErr error
	now       time.Duration
}

func (f *fakeService) Create(context.Context) (*internal_store.Recording, error) {
	return &internal_store.Recording{RecordingID: "rec-1", Status: internal_store.StatusCreated}, nil
}

func (f *fakeService) control(id, action string) error {
	if id != "rec-1" {
		return fmt.Errorf("%s: %w", id, internal_service.ErrSessionNotFound)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, action)
	return nil
}

func (f *fakeService) Start(_ context.Context, id string) error  { return f.control(id, "start") }
func (f *fakeService) Pause(_ context.Context, id string) error  { return f.control(id, "pause") }
func (f *fakeService) Resume(_ context.Context, id string) error { return f.control(id, "resume") }
func (f *fakeService) Stop(_ context.Context, id string) error   { return f.control(id, "stop") }

func (f *fakeService) Append(_ context.Context, id string, kind internal_type.TrackKind, sample internal_type.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, appended{id: id, kind: kind, sample: sample})
	return nil
}

func (f *fakeService) Now(id string) (time.Duration, error) {
	if id != "rec-1" {
		return 0, fmt.Errorf("%s: %w", id, internal_service.ErrSessionNotFound)
	}
	return f.now, nil
}

func (f *fakeService) Get(_ context.Context, id string) (*internal_store.RecordingState, error) {
	if id != "rec-1" {
		return nil, internal_service.ErrSessionNotFound
	}
	return &internal_store.RecordingState{ID: id, Status: internal_store.StatusRecording}, nil
}

func (f *fakeService) Wait(context.Context, string) (*internal_session.Summary, error) {
	return nil, nil
}

func (f *fakeService) LiveTrack(string, internal_type.TrackKind) (*webrtc.TrackLocalStaticSample, error) {
	return nil, internal_service.ErrLiveMonitorDisabled
}

func (f *fakeService) Shutdown(context.Context) error { return nil }

func (f *fakeService) samples() []appended {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]appended(nil), f.appended...)
}

func newTestRouter(svc *fakeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	api := NewRecordingApi(&config.AppConfig{}, commons.NewNopLogger(), svc)
	g := engine.Group("v1/recordings")
	g.POST("", api.Create)
	g.GET("/:recordingId", api.Get)
	g.POST("/:recordingId/start", api.Start)
	g.POST("/:recordingId/pause", api.Pause)
	g.POST("/:recordingId/resume", api.Resume)
	g.POST("/:recordingId/stop", api.Stop)
	g.POST("/:recordingId/tracks/:kind/samples", api.Append)
	g.GET("/:recordingId/tracks/:kind/stream", api.Stream)
	return engine
}

func do(engine *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	engine.ServeHTTP(w, req)
	return w
}

func TestCreate(t *testing.T) {
	svc := &fakeService{now: 1500 * time.Millisecond}
	w := do(newTestRouter(svc), http.MethodPost, "/v1/recordings", nil)

	require.Equal(t, http.StatusCreated, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rec-1", body["recordingId"])
	assert.Equal(t, 1500.0, body["clockMs"])
}

func TestControl(t *testing.T) {
	svc := &fakeService{}
	engine := newTestRouter(svc)
	for _, action := range []string{"start", "pause", "resume", "stop"} {
		w := do(engine, http.MethodPost, "/v1/recordings/rec-1/"+action, nil)
		assert.Equal(t, http.StatusOK, w.Code, action)
	}
	assert.Equal(t, []string{"start", "pause", "resume", "stop"}, svc.controls)

	w := do(engine, http.MethodPost, "/v1/recordings/missing/start", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGet(t *testing.T) {
	engine := newTestRouter(&fakeService{})
	w := do(engine, http.MethodGet, "/v1/recordings/rec-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"recording"`)

	w = do(engine, http.MethodGet, "/v1/recordings/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAppend(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       []byte
		appendErr  error
		wantStatus int
		wantTs     time.Duration
		wantDur    time.Duration
	}{
		{"explicit timestamp", "/v1/recordings/rec-1/tracks/video/samples?ts=120.5&duration=33", []byte{0x01}, nil, http.StatusAccepted, 120500 * time.Microsecond, 33 * time.Millisecond},
		{"negative pre-roll timestamp", "/v1/recordings/rec-1/tracks/audio/samples?ts=-50", []byte{0x01}, nil, http.StatusAccepted, -50 * time.Millisecond, 0},
		{"stamped on arrival", "/v1/recordings/rec-1/tracks/audio/samples", []byte{0x01}, nil, http.StatusAccepted, 2 * time.Second, 0},
		{"blank timestamp is stamped on arrival", "/v1/recordings/rec-1/tracks/audio/samples?ts=%20%20", []byte{0x01}, nil, http.StatusAccepted, 2 * time.Second, 0},
		{"unknown kind", "/v1/recordings/rec-1/tracks/subtitle/samples", []byte{0x01}, nil, http.StatusBadRequest, 0, 0},
		{"empty body", "/v1/recordings/rec-1/tracks/audio/samples?ts=1", nil, nil, http.StatusBadRequest, 0, 0},
		{"bad timestamp", "/v1/recordings/rec-1/tracks/audio/samples?ts=abc", []byte{0x01}, nil, http.StatusBadRequest, 0, 0},
		{"unknown recording", "/v1/recordings/missing/tracks/audio/samples", []byte{0x01}, nil, http.StatusNotFound, 0, 0},
		{"sink not ready", "/v1/recordings/rec-1/tracks/audio/samples?ts=1", []byte{0x01}, internal_track.ErrSinkNotReady, http.StatusServiceUnavailable, 0, 0},
		{"sink write failed", "/v1/recordings/rec-1/tracks/audio/samples?ts=1", []byte{0x01}, internal_track.ErrSinkWriteFailed, http.StatusInternalServerError, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{now: 2 * time.Second, appendErr: tt.appendErr}
			w := do(newTestRouter(svc), http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusAccepted {
				return
			}
			samples := svc.samples()
			require.Len(t, samples, 1)
			assert.Equal(t, tt.wantTs, samples[0].sample.Timestamp)
			assert.Equal(t, tt.wantDur, samples[0].sample.Duration)
			assert.Equal(t, tt.body, samples[0].sample.Data)
		})
	}
}

func TestFrameCodec(t *testing.T) {
	sample := internal_type.Sample{Data: []byte{0xaa, 0xbb}, Timestamp: -20 * time.Millisecond, Duration: 10 * time.Millisecond}
	got, err := DecodeFrame(EncodeFrame(sample))
	require.NoError(t, err)
	assert.Equal(t, sample, got)

	_, err = DecodeFrame(make([]byte, frameHeaderSize))
	assert.Error(t, err)
}

func TestStream(t *testing.T) {
	svc := &fakeService{}
	server := httptest.NewServer(newTestRouter(svc))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/recordings/rec-1/tracks/video/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		frame := EncodeFrame(internal_type.Sample{
			Data:      []byte{byte(i)},
			Timestamp: time.Duration(i) * 33 * time.Millisecond,
		})
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}))

	var reply streamError
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, reply.Error, "too short")

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	samples := svc.samples()
	require.Len(t, samples, 3)
	assert.Equal(t, internal_type.TrackKindVideo, samples[2].kind)
	assert.Equal(t, 66*time.Millisecond, samples[2].sample.Timestamp)
}

func TestStream_UnknownRecording(t *testing.T) {
	w := do(newTestRouter(&fakeService{}), http.MethodGet, "/v1/recordings/missing/tracks/video/stream", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
