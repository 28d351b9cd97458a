// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package recording_api

import (
	"encoding/binary"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	internal_track "github.com/rapidaai/recorder/api/recorder-api/internal/track"
	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
)

// frameHeaderSize is the big-endian int64 timestamp and int64 duration, both
// in nanoseconds, that prefix every binary stream message.
const frameHeaderSize = 16

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type streamError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// DecodeFrame splits a stream message into a sample.
func DecodeFrame(msg []byte) (internal_type.Sample, error) {
	if len(msg) <= frameHeaderSize {
		return internal_type.Sample{}, errors.New("frame too short")
	}
	return internal_type.Sample{
		Timestamp: time.Duration(int64(binary.BigEndian.Uint64(msg[0:8]))),
		Duration:  time.Duration(int64(binary.BigEndian.Uint64(msg[8:16]))),
		Data:      msg[frameHeaderSize:],
	}, nil
}

// EncodeFrame is the inverse of DecodeFrame.
func EncodeFrame(sample internal_type.Sample) []byte {
	msg := make([]byte, frameHeaderSize+len(sample.Data))
	binary.BigEndian.PutUint64(msg[0:8], uint64(sample.Timestamp))
	binary.BigEndian.PutUint64(msg[8:16], uint64(sample.Duration))
	copy(msg[frameHeaderSize:], sample.Data)
	return msg
}

// Stream ingests samples of one track over a WebSocket. Each binary message
// is one sample framed by EncodeFrame. Per-sample failures are reported back
// as text messages and never close the stream.
//
// @Router /v1/recordings/{recordingId}/tracks/{kind}/stream [get]
// @Success 101 "Switching Protocols"
// @Failure 400 {object} gin.H
func (api *RecordingApi) Stream(c *gin.Context) {
	id := c.Param("recordingId")
	kind, err := internal_type.ParseTrackKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if _, err := api.service.Now(id); err != nil {
		api.fail(c, err)
		return
	}

	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		api.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxSampleSize + frameHeaderSize)

	ctx := c.Request.Context()
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				api.logger.Debugf("%s stream of %s closed: %v", kind, id, err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		sample, err := DecodeFrame(msg)
		if err == nil {
			err = api.service.Append(ctx, id, kind, sample)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, internal_track.ErrSinkNotReady) {
			api.logger.Debugf("%s stream of %s: %v", kind, id, err)
		}
		if werr := conn.WriteJSON(streamError{Type: "error", Error: err.Error()}); werr != nil {
			return
		}
	}
}
