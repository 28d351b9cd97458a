// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_sink "github.com/rapidaai/recorder/api/recorder-api/internal/sink"
	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
	"github.com/rapidaai/recorder/pkg/commons"
)

func TestSimulate_WritesBothTracks(t *testing.T) {
	out := t.TempDir()
	opts := &simulateOptions{
		out:        out,
		duration:   300 * time.Millisecond,
		pauseAt:    100 * time.Millisecond,
		pauseFor:   50 * time.Millisecond,
		videoFPS:   30,
		audioFrame: 20 * time.Millisecond,
		sampleRate: 8000,
		audioLead:  20 * time.Millisecond,
		videoTail:  80 * time.Millisecond,
		captureLag: 10 * time.Millisecond,
		autoStop:   time.Second,
	}

	summary, err := simulate(context.Background(), opts, commons.NewNopLogger())
	require.NoError(t, err)
	require.Len(t, summary.Tracks, 2)

	video, ok := summary.Track(internal_type.TrackKindVideo)
	require.True(t, ok)
	assert.NotZero(t, video.Stats.Written)
	audio, ok := summary.Track(internal_type.TrackKindAudio)
	require.True(t, ok)
	assert.NotZero(t, audio.Stats.Written)

	wav, err := os.ReadFile(filepath.Join(out, "audio.wav"))
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), wav[:4])

	f, err := os.Open(filepath.Join(out, "video.rtp"))
	require.NoError(t, err)
	defer f.Close()
	packets, err := internal_sink.ReadRTPStream(f)
	require.NoError(t, err)
	assert.NotEmpty(t, packets)

	var buf bytes.Buffer
	printSummary(&buf, summary)
	assert.Contains(t, buf.String(), summary.ID)
	assert.Contains(t, buf.String(), "video")
}

func TestSimulate_RejectsZeroFPS(t *testing.T) {
	_, err := simulate(context.Background(), &simulateOptions{out: t.TempDir()}, commons.NewNopLogger())
	assert.Error(t, err)
}

func TestSyntheticTone(t *testing.T) {
	buf := syntheticTone(3, 20*time.Millisecond, 16000)
	assert.Len(t, buf, 640)
}

func TestRootCmd_Commands(t *testing.T) {
	root := NewRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["simulate"])
	assert.True(t, names["migrate"])
}
