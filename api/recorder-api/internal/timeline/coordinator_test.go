// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_timeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCoordinatedPair(t *testing.T, clock *ManualClock, opts ...CoordinatorOption) (*TrackTimeline, *TrackTimeline, *Coordinator) {
	t.Helper()
	video := newTestTimeline(t, internal_type.TrackKindVideo, clock)
	audio := newTestTimeline(t, internal_type.TrackKindAudio, clock)
	c, err := NewCoordinator(video, opts...)
	require.NoError(t, err)
	require.NoError(t, c.AddFollower(audio))
	return video, audio, c
}

func TestScenario_MasterExtendsBeforeStartToFollower(t *testing.T) {
	clock := NewManualClock(0)
	video, audio, _ := newCoordinatedPair(t, clock)

	clock.Set(0)
	require.NoError(t, video.Start())
	require.NoError(t, audio.Start())
	clock.Set(ms(1000))
	require.NoError(t, video.Stop())
	require.NoError(t, audio.Stop())

	require.Equal(t, Accepted, audio.IsTimestampWithinTimeline(ms(-50)), "follower pre-roll")
	first, ok := audio.FirstTimestamp()
	require.True(t, ok)
	require.Equal(t, ms(-50), first)

	require.Equal(t, Accepted, video.IsTimestampWithinTimeline(ms(-10)), "master pre-roll")
	assert.Equal(t, Accepted, video.IsTimestampWithinTimeline(ms(-20)), "reaches back to the follower")
	assert.Equal(t, RejectedBeforeStart, video.IsTimestampWithinTimeline(ms(-60)), "earlier than every follower")
}

func TestMaster_KeepsOwnPreRollWithoutFollowerSamples(t *testing.T) {
	clock := NewManualClock(0)
	video, _, _ := newCoordinatedPair(t, clock)
	require.NoError(t, video.Start())

	assert.Equal(t, Accepted, video.IsTimestampWithinTimeline(ms(-20)), "first sample is pre-roll")
	assert.Equal(t, RejectedBeforeStart, video.IsTimestampWithinTimeline(ms(-10)),
		"no follower sample to extend to")
}

func TestMaster_ExtendsAfterStopUntilFollowerLast(t *testing.T) {
	clock := NewManualClock(0)
	video, audio, _ := newCoordinatedPair(t, clock)

	require.NoError(t, video.Start())
	require.NoError(t, audio.Start())
	clock.Set(ms(1000))
	require.NoError(t, video.Stop())
	clock.Set(ms(1200))
	require.NoError(t, audio.Stop())

	require.Equal(t, Accepted, audio.IsTimestampWithinTimeline(ms(1100)))

	assert.Equal(t, Accepted, video.IsTimestampWithinTimeline(ms(1050)))
	assert.False(t, video.IsFinished(), "extension must not finalize")
	assert.Equal(t, RejectedFinished, video.IsTimestampWithinTimeline(ms(1150)))
	assert.True(t, video.IsFinished())

	last, _ := video.LastTimestamp()
	assert.Equal(t, ms(1050), last)
}

func TestMaster_PausedAtStopIsNotExtended(t *testing.T) {
	clock := NewManualClock(0)
	video, audio, _ := newCoordinatedPair(t, clock)

	require.NoError(t, video.Start())
	require.NoError(t, audio.Start())
	require.Equal(t, Accepted, audio.IsTimestampWithinTimeline(ms(900)))
	clock.Set(ms(500))
	require.NoError(t, video.Pause())
	clock.Set(ms(600))
	require.NoError(t, video.Stop())

	assert.Equal(t, RejectedFinished, video.IsTimestampWithinTimeline(ms(700)))
}

func TestFollowerPausePolicy(t *testing.T) {
	tests := []struct {
		name          string
		excludePaused bool
		expected      Decision
	}{
		{"paused follower still extends by default", false, Accepted},
		{"paused follower ignored when excluded", true, RejectedFinished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewManualClock(0)
			video, audio, _ := newCoordinatedPair(t, clock, WithExcludePausedFollowers(tt.excludePaused))

			require.NoError(t, video.Start())
			require.NoError(t, audio.Start())
			require.Equal(t, Accepted, audio.IsTimestampWithinTimeline(ms(1100)))
			clock.Set(ms(1000))
			require.NoError(t, video.Stop())
			clock.Set(ms(1150))
			require.NoError(t, audio.Pause())
			require.Equal(t, StatePaused, audio.State())

			assert.Equal(t, tt.expected, video.IsTimestampWithinTimeline(ms(1050)))
		})
	}
}

func TestFollowerPausePolicy_StartBoundary(t *testing.T) {
	clock := NewManualClock(0)
	video, audio, _ := newCoordinatedPair(t, clock, WithExcludePausedFollowers(true))

	require.NoError(t, video.Start())
	require.NoError(t, audio.Start())
	require.Equal(t, Accepted, audio.IsTimestampWithinTimeline(ms(-50)))
	require.Equal(t, Accepted, video.IsTimestampWithinTimeline(ms(-5)), "master pre-roll")
	clock.Set(ms(10))
	require.NoError(t, audio.Pause())

	assert.Equal(t, RejectedBeforeStart, video.IsTimestampWithinTimeline(ms(-20)))

	clock.Set(ms(20))
	require.NoError(t, audio.Resume())
	assert.Equal(t, Accepted, video.IsTimestampWithinTimeline(ms(-10)))
}

func TestFollower_IsNotAffectedByMaster(t *testing.T) {
	clock := NewManualClock(0)
	video, audio, _ := newCoordinatedPair(t, clock)
	require.NoError(t, video.Start())
	require.NoError(t, audio.Start())
	require.Equal(t, Accepted, video.IsTimestampWithinTimeline(ms(10)))

	// the follower keeps its own single-sample pre-roll rule
	assert.Equal(t, Accepted, audio.IsTimestampWithinTimeline(ms(-30)))
	assert.Equal(t, RejectedBeforeStart, audio.IsTimestampWithinTimeline(ms(-20)))
}

func TestCoordinator_Validation(t *testing.T) {
	clock := NewManualClock(0)
	video := newTestTimeline(t, internal_type.TrackKindVideo, clock)
	audio := newTestTimeline(t, internal_type.TrackKindAudio, clock)
	other := newTestTimeline(t, internal_type.TrackKindAudio, clock)

	_, err := NewCoordinator(nil)
	assert.True(t, errors.Is(err, ErrInvalidFollower))
	_, err = NewCoordinator(&TrackTimeline{})
	assert.True(t, errors.Is(err, ErrClockUnavailable))

	c, err := NewCoordinator(video)
	require.NoError(t, err)
	assert.Same(t, video, c.Master())

	_, err = NewCoordinator(video)
	assert.True(t, errors.Is(err, ErrInvalidFollower), "one coordinator per master")

	assert.True(t, errors.Is(c.AddFollower(nil), ErrInvalidFollower))
	assert.True(t, errors.Is(c.AddFollower(video), ErrInvalidFollower))
	require.NoError(t, c.AddFollower(audio))
	assert.True(t, errors.Is(c.AddFollower(audio), ErrInvalidFollower), "already a follower")

	_, err = NewCoordinator(audio)
	assert.True(t, errors.Is(err, ErrInvalidFollower), "a follower cannot become a master")

	c2, err := NewCoordinator(other)
	require.NoError(t, err)
	assert.True(t, errors.Is(c2.AddFollower(video), ErrInvalidFollower), "a master cannot follow")

	assert.Len(t, c.Followers(), 1)
}

func TestCoordinator_ConcurrentMasterAndFollower(t *testing.T) {
	clock := NewMonotonicClock()
	video, err := NewTrackTimeline(internal_type.TrackKindVideo, clock)
	require.NoError(t, err)
	audio, err := NewTrackTimeline(internal_type.TrackKindAudio, clock)
	require.NoError(t, err)
	c, err := NewCoordinator(video)
	require.NoError(t, err)
	require.NoError(t, c.AddFollower(audio))

	require.NoError(t, video.Start())
	require.NoError(t, audio.Start())

	var wg sync.WaitGroup
	for _, tl := range []*TrackTimeline{video, audio} {
		wg.Add(1)
		go func(tl *TrackTimeline) {
			defer wg.Done()
			deadline := time.Now().Add(2 * time.Second)
			for !tl.IsFinished() && time.Now().Before(deadline) {
				tl.IsTimestampWithinTimeline(clock.Now())
			}
		}(tl)
	}

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, video.Pause())
	require.NoError(t, audio.Pause())
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, video.Resume())
	require.NoError(t, audio.Resume())
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, audio.Stop())
	require.Eventually(t, audio.IsFinished, time.Second, time.Millisecond)
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, video.Stop())
	wg.Wait()

	assert.True(t, audio.IsFinished())
	assert.True(t, video.IsFinished())
	videoLast, _ := video.LastTimestamp()
	audioLast, _ := audio.LastTimestamp()
	assert.GreaterOrEqual(t, videoLast, audioLast, "master never finishes shorter than its follower")
}
