// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	internal_session "github.com/rapidaai/recorder/api/recorder-api/internal/session"
	internal_sink "github.com/rapidaai/recorder/api/recorder-api/internal/sink"
	internal_timeline "github.com/rapidaai/recorder/api/recorder-api/internal/timeline"
	internal_track "github.com/rapidaai/recorder/api/recorder-api/internal/track"
	internal_type "github.com/rapidaai/recorder/api/recorder-api/internal/type"
	"github.com/rapidaai/recorder/pkg/commons"
)

type simulateOptions struct {
	out         string
	duration    time.Duration
	pauseAt     time.Duration
	pauseFor    time.Duration
	videoFPS    int
	audioFrame  time.Duration
	sampleRate  uint32
	audioLead   time.Duration
	videoTail   time.Duration
	captureLag  time.Duration
	logLevel    string
	autoStop    time.Duration
	noBalancing bool
}

func NewSimulateCmd() *cobra.Command {
	opts := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Record synthetic audio and video into local files",
		Long: "Runs one recording session against the real clock with two capture loops,\n" +
			"writes video.rtp and audio.wav under --out and prints the track summary.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := commons.NewApplicationLogger(
				commons.Name("recorder-simulate"),
				commons.Level(opts.logLevel),
				commons.Console(true),
			)
			if err != nil {
				return err
			}
			defer logger.Sync()

			summary, err := simulate(cmd.Context(), opts, logger)
			if summary != nil {
				printSummary(cmd.OutOrStdout(), summary)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.out, "out", "o", "recording", "Directory for video.rtp and audio.wav")
	f.DurationVarP(&opts.duration, "duration", "d", 3*time.Second, "Time between start and stop")
	f.DurationVar(&opts.pauseAt, "pause-at", 0, "Pause this long after start (0 disables)")
	f.DurationVar(&opts.pauseFor, "pause-for", 500*time.Millisecond, "How long the pause lasts")
	f.IntVar(&opts.videoFPS, "fps", 30, "Video frames per second")
	f.DurationVar(&opts.audioFrame, "audio-frame", 20*time.Millisecond, "Audio buffer duration")
	f.Uint32Var(&opts.sampleRate, "sample-rate", 16000, "Audio sample rate")
	f.DurationVar(&opts.audioLead, "audio-lead", 40*time.Millisecond, "Audio capture starts this much before the start event")
	f.DurationVar(&opts.videoTail, "video-tail", 100*time.Millisecond, "Video capture stops this much before audio after the stop event")
	f.DurationVar(&opts.captureLag, "capture-lag", 30*time.Millisecond, "Delay between capture and delivery of each buffer")
	f.DurationVar(&opts.autoStop, "auto-stop", internal_session.DefaultAutoStopTimeout, "Force finalization this long after stop")
	f.BoolVar(&opts.noBalancing, "no-balancing", false, "Record without coordinating video to audio")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level")
	return cmd
}

func simulate(ctx context.Context, opts *simulateOptions, logger commons.Logger) (*internal_session.Summary, error) {
	if opts.videoFPS <= 0 {
		return nil, errors.New("fps must be positive")
	}
	if err := os.MkdirAll(opts.out, 0o755); err != nil {
		return nil, err
	}

	clock := internal_timeline.NewMonotonicClock()
	session, err := internal_session.NewRecordingSession(logger, clock,
		internal_session.WithAutoStopTimeout(opts.autoStop),
		internal_session.WithDurationBalancing(!opts.noBalancing),
	)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	videoFile, err := os.Create(filepath.Join(opts.out, "video.rtp"))
	if err != nil {
		return nil, err
	}
	videoSink, err := internal_sink.NewRTPSink(videoFile, "vp8", logger)
	if err != nil {
		videoFile.Close()
		return nil, err
	}
	audioFile, err := os.Create(filepath.Join(opts.out, "audio.wav"))
	if err != nil {
		videoFile.Close()
		return nil, err
	}
	audioSink := internal_sink.NewWAVSink(audioFile, logger, internal_sink.WithSampleRate(opts.sampleRate))

	if _, err := session.AddTrack(internal_type.TrackKindVideo, videoSink); err != nil {
		return nil, err
	}
	if _, err := session.AddTrack(internal_type.TrackKindAudio, audioSink); err != nil {
		return nil, err
	}

	captureCtx, stopCapture := context.WithCancel(ctx)
	defer stopCapture()
	videoCtx, stopVideo := context.WithCancel(captureCtx)
	defer stopVideo()

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		frame := time.Second / time.Duration(opts.videoFPS)
		return capture(videoCtx, session, internal_type.TrackKindVideo, clock, frame, opts.captureLag, syntheticFrame)
	})
	g.Go(func() error {
		return capture(captureCtx, session, internal_type.TrackKindAudio, clock, opts.audioFrame, opts.captureLag, func(i int) []byte {
			return syntheticTone(i, opts.audioFrame, opts.sampleRate)
		})
	})

	if err := sleep(ctx, opts.audioLead); err != nil {
		return nil, err
	}
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	if err := runControls(ctx, session, opts); err != nil {
		return nil, err
	}
	if err := session.Stop(ctx); err != nil {
		return nil, err
	}

	// video delivery ends first, then audio keeps flushing buffers that were
	// captured before the stop until both tracks see a post-stop sample
	if err := sleep(ctx, opts.videoTail); err != nil {
		return nil, err
	}
	stopVideo()
	if err := sleep(ctx, opts.captureLag+2*opts.audioFrame); err != nil {
		return nil, err
	}
	stopCapture()
	if err := g.Wait(); err != nil {
		logger.Warnf("capture ended with error: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.autoStop+time.Second)
	defer cancel()
	return session.Wait(waitCtx)
}

func runControls(ctx context.Context, session *internal_session.RecordingSession, opts *simulateOptions) error {
	if opts.pauseAt <= 0 || opts.pauseAt >= opts.duration {
		return sleep(ctx, opts.duration)
	}
	if err := sleep(ctx, opts.pauseAt); err != nil {
		return err
	}
	if err := session.Pause(ctx); err != nil {
		return err
	}
	if err := sleep(ctx, opts.pauseFor); err != nil {
		return err
	}
	if err := session.Resume(ctx); err != nil {
		return err
	}
	return sleep(ctx, opts.duration-opts.pauseAt)
}

// capture stamps a buffer every period with the clock reading at capture time
// and hands it to the session lag later, like a device callback would.
func capture(
	ctx context.Context,
	session *internal_session.RecordingSession,
	kind internal_type.TrackKind,
	clock internal_timeline.Clock,
	period, lag time.Duration,
	payload func(int) []byte,
) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	pending := make([]internal_type.Sample, 0, 8)
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		now := clock.Now()
		pending = append(pending, internal_type.Sample{Data: payload(i), Timestamp: now, Duration: period})
		for len(pending) > 0 && now-pending[0].Timestamp >= lag {
			err := session.Append(kind, pending[0])
			pending = pending[1:]
			if err != nil && !errors.Is(err, internal_track.ErrSinkNotReady) {
				return fmt.Errorf("%s capture: %w", kind, err)
			}
		}
	}
}

func syntheticFrame(i int) []byte {
	frame := make([]byte, 1024)
	binary.BigEndian.PutUint32(frame, uint32(i))
	return frame
}

// syntheticTone is a 440Hz linear16 sine buffer continuing from buffer i.
func syntheticTone(i int, frame time.Duration, sampleRate uint32) []byte {
	n := int(frame.Seconds() * float64(sampleRate))
	out := make([]byte, 2*n)
	for s := 0; s < n; s++ {
		t := float64(i*n+s) / float64(sampleRate)
		v := int16(math.Sin(2*math.Pi*440*t) * 0.3 * math.MaxInt16)
		binary.LittleEndian.PutUint16(out[2*s:], uint16(v))
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func printSummary(w io.Writer, summary *internal_session.Summary) {
	fmt.Fprintf(w, "recording %s\n", summary.ID)
	for _, t := range summary.Tracks {
		fmt.Fprintf(w, "  %-5s target=%-10s actual=%-10s diff=%-10s written=%d paused=%d late=%d forced=%t\n",
			t.Kind,
			t.TargetDuration.Round(time.Millisecond),
			t.ActualDuration.Round(time.Millisecond),
			t.Difference.Round(time.Millisecond),
			t.Stats.Written,
			t.Stats.RejectedPaused,
			t.Stats.RejectedFinished,
			t.Forced,
		)
		if err := t.Err(); err != nil {
			fmt.Fprintf(w, "  %-5s error: %v\n", t.Kind, err)
		}
	}
}
