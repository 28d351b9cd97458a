// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_timeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rapidaai/recorder/pkg/commons"
)

var ErrInvalidFollower = errors.New("invalid follower timeline")

// Coordinator keeps a master timeline (usually video) at least as long as its
// followers (usually audio). The master accepts samples before its own start
// while any follower already wrote earlier, and keeps accepting after its
// stop while any follower wrote later. Otherwise a container would show a
// blank or frozen tail for the shorter track.
//
// The coordinator only reads followers, through Snapshot, under each
// follower's own lock. Lock order is master, coordinator, follower.
type Coordinator struct {
	mu            sync.RWMutex
	master        *TrackTimeline
	followers     []*TrackTimeline
	excludePaused bool
	logger        commons.Logger
}

type CoordinatorOption func(*Coordinator)

// WithExcludePausedFollowers ignores followers that are paused at the moment
// a master boundary is evaluated. By default a paused follower still extends
// the master with the timestamps it wrote before pausing.
func WithExcludePausedFollowers(exclude bool) CoordinatorOption {
	return func(c *Coordinator) { c.excludePaused = exclude }
}

func WithCoordinatorLogger(logger commons.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator attaches a new coordinator to master. A timeline can be the
// master of one coordinator and cannot be both a master and a follower.
func NewCoordinator(master *TrackTimeline, opts ...CoordinatorOption) (*Coordinator, error) {
	if master == nil {
		return nil, fmt.Errorf("coordinator requires a master timeline: %w", ErrInvalidFollower)
	}
	if master.clock == nil {
		return nil, fmt.Errorf("coordinator: %w", ErrClockUnavailable)
	}
	c := &Coordinator{
		master: master,
		logger: commons.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	master.mu.Lock()
	defer master.mu.Unlock()
	if master.coordinator != nil {
		return nil, fmt.Errorf("%s timeline already has a coordinator: %w", master.kind, ErrInvalidFollower)
	}
	if master.follower {
		return nil, fmt.Errorf("%s timeline is a follower and cannot be a master: %w", master.kind, ErrInvalidFollower)
	}
	master.coordinator = c
	return c, nil
}

// AddFollower registers a timeline whose first/last written timestamps bound
// the master.
func (c *Coordinator) AddFollower(follower *TrackTimeline) error {
	if follower == nil || follower == c.master {
		return fmt.Errorf("coordinator: follower must be a distinct timeline: %w", ErrInvalidFollower)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	follower.mu.Lock()
	defer follower.mu.Unlock()
	if follower.coordinator != nil {
		return fmt.Errorf("%s timeline is a master and cannot follow: %w", follower.kind, ErrInvalidFollower)
	}
	if follower.follower {
		return fmt.Errorf("%s timeline already follows a master: %w", follower.kind, ErrInvalidFollower)
	}
	follower.follower = true
	c.followers = append(c.followers, follower)
	c.logger.Infof("%s timeline now follows %s timeline", follower.kind, c.master.kind)
	return nil
}

func (c *Coordinator) Master() *TrackTimeline {
	return c.master
}

func (c *Coordinator) Followers() []*TrackTimeline {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*TrackTimeline, len(c.followers))
	copy(out, c.followers)
	return out
}

func (c *Coordinator) snapshots() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Snapshot, 0, len(c.followers))
	for _, f := range c.followers {
		snap := f.Snapshot()
		if c.excludePaused && snap.State == StatePaused {
			continue
		}
		out = append(out, snap)
	}
	return out
}

// extendsStart reports whether a follower already wrote a sample earlier
// than timestamp. Called with the master's lock held.
func (c *Coordinator) extendsStart(timestamp time.Duration) bool {
	for _, snap := range c.snapshots() {
		if snap.HasFirst && snap.First < timestamp {
			c.logger.Debugf("%s timeline: accepting %.3fs before start, %s follower began at %.3fs",
				c.master.kind, timestamp.Seconds(), snap.Kind, snap.First.Seconds())
			return true
		}
	}
	return false
}

// extendsStop reports whether a follower already wrote a sample later than
// timestamp. Called with the master's lock held.
func (c *Coordinator) extendsStop(timestamp time.Duration) bool {
	for _, snap := range c.snapshots() {
		if snap.HasLast && snap.Last > timestamp {
			c.logger.Debugf("%s timeline: accepting %.3fs after stop, %s follower reached %.3fs",
				c.master.kind, timestamp.Seconds(), snap.Kind, snap.Last.Seconds())
			return true
		}
	}
	return false
}
