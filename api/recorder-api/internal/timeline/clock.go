// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_timeline

import (
	"sync"
	"time"
)

// Clock is the monotonic time source shared by every track of one recording
// session. Sample timestamps and control events are both expressed as offsets
// on this clock so that they can be compared directly.
type Clock interface {
	Now() time.Duration
}

// MonotonicClock measures time since its origin using Go's monotonic reading.
type MonotonicClock struct {
	origin time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{origin: time.Now()}
}

func (c *MonotonicClock) Now() time.Duration {
	return time.Since(c.origin)
}

// Origin is the wall-clock instant that corresponds to Now() == 0.
func (c *MonotonicClock) Origin() time.Time {
	return c.origin
}

// At converts a wall-clock instant into a timestamp on this clock.
func (c *MonotonicClock) At(t time.Time) time.Duration {
	return t.Sub(c.origin)
}

// ManualClock only moves when told to. Tests and simulations use it to get
// deterministic timelines.
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

func NewManualClock(start time.Duration) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving it backwards is allowed so that tests can
// exercise out-of-order control calls.
func (c *ManualClock) Set(t time.Duration) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	return c.now
}
