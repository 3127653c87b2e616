// Package playclock maps a monotonic hardware clock onto logical track
// progress.
//
// The hardware clock never resets between playback sessions, so the clock
// never trusts an absolute hardware reading. Every session stores an origin
// pair (hardware time, logical progress) and progress is always derived as
//
//	originProgress + (now - originHardware)
package playclock

import (
	"sync"

	"github.com/satindergrewal/segue/internal/timespan"
)

// HardwareClock is a monotonic, never-resetting time source, such as the
// output device's rendered-sample counter.
type HardwareClock interface {
	Now() timespan.TimeSpan
}

// Reading is one sample of the clock.
type Reading struct {
	TrackID  string            `json:"trackId"`
	Progress timespan.TimeSpan `json:"progress"`
	Length   timespan.TimeSpan `json:"length"`
	Playing  bool              `json:"playing"`
	// Ended is true on the one Poll that observed the track reaching its
	// length. Peek never reports it.
	Ended bool              `json:"ended,omitempty"`
	At    timespan.TimeSpan `json:"-"` // hardware time of the sample
}

// Clock is safe for concurrent use: the engine polls it while the reporter
// peeks.
type Clock struct {
	hw HardwareClock

	mu             sync.Mutex
	trackID        string
	length         timespan.TimeSpan // <= 0 means unbounded
	originHardware timespan.TimeSpan
	originProgress timespan.TimeSpan
	playing        bool
	ended          bool
	endSignaled    bool
}

func New(hw HardwareClock) *Clock {
	return &Clock{hw: hw}
}

// Play starts a session on trackID at from.
func (c *Clock) Play(trackID string, length, from timespan.TimeSpan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackID = trackID
	c.length = length
	c.restartLocked(c.hw.Now(), from)
	c.playing = true
}

// Seek re-bases the session at p and leaves it paused until Resume, so a
// consumer never resumes into a half-torn-down transition.
func (c *Clock) Seek(p timespan.TimeSpan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restartLocked(c.hw.Now(), p)
	c.playing = false
}

// Stop freezes progress at its current value.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	now := c.hw.Now()
	c.originProgress = c.progressLocked(now)
	c.originHardware = now
	c.playing = false
}

// Resume continues from the frozen progress. It is a no-op while playing
// or after the track ended.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing || c.ended || c.trackID == "" {
		return
	}
	c.originHardware = c.hw.Now()
	c.playing = true
}

// Handoff switches the active track to trackID, which has been playing
// from progress since hardware time at. at may lie in the past.
func (c *Clock) Handoff(trackID string, length, progress, at timespan.TimeSpan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackID = trackID
	c.length = length
	c.restartLocked(at, progress)
	c.playing = true
}

func (c *Clock) restartLocked(at, progress timespan.TimeSpan) {
	c.originHardware = at
	c.originProgress = c.clampLocked(progress)
	c.ended = false
	c.endSignaled = false
}

func (c *Clock) clampLocked(p timespan.TimeSpan) timespan.TimeSpan {
	if p < 0 {
		return 0
	}
	if c.length > 0 && p > c.length {
		return c.length
	}
	return p
}

func (c *Clock) progressLocked(now timespan.TimeSpan) timespan.TimeSpan {
	if !c.playing {
		return c.originProgress
	}
	elapsed := now - c.originHardware
	if elapsed < 0 {
		elapsed = 0
	}
	return c.clampLocked(c.originProgress + elapsed)
}

// Poll samples the clock. When progress reaches the track length the
// session stops and Ended is reported exactly once.
func (c *Clock) Poll() Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.hw.Now()
	r := c.readLocked(now)
	if c.playing && c.length > 0 && r.Progress >= c.length {
		c.originProgress = c.length
		c.originHardware = now
		c.playing = false
		c.ended = true
		r.Playing = false
	}
	if c.ended && !c.endSignaled {
		c.endSignaled = true
		r.Ended = true
	}
	return r
}

// Peek samples the clock without consuming the end signal.
func (c *Clock) Peek() Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.readLocked(c.hw.Now())
	if c.length > 0 && r.Progress >= c.length {
		r.Playing = false
	}
	return r
}

func (c *Clock) readLocked(now timespan.TimeSpan) Reading {
	return Reading{
		TrackID:  c.trackID,
		Progress: c.progressLocked(now),
		Length:   c.length,
		Playing:  c.playing,
		At:       now,
	}
}
