// Package stream lets a sound designer listen to the preview mix from a
// browser: rendered device frames fan out to MP3 and WebRTC listeners.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// tapBuffer holds about three seconds of 20ms frames.
const tapBuffer = 150

// Monitor fans out frames from the preview device to any number of taps.
// A tap that falls behind loses frames; it never holds up the device.
type Monitor struct {
	mu   sync.RWMutex
	taps map[*Tap]struct{}

	frames  atomic.Int64
	dropped atomic.Int64
}

// Tap receives frames from the monitor.
type Tap struct {
	C       chan []int16
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// Done is closed when the tap is detached.
func (t *Tap) Done() <-chan struct{} { return t.done }

// Dropped counts frames this tap missed.
func (t *Tap) Dropped() int64 { return t.dropped.Load() }

func NewMonitor() *Monitor {
	return &Monitor{taps: make(map[*Tap]struct{})}
}

// Attach registers a new tap.
func (m *Monitor) Attach() *Tap {
	t := &Tap{
		C:    make(chan []int16, tapBuffer),
		done: make(chan struct{}),
	}
	m.mu.Lock()
	m.taps[t] = struct{}{}
	m.mu.Unlock()
	return t
}

// Detach removes a tap. Detaching twice is harmless.
func (m *Monitor) Detach(t *Tap) {
	m.mu.Lock()
	delete(m.taps, t)
	m.mu.Unlock()
	t.once.Do(func() { close(t.done) })
}

func (m *Monitor) TapCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.taps)
}

// Stats is a snapshot of the monitor counters.
type Stats struct {
	Taps    int   `json:"taps"`
	Frames  int64 `json:"frames"`
	Dropped int64 `json:"dropped"`
}

func (m *Monitor) Stats() Stats {
	return Stats{Taps: m.TapCount(), Frames: m.frames.Load(), Dropped: m.dropped.Load()}
}

// Run copies frames to every tap until ctx is done or frames closes.
func (m *Monitor) Run(ctx context.Context, frames <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			m.frames.Add(1)
			m.mu.RLock()
			for t := range m.taps {
				select {
				case t.C <- frame:
				default:
					t.dropped.Add(1)
					m.dropped.Add(1)
				}
			}
			m.mu.RUnlock()
		}
	}
}
