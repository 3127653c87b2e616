package audio

import (
	"sync"

	"github.com/satindergrewal/segue/internal/timespan"
)

// Voice is one scheduled playback of a buffer on the output device. All
// times are hardware-clock times. A voice is one-shot: once started (or
// stopped) it cannot be started again; open a new one instead.
type Voice interface {
	// Start schedules playback to begin at hardware time at, reading the
	// buffer from offset. A start time already in the past is honored by
	// skipping ahead, so the voice stays aligned to the requested time.
	Start(at, offset timespan.TimeSpan) error
	SetGain(g float64)
	// RampGain moves linearly from the gain in effect at `at` to target over dur.
	RampGain(at, dur timespan.TimeSpan, target float64)
	Gain(at timespan.TimeSpan) float64
	Stop()
	Done() bool
}

// Source is the Device's Voice implementation.
type Source struct {
	mu      sync.Mutex
	buf     *Buffer
	started bool
	stopped bool
	ended   bool
	start   int64 // hardware sample where playback begins
	offset  int64 // buffer frame played at start
	gain    ramp
}

// NewSource wraps buf in an unstarted voice at unity gain.
func NewSource(buf *Buffer) *Source {
	return &Source{buf: buf, gain: flat(1)}
}

func (s *Source) Start(at, offset timespan.TimeSpan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return ErrSourceUsed
	}
	s.started = true
	s.start = sampleIndex(at)
	s.offset = sampleIndex(timespan.Max(offset, 0))
	if s.offset >= s.buf.Frames() {
		s.ended = true
	}
	return nil
}

func (s *Source) SetGain(g float64) {
	s.mu.Lock()
	s.gain = flat(g)
	s.mu.Unlock()
}

func (s *Source) RampGain(at, dur timespan.TimeSpan, target float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := sampleIndex(at)
	s.gain = ramp{
		start: start,
		n:     sampleIndex(timespan.Max(dur, 0)),
		from:  s.gain.value(start),
		to:    target,
	}
}

func (s *Source) Gain(at timespan.TimeSpan) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain.value(sampleIndex(at))
}

// Silent reports whether the gain has settled at zero by hardware time at.
func (s *Source) Silent(at timespan.TimeSpan) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := sampleIndex(at)
	return s.gain.settled(h) && s.gain.to == 0
}

func (s *Source) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Done is true once the source was stopped or played past the end of its
// buffer.
func (s *Source) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped || s.ended
}

// mixInto adds this source's contribution to an interleaved frame whose
// first sample frame sits at hardware sample first.
func (s *Source) mixInto(dst []float32, first int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped || s.ended {
		return
	}
	frames := s.buf.Frames()
	n := int64(len(dst) / Channels)
	for i := int64(0); i < n; i++ {
		h := first + i
		if h < s.start {
			continue
		}
		pos := s.offset + (h - s.start)
		if pos >= frames {
			s.ended = true
			return
		}
		g := float32(s.gain.value(h))
		if g == 0 {
			continue
		}
		for c := 0; c < Channels; c++ {
			dst[i*Channels+int64(c)] += s.buf.Data[pos*Channels+int64(c)] * g
		}
	}
	if s.offset+(first+n-s.start) >= frames {
		s.ended = true
	}
}
