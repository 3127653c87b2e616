package audio

import (
	"errors"
	"time"

	"github.com/satindergrewal/segue/internal/timespan"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

var (
	// ErrNotReady is returned when an asset's decoded buffer is not
	// available yet, or its decode failed.
	ErrNotReady = errors.New("audio resource not ready")
	// ErrSourceUsed is returned when a one-shot source is started twice.
	ErrSourceUsed = errors.New("source already started")
)

// Buffer is a fully decoded asset: interleaved stereo float32 PCM at
// SampleRate. Buffers are shared read-only between sources.
type Buffer struct {
	Data []float32
}

// Frames returns the number of sample frames (one sample per channel).
func (b *Buffer) Frames() int64 {
	if b == nil {
		return 0
	}
	return int64(len(b.Data) / Channels)
}

// Length is the playable duration of the buffer.
func (b *Buffer) Length() timespan.TimeSpan {
	return timespan.FromSamples(b.Frames(), SampleRate)
}

// sampleIndex converts a span to a sample-frame index at SampleRate.
func sampleIndex(t timespan.TimeSpan) int64 { return t.Samples(SampleRate) }
