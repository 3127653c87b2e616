package audio

import (
	"context"
	"sync"
	"time"

	"github.com/satindergrewal/segue/internal/logger"
	"github.com/satindergrewal/segue/internal/timespan"
)

// Device is the preview output. It renders one 20ms frame per tick by
// mixing every live voice, and counts rendered sample frames. That counter
// is the hardware clock: it only moves forward and never resets, pause and
// seek included.
type Device struct {
	frameCh chan []int16

	mu       sync.Mutex
	rendered int64 // sample frames rendered since the device was created
	sources  []*Source
	mix      []float32
}

// NewDevice creates an idle output device.
func NewDevice() *Device {
	return &Device{
		frameCh: make(chan []int16, 100),
		mix:     make([]float32, FrameSamples),
	}
}

// Frames returns the channel of rendered PCM frames (20ms each). Frames are
// dropped, not queued, when nobody keeps up.
func (d *Device) Frames() <-chan []int16 {
	return d.frameCh
}

// Now reads the hardware clock.
func (d *Device) Now() timespan.TimeSpan {
	d.mu.Lock()
	defer d.mu.Unlock()
	return timespan.FromSamples(d.rendered, SampleRate)
}

// Open creates a voice for buf. A nil buffer means the decode has not
// completed.
func (d *Device) Open(buf *Buffer) (Voice, error) {
	if buf == nil {
		return nil, ErrNotReady
	}
	s := NewSource(buf)
	d.mu.Lock()
	d.sources = append(d.sources, s)
	d.mu.Unlock()
	return s, nil
}

// ActiveVoices counts voices that have not finished.
func (d *Device) ActiveVoices() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.sources {
		if !s.Done() {
			n++
		}
	}
	return n
}

// Render mixes and returns the next frame, advancing the hardware clock by
// FrameSize sample frames. Finished voices are released.
func (d *Device) Render() []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	clear(d.mix)
	live := d.sources[:0]
	for _, s := range d.sources {
		s.mixInto(d.mix, d.rendered)
		if !s.Done() {
			live = append(live, s)
		}
	}
	clear(d.sources[len(live):])
	d.sources = live
	d.rendered += FrameSize

	frame := make([]int16, FrameSamples)
	for i, v := range d.mix {
		frame[i] = Clip(v)
	}
	return frame
}

// Run renders frames in real time until ctx is cancelled.
func (d *Device) Run(ctx context.Context) {
	defer close(d.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	logger.Info("output device running", logger.Int("sampleRate", SampleRate), logger.Duration("frame", FrameDuration))
	dropped := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("output device stopped", logger.Int("droppedFrames", dropped))
			return
		case <-ticker.C:
		}

		frame := d.Render()
		select {
		case d.frameCh <- frame:
		default:
			dropped++
		}
	}
}
