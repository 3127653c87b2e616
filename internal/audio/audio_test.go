package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/satindergrewal/segue/internal/timespan"
)

// constBuffer returns a buffer of n sample frames with every sample = v.
func constBuffer(n int, v float32) *Buffer {
	b := &Buffer{Data: make([]float32, n*Channels)}
	for i := range b.Data {
		b.Data[i] = v
	}
	return b
}

// rampBuffer stores each frame's own index so reads reveal the position.
func rampBuffer(n int) *Buffer {
	b := &Buffer{Data: make([]float32, n*Channels)}
	for i := 0; i < n; i++ {
		b.Data[i*2] = float32(i) / 32768
		b.Data[i*2+1] = float32(i) / 32768
	}
	return b
}

func frames(n int64) timespan.TimeSpan { return timespan.FromSamples(n, SampleRate) }

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
}

func TestBufferLength(t *testing.T) {
	b := constBuffer(SampleRate*3, 0)
	if b.Frames() != SampleRate*3 {
		t.Errorf("Frames = %d", b.Frames())
	}
	if b.Length() != timespan.FromSeconds(3) {
		t.Errorf("Length = %s", b.Length())
	}
	var nilBuf *Buffer
	if nilBuf.Frames() != 0 {
		t.Error("nil buffer should have no frames")
	}
}

// --- Gain ramps ---

func TestRampValues(t *testing.T) {
	r := ramp{start: 100, n: 100, from: 1, to: 0}
	tests := []struct {
		at   int64
		want float64
	}{
		{0, 1},
		{100, 1},
		{150, 0.5},
		{175, 0.25},
		{200, 0},
		{1000, 0},
	}
	for _, tt := range tests {
		if got := r.value(tt.at); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("value(%d) = %v, want %v", tt.at, got, tt.want)
		}
	}
	if r.settled(199) || !r.settled(200) {
		t.Error("settled boundary wrong")
	}
}

func TestRampZeroDurationIsStep(t *testing.T) {
	r := ramp{start: 10, n: 0, from: 0, to: 1}
	if r.value(10) != 0 || r.value(11) != 1 {
		t.Errorf("step ramp = %v, %v", r.value(10), r.value(11))
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{0.5, 16384},
		{-1, -32768},
		{1, 32767},
		{2, 32767},
		{-3, -32768},
	}
	for _, tt := range tests {
		if got := Clip(tt.in); got != tt.want {
			t.Errorf("Clip(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// --- SamplesToBytes / round-trip ---

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	buf := SamplesToBytes(samples)
	if len(buf) != len(samples)*2 {
		t.Fatalf("SamplesToBytes length = %d, want %d", len(buf), len(samples)*2)
	}

	// 256 = 0x0100 -> bytes [0x00, 0x01]
	idx := 5 * 2
	if buf[idx] != 0x00 || buf[idx+1] != 0x01 {
		t.Errorf("Sample 256 encoded as [%02x, %02x], want [00, 01]", buf[idx], buf[idx+1])
	}
}

func TestBytesToBufferRoundTrip(t *testing.T) {
	original := []int16{0, 1, -1, 32767, -32768, 12345, -6789}
	pcm := SamplesToBytes(original)
	got := bytesToBuffer(pcm)
	// the odd trailing sample is not a whole stereo frame
	if len(got.Data) != 6 {
		t.Fatalf("len = %d, want 6", len(got.Data))
	}
	for i, v := range got.Data {
		if Clip(v) != original[i] {
			t.Errorf("sample[%d] = %d, want %d", i, Clip(v), original[i])
		}
	}
}

// --- Source ---

func TestSourceOneShot(t *testing.T) {
	s := NewSource(constBuffer(10, 0))
	if err := s.Start(0, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(0, 0); !errors.Is(err, ErrSourceUsed) {
		t.Errorf("second Start: err = %v, want ErrSourceUsed", err)
	}

	stopped := NewSource(constBuffer(10, 0))
	stopped.Stop()
	if err := stopped.Start(0, 0); !errors.Is(err, ErrSourceUsed) {
		t.Errorf("Start after Stop: err = %v", err)
	}
	if !stopped.Done() {
		t.Error("stopped source not done")
	}
}

func TestSourceScheduledStartAndOffset(t *testing.T) {
	s := NewSource(rampBuffer(1000))
	// start at hardware frame 4 reading buffer frame 100
	if err := s.Start(frames(4), frames(100)); err != nil {
		t.Fatal(err)
	}
	dst := make([]float32, 8*Channels)
	s.mixInto(dst, 0)
	for i := 0; i < 4; i++ {
		if dst[i*2] != 0 {
			t.Errorf("frame %d sounded before start: %v", i, dst[i*2])
		}
	}
	for i := 4; i < 8; i++ {
		want := float32(100+i-4) / 32768
		if dst[i*2] != want {
			t.Errorf("frame %d = %v, want %v", i, dst[i*2]*32768, want*32768)
		}
	}
}

func TestSourceLateStartSkipsAhead(t *testing.T) {
	s := NewSource(rampBuffer(1000))
	_ = s.Start(frames(0), frames(10))
	dst := make([]float32, 2*Channels)
	// first render happens at hardware frame 50
	s.mixInto(dst, 50)
	if got := dst[0] * 32768; got != 60 {
		t.Errorf("first sample reads buffer frame %v, want 60", got)
	}
}

func TestSourceEndsAtBufferEnd(t *testing.T) {
	s := NewSource(constBuffer(5, 0.5))
	_ = s.Start(0, 0)
	dst := make([]float32, 8*Channels)
	s.mixInto(dst, 0)
	if !s.Done() {
		t.Error("source should be done after its buffer ran out")
	}
	if dst[4*2] != 0.5 || dst[5*2] != 0 {
		t.Errorf("tail = %v %v", dst[4*2], dst[5*2])
	}

	past := NewSource(constBuffer(5, 0.5))
	_ = past.Start(0, frames(5))
	if !past.Done() {
		t.Error("offset at buffer end should finish immediately")
	}
}

func TestSourceGainRamp(t *testing.T) {
	s := NewSource(constBuffer(1000, 1))
	_ = s.Start(0, 0)
	s.RampGain(frames(0), frames(100), 0)
	if g := s.Gain(frames(50)); math.Abs(g-0.5) > 1e-9 {
		t.Errorf("Gain(50) = %v", g)
	}
	if s.Silent(frames(99)) || !s.Silent(frames(100)) {
		t.Error("Silent boundary wrong")
	}

	// a new ramp starts from the value in effect at its start time
	s.RampGain(frames(50), frames(50), 1)
	if g := s.Gain(frames(50)); math.Abs(g-0.5) > 1e-9 {
		t.Errorf("re-ramp origin = %v, want 0.5", g)
	}
	if g := s.Gain(frames(100)); g != 1 {
		t.Errorf("re-ramp end = %v", g)
	}

	s.SetGain(0.25)
	if g := s.Gain(frames(10_000)); g != 0.25 {
		t.Errorf("SetGain = %v", g)
	}
}

// --- Device ---

func TestDeviceClockAdvances(t *testing.T) {
	d := NewDevice()
	if d.Now() != 0 {
		t.Fatalf("fresh device at %s", d.Now())
	}
	for i := 0; i < 50; i++ {
		d.Render()
	}
	if d.Now() != timespan.FromSeconds(1) {
		t.Errorf("after 50 frames Now = %s, want 1s", d.Now())
	}
}

func TestDeviceOpenNotReady(t *testing.T) {
	d := NewDevice()
	if _, err := d.Open(nil); !errors.Is(err, ErrNotReady) {
		t.Errorf("Open(nil) err = %v", err)
	}
}

func TestDeviceMixesAndReleases(t *testing.T) {
	d := NewDevice()
	a, _ := d.Open(constBuffer(FrameSize, 0.25))
	b, _ := d.Open(constBuffer(FrameSize*3, 0.25))
	_ = a.Start(0, 0)
	_ = b.Start(0, 0)

	frame := d.Render()
	if frame[0] != Clip(0.5) {
		t.Errorf("mixed sample = %d, want %d", frame[0], Clip(0.5))
	}
	if d.ActiveVoices() != 1 {
		t.Errorf("ActiveVoices = %d, want 1 after a finished", d.ActiveVoices())
	}

	b.Stop()
	frame = d.Render()
	if frame[0] != 0 || d.ActiveVoices() != 0 {
		t.Errorf("stopped voice still audible: %d, active %d", frame[0], d.ActiveVoices())
	}
}

func TestDeviceRunStops(t *testing.T) {
	d := NewDevice()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	<-d.Frames()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if d.Now() <= 0 {
		t.Error("clock did not advance while running")
	}
}

// --- Decode ---

// wavBytes builds a 16-bit PCM WAV with every sample set to v.
func wavBytes(rate, channels, frames int, v int16) []byte {
	var b bytes.Buffer
	dataLen := frames * channels * 2
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+dataLen))
	b.WriteString("WAVEfmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(channels))
	binary.Write(&b, binary.LittleEndian, uint32(rate))
	binary.Write(&b, binary.LittleEndian, uint32(rate*channels*2))
	binary.Write(&b, binary.LittleEndian, uint16(channels*2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(dataLen))
	for i := 0; i < frames*channels; i++ {
		binary.Write(&b, binary.LittleEndian, v)
	}
	return b.Bytes()
}

func TestDecodeWAV(t *testing.T) {
	data := wavBytes(SampleRate, 2, SampleRate/2, 16384)
	buf, err := Decode(context.Background(), bytes.NewReader(data), "calm.WAV", "ffmpeg")
	if err != nil {
		t.Fatal(err)
	}
	if buf.Length() != timespan.FromMilliseconds(500) {
		t.Errorf("Length = %s, want 500ms", buf.Length())
	}
	if math.Abs(float64(buf.Data[10])-0.5) > 1e-3 {
		t.Errorf("sample = %v, want ~0.5", buf.Data[10])
	}
}

func TestDecodeWAVResamplesMono(t *testing.T) {
	data := wavBytes(24000, 1, 24000, 8192)
	buf, err := Decode(context.Background(), bytes.NewReader(data), "mono.wav", "ffmpeg")
	if err != nil {
		t.Fatal(err)
	}
	// the resampler may be off by a few frames at the tail
	if diff := SampleRate - buf.Frames(); diff < -64 || diff > 64 {
		t.Errorf("Frames = %d, want about %d", buf.Frames(), SampleRate)
	}
	mid := buf.Frames() / 2 * Channels
	if buf.Data[mid] != buf.Data[mid+1] {
		t.Error("mono source should be duplicated to both channels")
	}
}

func TestDecodeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data := wavBytes(SampleRate, 2, SampleRate, 0)
	if _, err := Decode(ctx, bytes.NewReader(data), "a.wav", "ffmpeg"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// --- DecodeService ---

type fakeDecoder struct {
	calls atomic.Int32
	fail  atomic.Bool
	gate  chan struct{}
}

func (f *fakeDecoder) decode(ctx context.Context, path string) (*Buffer, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail.Load() {
		return nil, errors.New("corrupt " + path)
	}
	return constBuffer(SampleRate*2, 0), nil
}

func TestDecodeServiceLifecycle(t *testing.T) {
	f := &fakeDecoder{gate: make(chan struct{})}
	s := newDecodeService(f.decode)
	defer s.Close()

	var readyLen atomic.Int64
	s.OnReady(func(id string, l timespan.TimeSpan) {
		if id == "calm" {
			readyLen.Store(l.Ticks())
		}
	})

	s.Request("calm", "calm.wav")
	s.Request("calm", "calm.wav") // no-op while pending
	if _, err := s.Buffer("calm"); !errors.Is(err, ErrNotReady) {
		t.Errorf("pending Buffer err = %v", err)
	}
	if st := s.Status("calm"); st.State != Pending {
		t.Errorf("state = %s", st.State)
	}

	close(f.gate)
	if err := s.Wait(context.Background(), "calm"); err != nil {
		t.Fatal(err)
	}
	buf, err := s.Buffer("calm")
	if err != nil || buf.Length() != timespan.FromSeconds(2) {
		t.Fatalf("Buffer = %v, %v", buf, err)
	}
	if readyLen.Load() != timespan.FromSeconds(2).Ticks() {
		t.Errorf("ready hook length = %d", readyLen.Load())
	}
	if f.calls.Load() != 1 {
		t.Errorf("decode calls = %d, want 1", f.calls.Load())
	}
}

func TestDecodeServiceFailureAndRetry(t *testing.T) {
	f := &fakeDecoder{}
	f.fail.Store(true)
	s := newDecodeService(f.decode)
	defer s.Close()

	s.Request("bad", "bad.mp3")
	if err := s.Wait(context.Background(), "bad"); err == nil || !strings.Contains(err.Error(), "corrupt") {
		t.Fatalf("Wait err = %v", err)
	}
	st := s.Status("bad")
	if st.State != Failed || st.Error == "" {
		t.Errorf("status = %+v", st)
	}
	if err := s.Retry("calm"); err == nil {
		t.Error("Retry of unknown asset should fail")
	}

	f.fail.Store(false)
	if err := s.Retry("bad"); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(context.Background(), "bad"); err != nil {
		t.Fatal(err)
	}
	if s.Status("bad").State != Ready {
		t.Errorf("state after retry = %s", s.Status("bad").State)
	}
	if err := s.Retry("bad"); err == nil {
		t.Error("Retry of ready asset should fail")
	}
}

func TestDecodeServiceForgetCancels(t *testing.T) {
	f := &fakeDecoder{gate: make(chan struct{})}
	s := newDecodeService(f.decode)
	s.Request("x", "x.wav")
	s.Forget("x")
	s.Close() // returns only if the worker saw the cancellation
	if s.Status("x").State != Absent {
		t.Errorf("state = %s", s.Status("x").State)
	}
}

type memOpener map[string][]byte

func (m memOpener) Open(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m[path]
	if !ok {
		return nil, errors.New("no such asset")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func TestNewDecodeServiceUsesOpener(t *testing.T) {
	s := NewDecodeService(memOpener{"a.wav": wavBytes(SampleRate, 2, SampleRate, 0)}, "ffmpeg")
	defer s.Close()
	s.Request("a", "a.wav")
	if err := s.Wait(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if s.Status("a").Length != timespan.FromSeconds(1) {
		t.Errorf("length = %s", s.Status("a").Length)
	}
}
