package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// --- Monitor ---

func TestAttachDetach(t *testing.T) {
	m := NewMonitor()
	a := m.Attach()
	b := m.Attach()
	if m.TapCount() != 2 {
		t.Errorf("TapCount = %d, want 2", m.TapCount())
	}
	m.Detach(a)
	m.Detach(a)
	if m.TapCount() != 1 {
		t.Errorf("TapCount = %d, want 1", m.TapCount())
	}
	select {
	case <-a.Done():
	default:
		t.Error("detached tap not signalled")
	}
	m.Detach(b)
	if m.TapCount() != 0 {
		t.Errorf("TapCount = %d, want 0", m.TapCount())
	}
}

func TestMonitorDeliversToAllTaps(t *testing.T) {
	m := NewMonitor()
	taps := make([]*Tap, 4)
	for i := range taps {
		taps[i] = m.Attach()
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frames := make(chan []int16, 1)
	go m.Run(ctx, frames)

	frames <- []int16{7, -7}

	var wg sync.WaitGroup
	for i, tap := range taps {
		wg.Add(1)
		go func(i int, tap *Tap) {
			defer wg.Done()
			select {
			case f := <-tap.C:
				if len(f) != 2 || f[0] != 7 || f[1] != -7 {
					t.Errorf("tap %d got %v", i, f)
				}
			case <-time.After(time.Second):
				t.Errorf("tap %d: timeout", i)
			}
		}(i, tap)
	}
	wg.Wait()
}

func TestSlowTapDropsFrames(t *testing.T) {
	m := NewMonitor()
	slow := m.Attach()
	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan []int16)
	done := make(chan struct{})
	go func() {
		m.Run(ctx, frames)
		close(done)
	}()

	total := tapBuffer + 25
	for i := 0; i < total; i++ {
		select {
		case frames <- []int16{int16(i)}:
		case <-time.After(time.Second):
			t.Fatalf("monitor blocked at frame %d", i)
		}
	}
	cancel()
	<-done

	st := m.Stats()
	if st.Frames != int64(total) {
		t.Errorf("Frames = %d, want %d", st.Frames, total)
	}
	if slow.Dropped() != 25 || st.Dropped != 25 {
		t.Errorf("dropped tap=%d monitor=%d, want 25", slow.Dropped(), st.Dropped)
	}
	if len(slow.C) != tapBuffer {
		t.Errorf("buffered = %d, want %d", len(slow.C), tapBuffer)
	}
}

func TestMonitorStopsWhenSourceCloses(t *testing.T) {
	m := NewMonitor()
	frames := make(chan []int16)
	done := make(chan struct{})
	go func() {
		m.Run(context.Background(), frames)
		close(done)
	}()
	close(frames)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after source closed")
	}
}

// --- MP3 ---

func TestEncodeArgs(t *testing.T) {
	h := NewMP3Handler(NewMonitor(), "ffmpeg", 96000)
	args := strings.Join(h.encodeArgs(), " ")
	for _, want := range []string{"-ar 48000", "-ac 2", "-b:a 96k", "-f s16le", "pipe:1"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestMP3MissingEncoder(t *testing.T) {
	m := NewMonitor()
	h := NewMP3Handler(m, "/nonexistent/ffmpeg", 128000)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if m.TapCount() != 0 {
		t.Error("tap leaked after failed start")
	}
}

// --- WebRTC ---

func TestWebRTCRejectsBadRequests(t *testing.T) {
	h := NewWebRTCHandler(NewMonitor(), 128000)
	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"get", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"not json", http.MethodPost, "offer please", http.StatusBadRequest},
		{"bad sdp", http.MethodPost, `{"type":"offer","sdp":"garbage"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/offer", strings.NewReader(tt.body)))
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
	if h.PeerCount() != 0 {
		t.Errorf("PeerCount = %d", h.PeerCount())
	}
	h.Close()
}
