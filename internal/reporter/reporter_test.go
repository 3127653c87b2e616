package reporter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/satindergrewal/segue/internal/playclock"
	"github.com/satindergrewal/segue/internal/timespan"
)

type fakeSampler struct {
	mu    sync.Mutex
	r     playclock.Reading
	peeks int
}

func (f *fakeSampler) Peek() playclock.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peeks++
	return f.r
}

func (f *fakeSampler) set(p timespan.TimeSpan) {
	f.mu.Lock()
	f.r = playclock.Reading{TrackID: "A", Progress: p, Length: timespan.FromSeconds(60), Playing: true}
	f.mu.Unlock()
}

func (f *fakeSampler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peeks
}

func recv(t *testing.T, o *Observer) Progress {
	t.Helper()
	select {
	case p := <-o.C:
		return p
	case <-time.After(time.Second):
		t.Fatal("no progress published")
		return Progress{}
	}
}

// --- Lifecycle ---

func TestStartStopIdempotent(t *testing.T) {
	r := New(&fakeSampler{}, time.Millisecond)
	r.Stop() // stopping while stopped is a no-op

	r.Start(context.Background())
	r.Start(context.Background())
	if !r.Running() {
		t.Fatal("not running after Start")
	}
	r.Stop()
	r.Stop()
	if r.Running() {
		t.Error("still running after Stop")
	}

	// restartable
	r.Start(context.Background())
	defer r.Stop()
	if !r.Running() {
		t.Error("restart failed")
	}
}

func TestStopHaltsSampling(t *testing.T) {
	s := &fakeSampler{}
	r := New(s, time.Millisecond)
	r.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	r.Stop()
	n := s.count()
	time.Sleep(10 * time.Millisecond)
	if s.count() != n {
		t.Errorf("sampler read after Stop: %d -> %d", n, s.count())
	}
}

func TestContextCancelStopsLoop(t *testing.T) {
	s := &fakeSampler{}
	r := New(s, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()
	time.Sleep(10 * time.Millisecond)
	n := s.count()
	time.Sleep(10 * time.Millisecond)
	if s.count() != n {
		t.Error("loop kept sampling after context cancel")
	}
	r.Stop()
}

// --- Publishing ---

func TestPublishesChanges(t *testing.T) {
	s := &fakeSampler{}
	s.set(timespan.FromSeconds(1))
	r := New(s, time.Millisecond)
	o := r.Subscribe()
	r.Start(context.Background())
	defer r.Stop()

	first := recv(t, o)
	if first.TrackID != "A" || first.Progress != timespan.FromSeconds(1) || first.Seq != 1 {
		t.Errorf("first = %+v", first)
	}

	s.set(timespan.FromSeconds(2))
	second := recv(t, o)
	if second.Progress != timespan.FromSeconds(2) || second.Seq != 2 {
		t.Errorf("second = %+v", second)
	}
	if r.Latest() != second {
		t.Errorf("Latest = %+v", r.Latest())
	}
}

func TestUnchangedReadingsNotRepublished(t *testing.T) {
	s := &fakeSampler{}
	s.set(timespan.FromSeconds(5))
	r := New(s, time.Millisecond)
	o := r.Subscribe()
	r.Start(context.Background())
	recv(t, o)
	time.Sleep(20 * time.Millisecond)
	r.Stop()
	select {
	case p := <-o.C:
		t.Errorf("duplicate sample published: %+v", p)
	default:
	}
}

func TestSubscribeGetsLatest(t *testing.T) {
	s := &fakeSampler{}
	s.set(timespan.FromSeconds(3))
	r := New(s, time.Hour)
	r.Start(context.Background())
	defer r.Stop()

	// the first sample is taken immediately on start
	deadline := time.Now().Add(time.Second)
	for r.Latest().Seq == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	o := r.Subscribe()
	if p := recv(t, o); p.Progress != timespan.FromSeconds(3) {
		t.Errorf("late subscriber got %+v", p)
	}
}

func TestSlowObserverDoesNotBlock(t *testing.T) {
	s := &fakeSampler{}
	r := New(s, time.Hour)
	slow := r.Subscribe()
	fast := r.Subscribe()

	for i := 1; i <= 40; i++ {
		s.set(timespan.FromSeconds(int64(i)))
		r.sample()
		<-fast.C
	}
	if len(slow.C) != cap(slow.C) {
		t.Errorf("slow buffer = %d, want full %d", len(slow.C), cap(slow.C))
	}
}

func TestUnsubscribe(t *testing.T) {
	r := New(&fakeSampler{}, time.Hour)
	o := r.Subscribe()
	if r.ObserverCount() != 1 {
		t.Fatalf("count = %d", r.ObserverCount())
	}
	r.Unsubscribe(o)
	r.Unsubscribe(o)
	select {
	case <-o.Done():
	default:
		t.Error("Done not closed")
	}
	if r.ObserverCount() != 0 {
		t.Errorf("count = %d", r.ObserverCount())
	}
}
