// Package reporter republishes playback progress to observers at a bounded
// rate, decoupled from both the audio device and UI redraws.
package reporter

import (
	"context"
	"sync"
	"time"

	"github.com/satindergrewal/segue/internal/logger"
	"github.com/satindergrewal/segue/internal/playclock"
	"github.com/satindergrewal/segue/internal/timespan"
)

// Sampler is read once per interval. *playclock.Clock satisfies it.
type Sampler interface {
	Peek() playclock.Reading
}

// Progress is one published sample.
type Progress struct {
	Seq      uint64            `json:"seq"`
	TrackID  string            `json:"trackId"`
	Progress timespan.TimeSpan `json:"progress"`
	Length   timespan.TimeSpan `json:"length"`
	Playing  bool              `json:"playing"`
}

func (p Progress) same(q Progress) bool {
	return p.TrackID == q.TrackID && p.Progress == q.Progress && p.Length == q.Length && p.Playing == q.Playing
}

// Observer receives progress samples.
type Observer struct {
	C    chan Progress
	done chan struct{}
}

// Done is closed when the observer is unsubscribed.
func (o *Observer) Done() <-chan struct{} { return o.done }

// Reporter samples a clock on its own ticker. Start and Stop are
// idempotent.
type Reporter struct {
	src      Sampler
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	obsMu     sync.RWMutex
	observers map[*Observer]struct{}
	latest    Progress
	seq       uint64
}

func New(src Sampler, interval time.Duration) *Reporter {
	return &Reporter{
		src:       src,
		interval:  interval,
		observers: make(map[*Observer]struct{}),
	}
}

// Start launches the sampling loop. It is a no-op while already running.
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
	logger.Debug("progress reporter started", logger.Duration("interval", r.interval))
}

// Stop cancels the loop and waits for it to exit. It is a no-op while
// stopped.
func (r *Reporter) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Debug("progress reporter stopped")
}

func (r *Reporter) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Reporter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sample()
		}
	}
}

// sample reads the clock and publishes when anything changed.
func (r *Reporter) sample() {
	rd := r.src.Peek()
	p := Progress{TrackID: rd.TrackID, Progress: rd.Progress, Length: rd.Length, Playing: rd.Playing}

	r.obsMu.Lock()
	if r.seq > 0 && p.same(r.latest) {
		r.obsMu.Unlock()
		return
	}
	r.seq++
	p.Seq = r.seq
	r.latest = p
	for o := range r.observers {
		select {
		case o.C <- p:
		default:
			// observer too slow, drop the sample
		}
	}
	r.obsMu.Unlock()
}

// Latest returns the most recently published sample.
func (r *Reporter) Latest() Progress {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	return r.latest
}

// Subscribe registers an observer. It immediately receives the latest
// sample, if any.
func (r *Reporter) Subscribe() *Observer {
	o := &Observer{
		C:    make(chan Progress, 16),
		done: make(chan struct{}),
	}
	r.obsMu.Lock()
	r.observers[o] = struct{}{}
	if r.seq > 0 {
		o.C <- r.latest
	}
	r.obsMu.Unlock()
	return o
}

// Unsubscribe removes an observer and closes its Done channel.
func (r *Reporter) Unsubscribe(o *Observer) {
	r.obsMu.Lock()
	_, ok := r.observers[o]
	delete(r.observers, o)
	r.obsMu.Unlock()
	if ok {
		close(o.done)
	}
}

func (r *Reporter) ObserverCount() int {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	return len(r.observers)
}
