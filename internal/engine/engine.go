// Package engine runs preview playback of a track graph: it watches the
// active track's progress, fires checkpoints, and cross-fades between
// one-shot sources the way the game runtime will.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/satindergrewal/segue/internal/audio"
	"github.com/satindergrewal/segue/internal/graph"
	"github.com/satindergrewal/segue/internal/logger"
	"github.com/satindergrewal/segue/internal/playclock"
	"github.com/satindergrewal/segue/internal/timespan"
)

var ErrNoSession = errors.New("no preview session")

// Buffers hands out decoded PCM per asset id. It returns an error wrapping
// audio.ErrNotReady while the decode is pending or failed.
type Buffers interface {
	Buffer(assetID string) (*audio.Buffer, error)
}

// Output is the audio device: a never-resetting hardware clock plus a
// factory for one-shot voices.
type Output interface {
	Now() timespan.TimeSpan
	Open(buf *audio.Buffer) (audio.Voice, error)
}

// voice is an engine-owned source together with the track it plays.
type voice struct {
	trackID string
	v       audio.Voice
	faded   bool // stopped by a completed fade-out
}

// Engine owns every voice it opens and releases them on all exit paths.
type Engine struct {
	out    Output
	bufs   Buffers
	eval   graph.Evaluator
	clock  *playclock.Clock
	events chan Event

	mu          sync.Mutex
	state       State
	g           *graph.Graph
	current     *voice
	aux         []*voice // finished branch targets that are no longer the active track
	checkpoints []graph.CheckPoint
	last        timespan.TimeSpan // progress at the previous tick
	sourceEnded bool              // the active track reached its length
	transitions []*transition
}

// New creates an idle engine. eval decides which destinations are active
// when a checkpoint fires.
func New(out Output, bufs Buffers, eval graph.Evaluator) *Engine {
	return &Engine{
		out:    out,
		bufs:   bufs,
		eval:   eval,
		clock:  playclock.New(out),
		events: make(chan Event, 64),
	}
}

// Clock exposes the session clock for read-only sampling.
func (e *Engine) Clock() *playclock.Clock { return e.clock }

// Events returns the session event stream. Events are dropped when the
// channel is full.
func (e *Engine) Events() <-chan Event { return e.events }

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		logger.Debug("engine event dropped", logger.String("kind", string(ev.Kind)))
	}
}

// Play starts a session on trackID at from against snapshot g. It refuses
// an invalid graph and a track whose audio is not decoded yet.
func (e *Engine) Play(g *graph.Graph, trackID string, from timespan.TimeSpan) error {
	if err := g.Check(); err != nil {
		return err
	}
	t, ok := g.Track(trackID)
	if !ok {
		return fmt.Errorf("track %q: %w", trackID, graph.ErrNotFound)
	}
	buf, err := e.bufs.Buffer(t.MusicAssetID)
	if err != nil {
		return fmt.Errorf("play %s: %w", trackID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.teardownLocked("restart")
	e.g = g
	if err := e.startLocked(t, buf, from); err != nil {
		return err
	}
	e.emit(Event{Kind: ActiveTrackChanged, TrackID: trackID, At: e.out.Now()})
	logger.Info("preview started", logger.String("track", trackID), logger.Span("from", from))
	return nil
}

// PlayTrack plays trackID from its start offset.
func (e *Engine) PlayTrack(g *graph.Graph, trackID string) error {
	t, ok := g.Track(trackID)
	if !ok {
		return fmt.Errorf("track %q: %w", trackID, graph.ErrNotFound)
	}
	return e.Play(g, trackID, t.StartOffset)
}

// startLocked opens a fresh voice for t at progress from and re-bases the
// clock on it.
func (e *Engine) startLocked(t graph.Track, buf *audio.Buffer, from timespan.TimeSpan) error {
	v, err := e.out.Open(buf)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.ID, err)
	}
	now := e.out.Now()
	if err := v.Start(now, from); err != nil {
		v.Stop()
		return fmt.Errorf("start %s: %w", t.ID, err)
	}
	e.current = &voice{trackID: t.ID, v: v}
	e.checkpoints = graph.SortedCheckPoints(t)
	e.last = from
	e.sourceEnded = false
	e.clock.Play(t.ID, trackLength(t, buf), from)
	e.state = Playing
	return nil
}

// trackLength prefers the recorded length and falls back to the buffer.
func trackLength(t graph.Track, buf *audio.Buffer) timespan.TimeSpan {
	if t.Length > 0 {
		return t.Length
	}
	return buf.Length()
}

// Stop ends the session and releases every voice. It is a cancellation
// point: in-flight fades are torn down, not left to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Idle {
		return
	}
	e.teardownLocked("stopped")
	e.clock.Stop()
	e.state = Idle
	e.emit(Event{Kind: Stopped, TrackID: e.clock.Peek().TrackID, At: e.out.Now()})
	logger.Info("preview stopped")
}

// Pause freezes progress. Sources are one-shot, so the current voice is
// released and Resume opens a new one.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case Idle:
		return ErrNoSession
	case Paused:
		return nil
	}
	e.teardownLocked("paused")
	e.clock.Stop()
	e.state = Paused
	return nil
}

// Seek moves the session to p and leaves it paused until Resume.
func (e *Engine) Seek(p timespan.TimeSpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.g == nil || e.clock.Peek().TrackID == "" {
		return ErrNoSession
	}
	e.teardownLocked("seek")
	e.clock.Seek(p)
	e.last = e.clock.Peek().Progress
	e.state = Paused
	return nil
}

// Resume restarts a paused session at its frozen progress.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case Playing, Transitioning:
		return nil
	case Idle:
		return ErrNoSession
	}
	r := e.clock.Peek()
	t, ok := e.g.Track(r.TrackID)
	if !ok {
		return fmt.Errorf("track %q: %w", r.TrackID, graph.ErrNotFound)
	}
	buf, err := e.bufs.Buffer(t.MusicAssetID)
	if err != nil {
		return fmt.Errorf("resume %s: %w", t.ID, err)
	}
	return e.startLocked(t, buf, r.Progress)
}

// teardownLocked stops every voice and drops in-flight transitions.
func (e *Engine) teardownLocked(reason string) {
	now := e.out.Now()
	for _, t := range e.transitions {
		t.cancel()
		e.emit(Event{Kind: TransitionAborted, TrackID: t.from, TargetTrackID: t.jump.TargetTrackID, Reason: reason, At: now})
	}
	e.transitions = nil
	if e.current != nil {
		e.current.v.Stop()
		e.current = nil
	}
	for _, a := range e.aux {
		a.v.Stop()
	}
	e.aux = nil
}

// Snapshot reports the session state without advancing it.
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.clock.Peek()
	st := Status{
		State:    e.state,
		TrackID:  r.TrackID,
		Progress: r.Progress,
		Length:   r.Length,
	}
	now := e.out.Now()
	for _, t := range e.transitions {
		st.Transitions = append(st.Transitions, TransitionStatus{
			From:      t.from,
			To:        t.jump.TargetTrackID,
			FadingOut: t.outStarted && !t.outDone,
			FadedIn:   t.inDone || now >= t.inEnd,
		})
	}
	if e.current != nil {
		st.Voices++
	}
	st.Voices += len(e.aux)
	for _, t := range e.transitions {
		if t.target != nil && !t.inDone {
			st.Voices++
		}
	}
	return st
}

// Run drives Tick every interval until ctx is cancelled, then stops the
// session.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("transition engine running", logger.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			e.Stop()
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Tick samples the clock once: it fires crossed checkpoints, advances
// fades, and handles the end of the active track.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Playing && e.state != Transitioning {
		return
	}

	r := e.clock.Poll()
	if e.current != nil && !e.current.faded {
		e.fireCrossedLocked(r)
	}
	e.last = r.Progress
	if r.Ended {
		e.sourceEnded = true
	}

	e.advanceLocked(e.out.Now())
	e.pruneAuxLocked()

	if e.sourceEnded && len(e.transitions) == 0 {
		e.teardownLocked("ended")
		e.state = Idle
		e.emit(Event{Kind: Ended, TrackID: r.TrackID, At: r.At})
		logger.Info("preview ended", logger.String("track", r.TrackID))
		return
	}
	if len(e.transitions) > 0 {
		e.state = Transitioning
	} else {
		e.state = Playing
	}
}

// fireCrossedLocked fires every checkpoint in [last, progress), plus those
// at exactly the track length once the track ends. Ties fire in list order.
func (e *Engine) fireCrossedLocked(r playclock.Reading) {
	for _, cp := range e.checkpoints {
		crossed := cp.Time >= e.last && cp.Time < r.Progress
		if r.Ended && cp.Time >= e.last && cp.Time == r.Length {
			crossed = true
		}
		if !crossed {
			continue
		}
		// hardware time at which progress passed the checkpoint
		at := r.At - (r.Progress - cp.Time)
		e.fireLocked(r.TrackID, cp, at)
	}
}

func (e *Engine) pruneAuxLocked() {
	live := e.aux[:0]
	for _, a := range e.aux {
		if !a.v.Done() {
			live = append(live, a)
		}
	}
	clear(e.aux[len(live):])
	e.aux = live
}
