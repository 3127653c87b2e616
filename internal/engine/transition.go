package engine

import (
	"fmt"

	"github.com/satindergrewal/segue/internal/audio"
	"github.com/satindergrewal/segue/internal/graph"
	"github.com/satindergrewal/segue/internal/logger"
	"github.com/satindergrewal/segue/internal/timespan"
)

// transition is one scheduled JumpTo: a fade-out of the source voice and a
// fade-in of a new voice for the target, both timed from the hardware
// moment the checkpoint fired.
type transition struct {
	from      string
	condition string
	source    *voice
	jump      graph.JumpTo
	target    audio.Voice
	track     graph.Track // target track in the session snapshot
	length    timespan.TimeSpan

	outAt, outEnd timespan.TimeSpan
	inAt, inEnd   timespan.TimeSpan

	outStarted bool
	outDone    bool
	inDone     bool
}

func (t *transition) done() bool { return t.outDone && t.inDone }

// cancel releases the incoming voice unless it already took over.
func (t *transition) cancel() {
	if t.target != nil && !t.inDone {
		t.target.Stop()
	}
}

// fireLocked resolves a crossed checkpoint and schedules every selected
// jump independently. A jump whose target is not decoded is skipped
// without touching the source; the rest proceed.
func (e *Engine) fireLocked(trackID string, cp graph.CheckPoint, at timespan.TimeSpan) {
	res := graph.Resolve(cp, e.eval)
	if res.Kind == graph.ResolvedNone {
		return
	}
	logger.Debug("checkpoint fired",
		logger.String("track", trackID),
		logger.Span("time", cp.Time),
		logger.String("resolved", res.Kind.String()),
		logger.String("condition", res.Condition))

	src := e.current
	var ready []*transition
	for _, j := range res.Jumps {
		t, err := e.prepareLocked(src, j, at)
		if err != nil {
			logger.Warn("source not ready, transition skipped",
				logger.String("from", trackID),
				logger.String("to", j.TargetTrackID),
				logger.Err(err))
			e.emit(Event{Kind: TransitionAborted, TrackID: trackID, TargetTrackID: j.TargetTrackID, Condition: res.Condition, Reason: err.Error(), At: at})
			continue
		}
		t.condition = res.Condition
		ready = append(ready, t)
	}
	if len(ready) == 0 {
		return
	}

	e.supersedeLocked(src, at)
	for _, t := range ready {
		e.transitions = append(e.transitions, t)
		e.emit(Event{Kind: TransitionStarted, TrackID: trackID, TargetTrackID: t.jump.TargetTrackID, Condition: t.condition, At: at})
		logger.Info("transition scheduled",
			logger.String("from", trackID),
			logger.String("to", t.jump.TargetTrackID),
			logger.Span("targetOffset", t.jump.TargetOffset))
	}
}

// prepareLocked opens and schedules the incoming voice for j. The voice
// starts silent at inAt and ramps to full gain; the source fade-out is
// applied later, when its delay has elapsed.
func (e *Engine) prepareLocked(src *voice, j graph.JumpTo, firedAt timespan.TimeSpan) (*transition, error) {
	track, ok := e.g.Track(j.TargetTrackID)
	if !ok {
		return nil, fmt.Errorf("target track %q: %w", j.TargetTrackID, graph.ErrNotFound)
	}
	buf, err := e.bufs.Buffer(track.MusicAssetID)
	if err != nil {
		return nil, err
	}
	v, err := e.out.Open(buf)
	if err != nil {
		return nil, err
	}

	t := &transition{
		from:   src.trackID,
		source: src,
		jump:   j,
		target: v,
		track:  track,
		length: trackLength(track, buf),
		outAt:  firedAt + j.FadeOutDelay,
		inAt:   firedAt + j.TargetFadeInDelay,
	}
	t.outEnd = t.outAt + j.FadeOutDuration
	t.inEnd = t.inAt + j.TargetFadeInDuration

	v.SetGain(0)
	if err := v.Start(t.inAt, j.TargetOffset); err != nil {
		v.Stop()
		return nil, err
	}
	v.RampGain(t.inAt, j.TargetFadeInDuration, 1)
	return t, nil
}

// supersedeLocked cancels in-flight transitions out of src: the newest
// decision wins. The source gain is held where the old fade left it and
// incoming voices that have not taken over are released.
func (e *Engine) supersedeLocked(src *voice, at timespan.TimeSpan) {
	kept := e.transitions[:0]
	cancelled := false
	for _, t := range e.transitions {
		if t.source != src || t.outDone {
			kept = append(kept, t)
			continue
		}
		cancelled = true
		if t.inDone {
			// the target already took over; only its fade-out is dropped
			t.outDone = true
			kept = append(kept, t)
			continue
		}
		t.cancel()
		e.emit(Event{Kind: TransitionAborted, TrackID: t.from, TargetTrackID: t.jump.TargetTrackID, Reason: "superseded", At: at})
	}
	clear(e.transitions[len(kept):])
	e.transitions = kept
	if cancelled {
		now := e.out.Now()
		src.v.SetGain(src.v.Gain(now))
	}
}

// advanceLocked moves every transition forward to hardware time now.
func (e *Engine) advanceLocked(now timespan.TimeSpan) {
	for _, t := range e.transitions {
		if !t.outStarted && now >= t.outAt {
			t.source.v.RampGain(t.outAt, t.jump.FadeOutDuration, 0)
			t.outStarted = true
		}
		if t.outStarted && !t.outDone && now >= t.outEnd {
			t.outDone = true
		}
		if !t.inDone && now >= t.inEnd {
			t.inDone = true
			e.handoffLocked(t)
		}
	}

	// a source is released once every fade-out on it has finished
	pending := map[*voice]bool{}
	for _, t := range e.transitions {
		if !t.outDone {
			pending[t.source] = true
		} else if _, seen := pending[t.source]; !seen {
			pending[t.source] = false
		}
	}
	for src, busy := range pending {
		if !busy && !src.faded {
			src.v.Stop()
			src.faded = true
			logger.Debug("source faded out", logger.String("track", src.trackID))
		}
	}

	kept := e.transitions[:0]
	for _, t := range e.transitions {
		if !t.done() {
			kept = append(kept, t)
		}
	}
	clear(e.transitions[len(kept):])
	e.transitions = kept
}

// handoffLocked makes a fully faded-in target the active track. The clock
// is re-based on the moment the target started, not on now.
func (e *Engine) handoffLocked(t *transition) {
	prev := e.current
	e.current = &voice{trackID: t.track.ID, v: t.target}
	e.checkpoints = graph.SortedCheckPoints(t.track)
	e.clock.Handoff(t.track.ID, t.length, t.jump.TargetOffset, t.inAt)
	// checkpoints passed during the fade-in belong to the previous track's window
	e.last = t.jump.TargetOffset + t.jump.TargetFadeInDuration
	e.sourceEnded = false

	if prev != nil && prev != t.source && !prev.v.Done() {
		e.aux = append(e.aux, prev)
	}
	e.emit(Event{Kind: ActiveTrackChanged, TrackID: t.track.ID, Condition: t.condition, At: t.inEnd})
	logger.Info("active track changed", logger.String("from", t.from), logger.String("to", t.track.ID))
}
