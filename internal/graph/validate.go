package graph

import (
	"fmt"

	"github.com/satindergrewal/segue/internal/timespan"
)

type ViolationKind string

const (
	MissingAsset         ViolationKind = "missing_asset"
	MissingTarget        ViolationKind = "missing_target"
	CheckPointOutOfRange ViolationKind = "checkpoint_out_of_range"
	EmptyDestination     ViolationKind = "empty_destination"
	NegativeDuration     ViolationKind = "negative_duration"
	EmptyID              ViolationKind = "empty_id"
)

// Violation is one broken invariant. Index fields are -1 when they do not
// apply; Destination is DefaultList for default jumps.
type Violation struct {
	Kind        ViolationKind `json:"kind"`
	TrackID     string        `json:"trackId,omitempty"`
	CheckPoint  int           `json:"checkPoint"`
	Destination int           `json:"destination"`
	Jump        int           `json:"jump"`
	Message     string        `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Message)
}

// Validate checks the graph invariants and returns every violation, in
// track order. It never repairs anything.
func Validate(g *Graph) []Violation {
	var out []Violation
	add := func(kind ViolationKind, track string, cp, dest, jump int, format string, args ...any) {
		out = append(out, Violation{
			Kind:        kind,
			TrackID:     track,
			CheckPoint:  cp,
			Destination: dest,
			Jump:        jump,
			Message:     fmt.Sprintf(format, args...),
		})
	}

	for _, a := range g.Assets() {
		if a.ID == "" {
			add(EmptyID, "", -1, -1, -1, "asset with empty id (%s)", a.SourcePath)
		}
	}

	for _, t := range g.Tracks() {
		if t.ID == "" {
			add(EmptyID, "", -1, -1, -1, "track %q has an empty id", t.DisplayName)
		}
		if _, ok := g.Asset(t.MusicAssetID); !ok {
			add(MissingAsset, t.ID, -1, -1, -1, "track %s references unknown asset %q", t.ID, t.MusicAssetID)
		}
		if t.StartOffset < 0 {
			add(NegativeDuration, t.ID, -1, -1, -1, "track %s has negative start offset %s", t.ID, t.StartOffset)
		}

		for ci, cp := range t.CheckPoints {
			// an undecoded track has no length yet; only the lower bound applies
			if cp.Time < 0 || (t.Length > 0 && cp.Time > t.Length) {
				add(CheckPointOutOfRange, t.ID, ci, -1, -1, "checkpoint %d of %s at %s outside [0, %s]", ci, t.ID, cp.Time, t.Length)
			}
			for di, d := range cp.Destinations {
				if len(d.Jumps) == 0 {
					add(EmptyDestination, t.ID, ci, di, -1, "destination %d (%q) of checkpoint %d in %s has no jumps", di, d.Condition, ci, t.ID)
				}
				for ji, j := range d.Jumps {
					checkJump(g, add, t.ID, ci, di, ji, j)
				}
			}
			for ji, j := range cp.Defaults {
				checkJump(g, add, t.ID, ci, DefaultList, ji, j)
			}
		}
	}
	return out
}

func checkJump(g *Graph, add func(ViolationKind, string, int, int, int, string, ...any), track string, ci, di, ji int, j JumpTo) {
	ref := JumpRef{track, ci, di, ji}
	if _, ok := g.tracks[j.TargetTrackID]; !ok {
		add(MissingTarget, track, ci, di, ji, "%s targets unknown track %q", ref, j.TargetTrackID)
	}
	fields := []struct {
		name string
		v    timespan.TimeSpan
	}{
		{"targetOffset", j.TargetOffset},
		{"fadeOutDelay", j.FadeOutDelay},
		{"fadeOutDuration", j.FadeOutDuration},
		{"targetFadeInDelay", j.TargetFadeInDelay},
		{"targetFadeInDuration", j.TargetFadeInDuration},
	}
	for _, f := range fields {
		if f.v < 0 {
			add(NegativeDuration, track, ci, di, ji, "%s has negative %s %s", ref, f.name, f.v)
		}
	}
}

// Check returns a *ValidationError wrapping ErrStructuralInvalid when the
// graph has any violation.
func (g *Graph) Check() error {
	if vs := Validate(g); len(vs) > 0 {
		return &ValidationError{Violations: vs}
	}
	return nil
}
