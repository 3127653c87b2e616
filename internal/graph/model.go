package graph

import "github.com/satindergrewal/segue/internal/timespan"

// MusicAsset is an audio file the project can play. Assets are never
// edited, only replaced.
type MusicAsset struct {
	ID         string `json:"id" yaml:"id"`
	SourcePath string `json:"sourcePath" yaml:"sourcePath"`
}

// Track is one clip of an asset plus the checkpoints that can branch out of it.
type Track struct {
	ID           string            `json:"id" yaml:"id"`
	DisplayName  string            `json:"displayName" yaml:"displayName"`
	Order        int               `json:"order" yaml:"order"`
	MusicAssetID string            `json:"musicAssetId" yaml:"musicAssetId"`
	StartOffset  timespan.TimeSpan `json:"startOffset" yaml:"startOffset"`
	Length       timespan.TimeSpan `json:"length" yaml:"length"` // set from the decoded asset
	BPM          float64           `json:"beatsPerMinute" yaml:"beatsPerMinute"`
	BeatsPerBar  int               `json:"beatsPerBar" yaml:"beatsPerBar"`
	CheckPoints  []CheckPoint      `json:"checkPoints" yaml:"checkPoints"`
}

// CheckPoint is a point in the track where a transition may fire.
type CheckPoint struct {
	Time         timespan.TimeSpan `json:"time" yaml:"time"`
	Destinations []Destination     `json:"destinations" yaml:"destinations"`
	Defaults     []JumpTo          `json:"defaultDestinations" yaml:"defaultDestinations"`
}

// Destination is a conditional set of jumps. The condition is opaque to the
// editor and matched by an Evaluator.
type Destination struct {
	Condition string   `json:"condition" yaml:"condition"`
	Jumps     []JumpTo `json:"jumps" yaml:"jumps"`
}

// JumpTo holds the seek and fade parameters of one transition target.
type JumpTo struct {
	TargetTrackID        string            `json:"targetTrackId" yaml:"targetTrackId"`
	TargetOffset         timespan.TimeSpan `json:"targetOffset" yaml:"targetOffset"`
	FadeOutDelay         timespan.TimeSpan `json:"fadeOutDelay" yaml:"fadeOutDelay"`
	FadeOutDuration      timespan.TimeSpan `json:"fadeOutDuration" yaml:"fadeOutDuration"`
	TargetFadeInDelay    timespan.TimeSpan `json:"targetFadeInDelay" yaml:"targetFadeInDelay"`
	TargetFadeInDuration timespan.TimeSpan `json:"targetFadeInDuration" yaml:"targetFadeInDuration"`
}

// Clone returns a deep copy so callers can edit it without touching a
// snapshot.
func (t Track) Clone() Track {
	out := t
	if t.CheckPoints != nil {
		out.CheckPoints = make([]CheckPoint, len(t.CheckPoints))
		for i, cp := range t.CheckPoints {
			out.CheckPoints[i] = cp.Clone()
		}
	}
	return out
}

func (cp CheckPoint) Clone() CheckPoint {
	out := cp
	if cp.Destinations != nil {
		out.Destinations = make([]Destination, len(cp.Destinations))
		for i, d := range cp.Destinations {
			out.Destinations[i] = d.Clone()
		}
	}
	out.Defaults = cloneJumps(cp.Defaults)
	return out
}

func (d Destination) Clone() Destination {
	out := d
	out.Jumps = cloneJumps(d.Jumps)
	return out
}

func cloneJumps(js []JumpTo) []JumpTo {
	if js == nil {
		return nil
	}
	return append([]JumpTo(nil), js...)
}
