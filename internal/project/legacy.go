package project

import (
	"encoding/json"
	"fmt"

	"github.com/satindergrewal/segue/internal/graph"
	"github.com/satindergrewal/segue/internal/timespan"
)

// The first editor generation addressed tracks by list position and
// stored each destination as a [condition, jumps] pair.

type legacyDocument struct {
	Assets      map[string]string  `json:"assets"`
	UnitWeights map[string]float64 `json:"unitWeights"`
	Thresholds  map[string]float64 `json:"thresholds"`
	Tracks      []legacyTrack      `json:"tracks"`
}

type legacyTrack struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	DisplayName  string             `json:"displayName"`
	MusicAssetID string             `json:"musicAssetId"`
	StartOffset  timespan.TimeSpan  `json:"startOffset"`
	Length       timespan.TimeSpan  `json:"length"`
	BPM          float64            `json:"beatsPerMinute"`
	BeatsPerBar  int                `json:"beatsPerBar"`
	CheckPoints  []legacyCheckPoint `json:"checkPoints"`
}

type legacyCheckPoint struct {
	Time         timespan.TimeSpan   `json:"time"`
	Destinations []legacyDestination `json:"destinations"`
	Defaults     []legacyJump        `json:"defaultDestinations"`
}

type legacyJump struct {
	TargetTrackIndex     int               `json:"targetTrackIndex"`
	TargetOffset         timespan.TimeSpan `json:"targetOffset"`
	FadeOutDelay         timespan.TimeSpan `json:"fadeOutDelay"`
	FadeOutDuration      timespan.TimeSpan `json:"fadeOutDuration"`
	TargetFadeInDelay    timespan.TimeSpan `json:"targetFadeInDelay"`
	TargetFadeInDuration timespan.TimeSpan `json:"targetFadeInDuration"`
}

type legacyDestination struct {
	Condition string
	Jumps     []legacyJump
}

func (d *legacyDestination) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("legacy destination: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("legacy destination has %d elements, want [condition, jumps]", len(pair))
	}
	if err := json.Unmarshal(pair[0], &d.Condition); err != nil {
		return fmt.Errorf("legacy destination condition: %w", err)
	}
	if err := json.Unmarshal(pair[1], &d.Jumps); err != nil {
		return fmt.Errorf("legacy destination jumps: %w", err)
	}
	return nil
}

// ImportLegacy converts a version 1 document. Tracks without an id get
// "track-<n>"; list position becomes the order.
func ImportLegacy(data []byte) (*graph.Graph, error) {
	var doc legacyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode legacy json: %w", err)
	}

	ids := make([]string, len(doc.Tracks))
	for i, lt := range doc.Tracks {
		ids[i] = lt.ID
		if ids[i] == "" {
			ids[i] = fmt.Sprintf("track-%d", i)
		}
	}

	jump := func(owner string, lj legacyJump) (graph.JumpTo, error) {
		if lj.TargetTrackIndex < 0 || lj.TargetTrackIndex >= len(ids) {
			return graph.JumpTo{}, fmt.Errorf("track %s: target index %d out of range", owner, lj.TargetTrackIndex)
		}
		return graph.JumpTo{
			TargetTrackID:        ids[lj.TargetTrackIndex],
			TargetOffset:         lj.TargetOffset,
			FadeOutDelay:         lj.FadeOutDelay,
			FadeOutDuration:      lj.FadeOutDuration,
			TargetFadeInDelay:    lj.TargetFadeInDelay,
			TargetFadeInDuration: lj.TargetFadeInDuration,
		}, nil
	}
	jumps := func(owner string, ls []legacyJump) ([]graph.JumpTo, error) {
		out := make([]graph.JumpTo, 0, len(ls))
		for _, lj := range ls {
			j, err := jump(owner, lj)
			if err != nil {
				return nil, err
			}
			out = append(out, j)
		}
		return out, nil
	}

	tracks := make([]graph.Track, 0, len(doc.Tracks))
	for i, lt := range doc.Tracks {
		name := lt.DisplayName
		if name == "" {
			name = lt.Name
		}
		t := graph.Track{
			ID:           ids[i],
			DisplayName:  name,
			Order:        i,
			MusicAssetID: lt.MusicAssetID,
			StartOffset:  lt.StartOffset,
			Length:       lt.Length,
			BPM:          lt.BPM,
			BeatsPerBar:  lt.BeatsPerBar,
		}
		for _, lcp := range lt.CheckPoints {
			cp := graph.CheckPoint{Time: lcp.Time}
			for _, ld := range lcp.Destinations {
				js, err := jumps(t.ID, ld.Jumps)
				if err != nil {
					return nil, err
				}
				cp.Destinations = append(cp.Destinations, graph.Destination{Condition: ld.Condition, Jumps: js})
			}
			defs, err := jumps(t.ID, lcp.Defaults)
			if err != nil {
				return nil, err
			}
			if len(defs) > 0 {
				cp.Defaults = defs
			}
			t.CheckPoints = append(t.CheckPoints, cp)
		}
		tracks = append(tracks, t)
	}

	return Document{
		Version:     Version,
		Assets:      doc.Assets,
		UnitWeights: doc.UnitWeights,
		Thresholds:  doc.Thresholds,
		Tracks:      tracks,
	}.Graph()
}
