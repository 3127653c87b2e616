package engine

import (
	"fmt"

	"github.com/satindergrewal/segue/internal/timespan"
)

// State is the preview session state.
type State int

const (
	Idle State = iota
	Playing
	Transitioning
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Transitioning:
		return "transitioning"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Idle, Playing, Transitioning, Paused} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

type EventKind string

const (
	TransitionStarted  EventKind = "transition_started"
	TransitionAborted  EventKind = "transition_aborted"
	ActiveTrackChanged EventKind = "active_track_changed"
	Ended              EventKind = "ended"
	Stopped            EventKind = "stopped"
)

// Event reports a session change. At is hardware-clock time.
type Event struct {
	Kind          EventKind         `json:"kind"`
	TrackID       string            `json:"trackId,omitempty"`
	TargetTrackID string            `json:"targetTrackId,omitempty"`
	Condition     string            `json:"condition,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	At            timespan.TimeSpan `json:"at"`
}

// TransitionStatus describes one in-flight transition.
type TransitionStatus struct {
	From      string `json:"from"`
	To        string `json:"to"`
	FadingOut bool   `json:"fadingOut"`
	FadedIn   bool   `json:"fadedIn"`
}

// Status is a point-in-time view of the session.
type Status struct {
	State       State              `json:"state"`
	TrackID     string             `json:"trackId,omitempty"`
	Progress    timespan.TimeSpan  `json:"progress"`
	Length      timespan.TimeSpan  `json:"length"`
	Transitions []TransitionStatus `json:"transitions,omitempty"`
	Voices      int                `json:"voices"`
}
