package graph

import (
	"fmt"
	"maps"
	"sort"

	"github.com/google/uuid"

	"github.com/satindergrewal/segue/internal/timespan"
)

// DefaultList addresses a checkpoint's default jumps in AddJumpTo and
// RemoveJumpTo instead of a destination index.
const DefaultList = -1

// Graph is an immutable snapshot of a project's assets and tracks. Every
// mutator returns a new snapshot and leaves the receiver untouched, so a
// preview session holding a *Graph never observes later edits.
type Graph struct {
	assets      map[string]MusicAsset
	tracks      map[string]Track
	unitWeights map[string]float64
	thresholds  map[string]float64
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		assets:      map[string]MusicAsset{},
		tracks:      map[string]Track{},
		unitWeights: map[string]float64{},
		thresholds:  map[string]float64{},
	}
}

// Build assembles a snapshot from loaded parts. IDs must be unique.
func Build(assets []MusicAsset, tracks []Track, unitWeights, thresholds map[string]float64) (*Graph, error) {
	g := New()
	for _, a := range assets {
		if _, dup := g.assets[a.ID]; dup {
			return nil, fmt.Errorf("asset %q: %w", a.ID, ErrDuplicateID)
		}
		g.assets[a.ID] = a
	}
	for _, t := range tracks {
		if _, dup := g.tracks[t.ID]; dup {
			return nil, fmt.Errorf("track %q: %w", t.ID, ErrDuplicateID)
		}
		g.tracks[t.ID] = t.Clone()
	}
	maps.Copy(g.unitWeights, unitWeights)
	maps.Copy(g.thresholds, thresholds)
	return g, nil
}

func (g *Graph) clone() *Graph {
	return &Graph{
		assets:      maps.Clone(g.assets),
		tracks:      maps.Clone(g.tracks),
		unitWeights: g.unitWeights,
		thresholds:  g.thresholds,
	}
}

// --- Readers ---

// Asset looks up an asset by id.
func (g *Graph) Asset(id string) (MusicAsset, bool) {
	a, ok := g.assets[id]
	return a, ok
}

// Assets returns all assets sorted by id.
func (g *Graph) Assets() []MusicAsset {
	out := make([]MusicAsset, 0, len(g.assets))
	for _, a := range g.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Track returns a copy of the track with the given id.
func (g *Graph) Track(id string) (Track, bool) {
	t, ok := g.tracks[id]
	if !ok {
		return Track{}, false
	}
	return t.Clone(), true
}

// Tracks returns copies of all tracks ordered by Order, then ID.
func (g *Graph) Tracks() []Track {
	out := make([]Track, 0, len(g.tracks))
	for _, t := range g.tracks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (g *Graph) TrackCount() int { return len(g.tracks) }

func (g *Graph) UnitWeights() map[string]float64 { return maps.Clone(g.unitWeights) }

func (g *Graph) Thresholds() map[string]float64 { return maps.Clone(g.thresholds) }

// WithUnitWeights replaces the unit-weight map.
func (g *Graph) WithUnitWeights(w map[string]float64) *Graph {
	next := g.clone()
	next.unitWeights = maps.Clone(w)
	if next.unitWeights == nil {
		next.unitWeights = map[string]float64{}
	}
	return next
}

// WithThresholds replaces the global threshold config.
func (g *Graph) WithThresholds(th map[string]float64) *Graph {
	next := g.clone()
	next.thresholds = maps.Clone(th)
	if next.thresholds == nil {
		next.thresholds = map[string]float64{}
	}
	return next
}

// JumpRef locates one JumpTo inside the graph.
type JumpRef struct {
	TrackID     string
	CheckPoint  int
	Destination int // DefaultList for default jumps
	Jump        int
}

func (r JumpRef) String() string {
	if r.Destination == DefaultList {
		return fmt.Sprintf("%s/checkpoint[%d]/default[%d]", r.TrackID, r.CheckPoint, r.Jump)
	}
	return fmt.Sprintf("%s/checkpoint[%d]/destination[%d]/jump[%d]", r.TrackID, r.CheckPoint, r.Destination, r.Jump)
}

// ReferencesTo lists every JumpTo targeting trackID, in track order.
func (g *Graph) ReferencesTo(trackID string) []JumpRef {
	var refs []JumpRef
	for _, t := range g.Tracks() {
		for ci, cp := range t.CheckPoints {
			for di, d := range cp.Destinations {
				for ji, j := range d.Jumps {
					if j.TargetTrackID == trackID {
						refs = append(refs, JumpRef{t.ID, ci, di, ji})
					}
				}
			}
			for ji, j := range cp.Defaults {
				if j.TargetTrackID == trackID {
					refs = append(refs, JumpRef{t.ID, ci, DefaultList, ji})
				}
			}
		}
	}
	return refs
}

// TracksUsingAsset lists the ids of tracks that play assetID.
func (g *Graph) TracksUsingAsset(assetID string) []string {
	var ids []string
	for _, t := range g.Tracks() {
		if t.MusicAssetID == assetID {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// --- Assets ---

// CreateMusicAsset adds an asset, generating an id when a.ID is empty.
func (g *Graph) CreateMusicAsset(a MusicAsset) (*Graph, string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, dup := g.assets[a.ID]; dup {
		return g, "", fmt.Errorf("asset %q: %w", a.ID, ErrDuplicateID)
	}
	next := g.clone()
	next.assets[a.ID] = a
	return next, a.ID, nil
}

// ReplaceMusicAsset swaps an existing asset for a new value wholesale.
func (g *Graph) ReplaceMusicAsset(a MusicAsset) (*Graph, error) {
	if _, ok := g.assets[a.ID]; !ok {
		return g, notFound("asset", a.ID)
	}
	next := g.clone()
	next.assets[a.ID] = a
	return next, nil
}

// RemoveMusicAsset fails with ErrReferentialIntegrity while any track
// still plays the asset.
func (g *Graph) RemoveMusicAsset(id string) (*Graph, error) {
	if _, ok := g.assets[id]; !ok {
		return g, notFound("asset", id)
	}
	if users := g.TracksUsingAsset(id); len(users) > 0 {
		return g, &ReferenceError{Kind: "asset", ID: id, ReferencedBy: users}
	}
	next := g.clone()
	delete(next.assets, id)
	return next, nil
}

// --- Tracks ---

// CreateTrack adds a track, generating an id when t.ID is empty. Length
// is ignored: it is only ever set from the decoded asset.
func (g *Graph) CreateTrack(t Track) (*Graph, string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, dup := g.tracks[t.ID]; dup {
		return g, "", fmt.Errorf("track %q: %w", t.ID, ErrDuplicateID)
	}
	t = t.Clone()
	t.Length = 0
	next := g.clone()
	next.tracks[t.ID] = t
	return next, t.ID, nil
}

// UpdateTrack replaces the editable scalar fields of an existing track.
// Length and checkpoints are kept; checkpoints change through SetCheckPoint
// and friends.
func (g *Graph) UpdateTrack(t Track) (*Graph, error) {
	cur, ok := g.tracks[t.ID]
	if !ok {
		return g, notFound("track", t.ID)
	}
	cur.DisplayName = t.DisplayName
	cur.Order = t.Order
	cur.MusicAssetID = t.MusicAssetID
	cur.StartOffset = t.StartOffset
	cur.BPM = t.BPM
	cur.BeatsPerBar = t.BeatsPerBar
	next := g.clone()
	next.tracks[t.ID] = cur
	return next, nil
}

// SetTrackLength records the length measured from the decoded asset.
func (g *Graph) SetTrackLength(id string, length timespan.TimeSpan) (*Graph, error) {
	cur, ok := g.tracks[id]
	if !ok {
		return g, notFound("track", id)
	}
	if cur.Length == length {
		return g, nil
	}
	cur.Length = length
	next := g.clone()
	next.tracks[id] = cur
	return next, nil
}

// RemoveTrack deletes a track. It fails with ErrReferentialIntegrity and
// leaves the graph unchanged while any other track jumps to it; the
// track's own self-jumps go away with it.
func (g *Graph) RemoveTrack(id string) (*Graph, error) {
	if _, ok := g.tracks[id]; !ok {
		return g, notFound("track", id)
	}
	var from []string
	for _, ref := range g.ReferencesTo(id) {
		if ref.TrackID != id {
			from = append(from, ref.String())
		}
	}
	if len(from) > 0 {
		return g, &ReferenceError{Kind: "track", ID: id, ReferencedBy: from}
	}
	next := g.clone()
	delete(next.tracks, id)
	return next, nil
}

// ReassignJumpTargets points every jump aimed at from to to instead.
func (g *Graph) ReassignJumpTargets(from, to string) (*Graph, error) {
	if _, ok := g.tracks[to]; !ok {
		return g, notFound("track", to)
	}
	return g.rewriteJumps(func(j JumpTo) (JumpTo, bool) {
		if j.TargetTrackID == from {
			j.TargetTrackID = to
		}
		return j, true
	}), nil
}

// RemoveJumpsTo deletes every jump aimed at trackID. Destinations left
// with no jumps are dropped with them.
func (g *Graph) RemoveJumpsTo(trackID string) *Graph {
	return g.rewriteJumps(func(j JumpTo) (JumpTo, bool) {
		return j, j.TargetTrackID != trackID
	})
}

func (g *Graph) rewriteJumps(fn func(JumpTo) (JumpTo, bool)) *Graph {
	next := g.clone()
	for id, t := range g.tracks {
		t = t.Clone()
		for ci := range t.CheckPoints {
			cp := &t.CheckPoints[ci]
			dests := cp.Destinations[:0]
			for _, d := range cp.Destinations {
				d.Jumps = filterJumps(d.Jumps, fn)
				if len(d.Jumps) > 0 {
					dests = append(dests, d)
				}
			}
			cp.Destinations = dests
			cp.Defaults = filterJumps(cp.Defaults, fn)
		}
		next.tracks[id] = t
	}
	return next
}

func filterJumps(js []JumpTo, fn func(JumpTo) (JumpTo, bool)) []JumpTo {
	out := js[:0]
	for _, j := range js {
		if nj, keep := fn(j); keep {
			out = append(out, nj)
		}
	}
	return out
}

// --- Checkpoints ---

// editTrack applies fn to a private copy of a track and stores the result
// in a new snapshot.
func (g *Graph) editTrack(id string, fn func(t *Track) error) (*Graph, error) {
	cur, ok := g.tracks[id]
	if !ok {
		return g, notFound("track", id)
	}
	t := cur.Clone()
	if err := fn(&t); err != nil {
		return g, err
	}
	next := g.clone()
	next.tracks[id] = t
	return next, nil
}

func (t *Track) checkPoint(i int) (*CheckPoint, error) {
	if i < 0 || i >= len(t.CheckPoints) {
		return nil, badIndex("checkpoint", i, len(t.CheckPoints))
	}
	return &t.CheckPoints[i], nil
}

func (cp *CheckPoint) jumpList(dest int) (*[]JumpTo, error) {
	if dest == DefaultList {
		return &cp.Defaults, nil
	}
	if dest < 0 || dest >= len(cp.Destinations) {
		return nil, badIndex("destination", dest, len(cp.Destinations))
	}
	return &cp.Destinations[dest].Jumps, nil
}

// SetCheckPoint replaces the checkpoint at index, or appends when index
// equals the current count.
func (g *Graph) SetCheckPoint(trackID string, index int, cp CheckPoint) (*Graph, error) {
	return g.editTrack(trackID, func(t *Track) error {
		switch {
		case index == len(t.CheckPoints):
			t.CheckPoints = append(t.CheckPoints, cp.Clone())
		case index >= 0 && index < len(t.CheckPoints):
			t.CheckPoints[index] = cp.Clone()
		default:
			return badIndex("checkpoint", index, len(t.CheckPoints))
		}
		return nil
	})
}

func (g *Graph) RemoveCheckPoint(trackID string, index int) (*Graph, error) {
	return g.editTrack(trackID, func(t *Track) error {
		if _, err := t.checkPoint(index); err != nil {
			return err
		}
		t.CheckPoints = append(t.CheckPoints[:index], t.CheckPoints[index+1:]...)
		return nil
	})
}

// AddDestination appends a conditional destination to a checkpoint.
func (g *Graph) AddDestination(trackID string, cpIndex int, d Destination) (*Graph, error) {
	return g.editTrack(trackID, func(t *Track) error {
		cp, err := t.checkPoint(cpIndex)
		if err != nil {
			return err
		}
		cp.Destinations = append(cp.Destinations, d.Clone())
		return nil
	})
}

func (g *Graph) RemoveDestination(trackID string, cpIndex, destIndex int) (*Graph, error) {
	return g.editTrack(trackID, func(t *Track) error {
		cp, err := t.checkPoint(cpIndex)
		if err != nil {
			return err
		}
		if destIndex < 0 || destIndex >= len(cp.Destinations) {
			return badIndex("destination", destIndex, len(cp.Destinations))
		}
		cp.Destinations = append(cp.Destinations[:destIndex], cp.Destinations[destIndex+1:]...)
		return nil
	})
}

// AddJumpTo appends a jump to a destination, or to the checkpoint's
// default list when destIndex is DefaultList.
func (g *Graph) AddJumpTo(trackID string, cpIndex, destIndex int, j JumpTo) (*Graph, error) {
	return g.editTrack(trackID, func(t *Track) error {
		cp, err := t.checkPoint(cpIndex)
		if err != nil {
			return err
		}
		list, err := cp.jumpList(destIndex)
		if err != nil {
			return err
		}
		*list = append(*list, j)
		return nil
	})
}

func (g *Graph) RemoveJumpTo(trackID string, cpIndex, destIndex, jumpIndex int) (*Graph, error) {
	return g.editTrack(trackID, func(t *Track) error {
		cp, err := t.checkPoint(cpIndex)
		if err != nil {
			return err
		}
		list, err := cp.jumpList(destIndex)
		if err != nil {
			return err
		}
		if jumpIndex < 0 || jumpIndex >= len(*list) {
			return badIndex("jump", jumpIndex, len(*list))
		}
		*list = append((*list)[:jumpIndex], (*list)[jumpIndex+1:]...)
		return nil
	})
}

// SortedCheckPoints returns the track's checkpoints ordered by time; equal
// times keep list order.
func SortedCheckPoints(t Track) []CheckPoint {
	out := make([]CheckPoint, len(t.CheckPoints))
	copy(out, t.CheckPoints)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}
