package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/satindergrewal/segue/internal/audio"
	"github.com/satindergrewal/segue/internal/graph"
	"github.com/satindergrewal/segue/internal/project"
)

func (s *Server) update(w http.ResponseWriter, fn func(*graph.Graph) (*graph.Graph, error)) (*graph.Graph, bool) {
	g, err := s.Workspace.Update(fn)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return g, true
}

func (s *Server) writeTrack(w http.ResponseWriter, g *graph.Graph, id string, status int) {
	t, ok := g.Track(id)
	if !ok {
		writeError(w, notFound("track", id))
		return
	}
	writeJSON(w, status, t)
}

// --- Project ---

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, project.FromGraph(s.Workspace.Graph()))
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	res := s.Workspace.Save()
	status := http.StatusOK
	if !res.OK {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	res := s.Workspace.Open()
	status := http.StatusOK
	if !res.OK {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	vs := graph.Validate(s.Workspace.Graph())
	if vs == nil {
		vs = []graph.Violation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": len(vs) == 0, "violations": vs})
}

type weightsRequest struct {
	UnitWeights map[string]float64 `json:"unitWeights"`
	Thresholds  map[string]float64 `json:"thresholds"`
}

func (s *Server) handleSetWeights(w http.ResponseWriter, r *http.Request) {
	var req weightsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	g, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		if req.UnitWeights != nil {
			g = g.WithUnitWeights(req.UnitWeights)
		}
		if req.Thresholds != nil {
			g = g.WithThresholds(req.Thresholds)
		}
		return g, nil
	})
	if ok {
		writeJSON(w, http.StatusOK, weightsRequest{UnitWeights: g.UnitWeights(), Thresholds: g.Thresholds()})
	}
}

// --- Assets ---

type assetView struct {
	graph.MusicAsset
	Decode audio.Status `json:"decode"`
}

func (s *Server) assetView(a graph.MusicAsset) assetView {
	v := assetView{MusicAsset: a}
	if s.Decoder != nil {
		v.Decode = s.Decoder.Status(a.ID)
	}
	return v
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	out := []assetView{}
	for _, a := range s.Workspace.Graph().Assets() {
		out = append(out, s.assetView(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var a graph.MusicAsset
	if err := decodeBody(r, &a); err != nil {
		writeError(w, err)
		return
	}
	var id string
	if _, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		next, newID, err := g.CreateMusicAsset(a)
		id = newID
		return next, err
	}); !ok {
		return
	}
	a.ID = id
	if s.Decoder != nil {
		s.Decoder.Request(a.ID, a.SourcePath)
	}
	writeJSON(w, http.StatusCreated, s.assetView(a))
}

func (s *Server) handleReplaceAsset(w http.ResponseWriter, r *http.Request) {
	var a graph.MusicAsset
	if err := decodeBody(r, &a); err != nil {
		writeError(w, err)
		return
	}
	a.ID = mux.Vars(r)["id"]
	if _, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		return g.ReplaceMusicAsset(a)
	}); !ok {
		return
	}
	if s.Decoder != nil {
		s.Decoder.Request(a.ID, a.SourcePath)
	}
	writeJSON(w, http.StatusOK, s.assetView(a))
}

func (s *Server) handleRemoveAsset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		return g.RemoveMusicAsset(id)
	}); !ok {
		return
	}
	if s.Decoder != nil {
		s.Decoder.Forget(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetryAsset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, ok := s.Workspace.Graph().Asset(id)
	if !ok {
		writeError(w, notFound("asset", id))
		return
	}
	if s.Decoder == nil {
		writeError(w, audio.ErrNotReady)
		return
	}
	if err := s.Decoder.Retry(id); err != nil {
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, s.assetView(a))
}

// --- Tracks ---

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks := s.Workspace.Graph().Tracks()
	if tracks == nil {
		tracks = []graph.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, ok := s.Workspace.Graph().Track(id)
	if !ok {
		writeError(w, notFound("track", id))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateTrack(w http.ResponseWriter, r *http.Request) {
	var t graph.Track
	if err := decodeBody(r, &t); err != nil {
		writeError(w, err)
		return
	}
	var id string
	g, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		next, newID, err := g.CreateTrack(t)
		if err != nil {
			return nil, err
		}
		id = newID
		// a new track on an already decoded asset gets its length now
		if s.Decoder != nil {
			if st := s.Decoder.Status(t.MusicAssetID); st.State == audio.Ready {
				return next.SetTrackLength(id, st.Length)
			}
		}
		return next, nil
	})
	if ok {
		s.writeTrack(w, g, id, http.StatusCreated)
	}
}

func (s *Server) handleUpdateTrack(w http.ResponseWriter, r *http.Request) {
	var t graph.Track
	if err := decodeBody(r, &t); err != nil {
		writeError(w, err)
		return
	}
	t.ID = mux.Vars(r)["id"]
	g, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		next, err := g.UpdateTrack(t)
		if err != nil {
			return nil, err
		}
		if s.Decoder != nil {
			if st := s.Decoder.Status(t.MusicAssetID); st.State == audio.Ready {
				return next.SetTrackLength(t.ID, st.Length)
			}
		}
		return next, nil
	})
	if ok {
		s.writeTrack(w, g, t.ID, http.StatusOK)
	}
}

func (s *Server) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		return g.RemoveTrack(id)
	}); ok {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleReferences(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	refs := []string{}
	for _, ref := range s.Workspace.Graph().ReferencesTo(id) {
		refs = append(refs, ref.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{"trackId": id, "referencedBy": refs})
}

func (s *Server) handleDropReferences(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		return g.RemoveJumpsTo(id), nil
	}); ok {
		w.WriteHeader(http.StatusNoContent)
	}
}

type reassignRequest struct {
	To string `json:"to"`
}

func (s *Server) handleReassign(w http.ResponseWriter, r *http.Request) {
	var req reassignRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if _, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		return g.ReassignJumpTargets(id, req.To)
	}); ok {
		w.WriteHeader(http.StatusNoContent)
	}
}

// --- Checkpoints ---

func (s *Server) handleSetCheckPoint(w http.ResponseWriter, r *http.Request) {
	var cp graph.CheckPoint
	if err := decodeBody(r, &cp); err != nil {
		writeError(w, err)
		return
	}
	idx, err := pathInt(r, "cp")
	if err != nil {
		writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if g, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		return g.SetCheckPoint(id, idx, cp)
	}); ok {
		s.writeTrack(w, g, id, http.StatusOK)
	}
}

func (s *Server) handleRemoveCheckPoint(w http.ResponseWriter, r *http.Request) {
	idx, err := pathInt(r, "cp")
	if err != nil {
		writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if g, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		return g.RemoveCheckPoint(id, idx)
	}); ok {
		s.writeTrack(w, g, id, http.StatusOK)
	}
}

func (s *Server) handleAddDestination(w http.ResponseWriter, r *http.Request) {
	var d graph.Destination
	if err := decodeBody(r, &d); err != nil {
		writeError(w, err)
		return
	}
	idx, err := pathInt(r, "cp")
	if err != nil {
		writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if g, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		return g.AddDestination(id, idx, d)
	}); ok {
		s.writeTrack(w, g, id, http.StatusCreated)
	}
}

func (s *Server) handleRemoveDestination(w http.ResponseWriter, r *http.Request) {
	idx, err := pathInt(r, "cp")
	if err != nil {
		writeError(w, err)
		return
	}
	dest, err := pathInt(r, "dest")
	if err != nil {
		writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if g, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		return g.RemoveDestination(id, idx, dest)
	}); ok {
		s.writeTrack(w, g, id, http.StatusOK)
	}
}

func (s *Server) handleAddJump(w http.ResponseWriter, r *http.Request) {
	var j graph.JumpTo
	if err := decodeBody(r, &j); err != nil {
		writeError(w, err)
		return
	}
	idx, err := pathInt(r, "cp")
	if err != nil {
		writeError(w, err)
		return
	}
	dest, err := destIndex(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if g, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		return g.AddJumpTo(id, idx, dest, j)
	}); ok {
		s.writeTrack(w, g, id, http.StatusCreated)
	}
}

func (s *Server) handleRemoveJump(w http.ResponseWriter, r *http.Request) {
	idx, err := pathInt(r, "cp")
	if err != nil {
		writeError(w, err)
		return
	}
	dest, err := destIndex(r)
	if err != nil {
		writeError(w, err)
		return
	}
	jump, err := pathInt(r, "jump")
	if err != nil {
		writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if g, ok := s.update(w, func(g *graph.Graph) (*graph.Graph, error) {
		return g.RemoveJumpTo(id, idx, dest, jump)
	}); ok {
		s.writeTrack(w, g, id, http.StatusOK)
	}
}
