package server

import (
	"net/http"

	"github.com/satindergrewal/segue/internal/timespan"
)

type situationBody struct {
	Name string `json:"name"`
}

func (s *Server) handleGetSituation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, situationBody{Name: s.Situation.Selected()})
}

func (s *Server) handleSetSituation(w http.ResponseWriter, r *http.Request) {
	var req situationBody
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.Situation.Select(req.Name)
	writeJSON(w, http.StatusOK, situationBody{Name: s.Situation.Selected()})
}

type playRequest struct {
	TrackID string             `json:"trackId"`
	From    *timespan.TimeSpan `json:"from,omitempty"`
}

// handlePlay starts a session against the snapshot current at this
// moment; later edits do not reach it until the next play.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	g := s.Workspace.Graph()
	var err error
	if req.From != nil {
		err = s.Engine.Play(g, req.TrackID, *req.From)
	} else {
		err = s.Engine.PlayTrack(g, req.TrackID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Pause(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Resume(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

type seekRequest struct {
	Progress timespan.TimeSpan `json:"progress"`
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Engine.Seek(req.Progress); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.Engine.Stop()
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

func (s *Server) handlePreviewStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Snapshot())
}

func (s *Server) handlePreviewEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.recentEvents())
}
