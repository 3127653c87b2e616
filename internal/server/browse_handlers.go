package server

import (
	"net/http"
	"strings"

	"github.com/satindergrewal/segue/internal/browse"
)

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		path = "."
	}
	opts := browse.Options{ShowHidden: q.Get("hidden") == "1" || q.Get("hidden") == "true"}
	if ext := q.Get("ext"); ext != "" {
		opts.Extensions = strings.Split(ext, ",")
	}
	// failures are reported in the body; the picker shows the reason
	writeJSON(w, http.StatusOK, browse.ListDir(path, opts))
}

func (s *Server) handleDisks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"disks": browse.ListDisks()})
}

type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, browse.CreateFile(req.Path))
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, browse.CreateFolder(req.Path))
}
