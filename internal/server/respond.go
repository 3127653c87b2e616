package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/satindergrewal/segue/internal/audio"
	"github.com/satindergrewal/segue/internal/engine"
	"github.com/satindergrewal/segue/internal/graph"
	"github.com/satindergrewal/segue/internal/logger"
	"github.com/satindergrewal/segue/internal/timespan"
)

type errorBody struct {
	Error        string            `json:"error"`
	Violations   []graph.Violation `json:"violations,omitempty"`
	ReferencedBy []string          `json:"referencedBy,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("response write failed", logger.Err(err))
	}
}

// writeError maps the error taxonomy onto status codes.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError

	var verr *graph.ValidationError
	var rerr *graph.ReferenceError
	switch {
	case errors.As(err, &verr):
		status = http.StatusUnprocessableEntity
		body.Violations = verr.Violations
	case errors.As(err, &rerr):
		status = http.StatusConflict
		body.ReferencedBy = rerr.ReferencedBy
	case errors.Is(err, graph.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, graph.ErrDuplicateID):
		status = http.StatusConflict
	case errors.Is(err, graph.ErrIndexOutOfRange), errors.Is(err, timespan.ErrFormat), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, audio.ErrNotReady), errors.Is(err, engine.ErrNoSession):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", logger.Err(err))
	}
	writeJSON(w, status, body)
}

var errBadRequest = errors.New("bad request")

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		// keep the time format error matchable
		if errors.Is(err, timespan.ErrFormat) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func pathInt(r *http.Request, name string) (int, error) {
	v := mux.Vars(r)[name]
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", errBadRequest, name, v)
	}
	return n, nil
}

// destIndex reads {dest}: a destination index or "default".
func destIndex(r *http.Request) (int, error) {
	if mux.Vars(r)["dest"] == "default" {
		return graph.DefaultList, nil
	}
	return pathInt(r, "dest")
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, graph.ErrNotFound)
}
