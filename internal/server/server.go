// Package server exposes the editor backend over HTTP: graph edits,
// validation, preview control, the file picker and live progress.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/satindergrewal/segue/internal/audio"
	"github.com/satindergrewal/segue/internal/engine"
	"github.com/satindergrewal/segue/internal/logger"
	"github.com/satindergrewal/segue/internal/project"
	"github.com/satindergrewal/segue/internal/reporter"
	"github.com/satindergrewal/segue/internal/situation"
)

// Decoder is the decode service as seen by the API.
type Decoder interface {
	Request(assetID, path string)
	Retry(assetID string) error
	Forget(assetID string)
	Status(assetID string) audio.Status
}

// Deps wires the server to the rest of the editor. Stream and Offer are
// optional.
type Deps struct {
	Workspace *project.Workspace
	Engine    *engine.Engine
	Reporter  *reporter.Reporter
	Situation *situation.Manual
	Decoder   Decoder
	Stream    http.Handler
	Offer     http.Handler
}

// eventHistory is how many engine events GET /api/preview/events keeps.
const eventHistory = 64

type Server struct {
	Deps
	router   *mux.Router
	upgrader websocket.Upgrader

	evMu   sync.RWMutex
	events []engine.Event
}

func New(d Deps) *Server {
	s := &Server{
		Deps:   d,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // local editor, the UI may be served from a dev server
			},
		},
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) routes() {
	r := s.router
	r.Use(cors)
	// OPTIONS must match a route for the middleware to answer preflights
	r.Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/project", s.handleProject).Methods(http.MethodGet)
	api.HandleFunc("/project/save", s.handleSave).Methods(http.MethodPost)
	api.HandleFunc("/project/reload", s.handleReload).Methods(http.MethodPost)
	api.HandleFunc("/validate", s.handleValidate).Methods(http.MethodGet)
	api.HandleFunc("/weights", s.handleSetWeights).Methods(http.MethodPut)

	api.HandleFunc("/assets", s.handleListAssets).Methods(http.MethodGet)
	api.HandleFunc("/assets", s.handleCreateAsset).Methods(http.MethodPost)
	api.HandleFunc("/assets/{id}", s.handleReplaceAsset).Methods(http.MethodPut)
	api.HandleFunc("/assets/{id}", s.handleRemoveAsset).Methods(http.MethodDelete)
	api.HandleFunc("/assets/{id}/retry", s.handleRetryAsset).Methods(http.MethodPost)

	api.HandleFunc("/tracks", s.handleListTracks).Methods(http.MethodGet)
	api.HandleFunc("/tracks", s.handleCreateTrack).Methods(http.MethodPost)
	api.HandleFunc("/tracks/{id}", s.handleGetTrack).Methods(http.MethodGet)
	api.HandleFunc("/tracks/{id}", s.handleUpdateTrack).Methods(http.MethodPut)
	api.HandleFunc("/tracks/{id}", s.handleRemoveTrack).Methods(http.MethodDelete)
	api.HandleFunc("/tracks/{id}/references", s.handleReferences).Methods(http.MethodGet)
	api.HandleFunc("/tracks/{id}/references", s.handleDropReferences).Methods(http.MethodDelete)
	api.HandleFunc("/tracks/{id}/reassign", s.handleReassign).Methods(http.MethodPost)

	cp := api.PathPrefix("/tracks/{id}/checkpoints/{cp:[0-9]+}").Subrouter()
	cp.HandleFunc("", s.handleSetCheckPoint).Methods(http.MethodPut)
	cp.HandleFunc("", s.handleRemoveCheckPoint).Methods(http.MethodDelete)
	cp.HandleFunc("/destinations", s.handleAddDestination).Methods(http.MethodPost)
	cp.HandleFunc("/destinations/{dest:[0-9]+}", s.handleRemoveDestination).Methods(http.MethodDelete)
	cp.HandleFunc("/destinations/{dest}/jumps", s.handleAddJump).Methods(http.MethodPost)
	cp.HandleFunc("/destinations/{dest}/jumps/{jump:[0-9]+}", s.handleRemoveJump).Methods(http.MethodDelete)

	api.HandleFunc("/situation", s.handleGetSituation).Methods(http.MethodGet)
	api.HandleFunc("/situation", s.handleSetSituation).Methods(http.MethodPut)

	api.HandleFunc("/preview", s.handlePreviewStatus).Methods(http.MethodGet)
	api.HandleFunc("/preview/events", s.handlePreviewEvents).Methods(http.MethodGet)
	api.HandleFunc("/preview/play", s.handlePlay).Methods(http.MethodPost)
	api.HandleFunc("/preview/pause", s.handlePause).Methods(http.MethodPost)
	api.HandleFunc("/preview/resume", s.handleResume).Methods(http.MethodPost)
	api.HandleFunc("/preview/seek", s.handleSeek).Methods(http.MethodPost)
	api.HandleFunc("/preview/stop", s.handleStop).Methods(http.MethodPost)

	api.HandleFunc("/browse", s.handleBrowse).Methods(http.MethodGet)
	api.HandleFunc("/browse/disks", s.handleDisks).Methods(http.MethodGet)
	api.HandleFunc("/browse/file", s.handleCreateFile).Methods(http.MethodPost)
	api.HandleFunc("/browse/folder", s.handleCreateFolder).Methods(http.MethodPost)

	r.HandleFunc("/ws/progress", s.handleProgressSocket).Methods(http.MethodGet)
	if s.Stream != nil {
		r.Handle("/stream", s.Stream).Methods(http.MethodGet)
	}
	if s.Offer != nil {
		r.Handle("/offer", s.Offer).Methods(http.MethodPost)
	}
}

// PumpEvents logs engine events and keeps the most recent ones for the
// UI. It returns when ctx is done or the channel closes.
func (s *Server) PumpEvents(ctx context.Context, events <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case engine.TransitionAborted:
				logger.Warn("transition aborted", logger.String("from", ev.TrackID), logger.String("to", ev.TargetTrackID), logger.String("reason", ev.Reason))
			default:
				logger.Debug("preview event", logger.String("kind", string(ev.Kind)), logger.String("track", ev.TrackID))
			}
			s.evMu.Lock()
			s.events = append(s.events, ev)
			if n := len(s.events); n > eventHistory {
				s.events = append([]engine.Event(nil), s.events[n-eventHistory:]...)
			}
			s.evMu.Unlock()
		}
	}
}

func (s *Server) recentEvents() []engine.Event {
	s.evMu.RLock()
	defer s.evMu.RUnlock()
	return append([]engine.Event{}, s.events...)
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// with a five second grace period.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("editor api listening", logger.Int("port", port))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down editor api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
