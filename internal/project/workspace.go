package project

import (
	"crypto/sha256"
	"errors"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"github.com/satindergrewal/segue/internal/graph"
	"github.com/satindergrewal/segue/internal/logger"
	"github.com/satindergrewal/segue/internal/timespan"
)

// Decoder is the part of the decode service the workspace drives.
type Decoder interface {
	Request(assetID, path string)
}

// Workspace holds the current snapshot of an open project. Readers take
// the snapshot without locking; edits, saves and reloads are serialised.
type Workspace struct {
	path    string
	current atomic.Pointer[graph.Graph]

	mu     sync.Mutex
	digest [sha256.Size]byte // of the bytes last read from or written to path
	hooks  []func(*graph.Graph)
}

// NewWorkspace starts with an empty graph bound to path.
func NewWorkspace(path string) *Workspace {
	w := &Workspace{path: path}
	w.current.Store(graph.New())
	return w
}

func (w *Workspace) Path() string { return w.path }

// Graph returns the current snapshot.
func (w *Workspace) Graph() *graph.Graph { return w.current.Load() }

// OnChange registers a hook run after every snapshot replacement.
func (w *Workspace) OnChange(fn func(*graph.Graph)) {
	w.mu.Lock()
	w.hooks = append(w.hooks, fn)
	w.mu.Unlock()
}

// Open loads the project file. A missing file leaves an empty project.
func (w *Workspace) Open() Result {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("project file not found, starting empty", logger.String("path", w.path))
		w.Replace(graph.New())
		return Result{OK: true}
	}
	if err != nil {
		logger.Warn("project load failed", logger.String("path", w.path), logger.Err(err))
		return ResultOf(err)
	}
	if err := w.apply(data); err != nil {
		logger.Warn("project load failed", logger.String("path", w.path), logger.Err(err))
		return ResultOf(err)
	}
	logger.Info("project loaded", logger.String("path", w.path), logger.Int("tracks", w.Graph().TrackCount()))
	return Result{OK: true}
}

func (w *Workspace) apply(data []byte) error {
	g, err := Decode(data, FormatFor(w.path))
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.digest = sha256.Sum256(data)
	w.current.Store(g)
	hooks := w.hooks
	w.mu.Unlock()
	notify(hooks, g)
	return nil
}

// Save writes the current snapshot. An invalid graph is refused and the
// violations come back in the result.
func (w *Workspace) Save() Result {
	w.mu.Lock()
	data, err := save(w.path, w.current.Load())
	if err == nil {
		w.digest = sha256.Sum256(data)
	}
	w.mu.Unlock()
	if err != nil {
		logger.Warn("project save failed", logger.String("path", w.path), logger.Err(err))
		return ResultOf(err)
	}
	logger.Info("project saved", logger.String("path", w.path))
	return Result{OK: true}
}

// Replace swaps in a whole new snapshot.
func (w *Workspace) Replace(g *graph.Graph) {
	w.mu.Lock()
	w.current.Store(g)
	hooks := w.hooks
	w.mu.Unlock()
	notify(hooks, g)
}

// Update applies fn to the current snapshot and stores the result. On
// error the snapshot is left as it was.
func (w *Workspace) Update(fn func(*graph.Graph) (*graph.Graph, error)) (*graph.Graph, error) {
	w.mu.Lock()
	next, err := fn(w.current.Load())
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	w.current.Store(next)
	hooks := w.hooks
	w.mu.Unlock()
	notify(hooks, next)
	return next, nil
}

func notify(hooks []func(*graph.Graph), g *graph.Graph) {
	for _, fn := range hooks {
		fn(g)
	}
}

// RequestDecodes asks d to decode every asset of the current snapshot.
func (w *Workspace) RequestDecodes(d Decoder) {
	for _, a := range w.Graph().Assets() {
		d.Request(a.ID, a.SourcePath)
	}
}

// SetAssetLength records a decoded asset's length on every track that
// plays it. It is the decode service's ready hook.
func (w *Workspace) SetAssetLength(assetID string, length timespan.TimeSpan) {
	_, err := w.Update(func(g *graph.Graph) (*graph.Graph, error) {
		var err error
		for _, id := range g.TracksUsingAsset(assetID) {
			if g, err = g.SetTrackLength(id, length); err != nil {
				return nil, err
			}
		}
		return g, nil
	})
	if err != nil {
		logger.Warn("track length update failed", logger.String("asset", assetID), logger.Err(err))
		return
	}
	logger.Debug("asset length applied", logger.String("asset", assetID), logger.Span("length", length))
}
