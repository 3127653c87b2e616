package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/satindergrewal/segue/internal/logger"
	"github.com/satindergrewal/segue/internal/timespan"
)

type State int

const (
	Absent State = iota
	Pending
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "absent"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Absent, Pending, Ready, Failed} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown decode state %q", b)
}

// Status describes one asset's decode.
type Status struct {
	State  State             `json:"state"`
	Path   string            `json:"path,omitempty"`
	Error  string            `json:"error,omitempty"`
	Length timespan.TimeSpan `json:"length"`
}

// Opener resolves an asset source path to its encoded bytes.
type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// ReadyFunc is called once per successful decode with the measured length.
type ReadyFunc func(assetID string, length timespan.TimeSpan)

type entry struct {
	path   string
	state  State
	buf    *Buffer
	err    error
	gen    int
	cancel context.CancelFunc
	done   chan struct{}
}

// DecodeService decodes assets in the background and hands out buffers
// once they are ready. Each asset is decoded at most once per request;
// requesting the same path again is a no-op.
type DecodeService struct {
	decode func(ctx context.Context, path string) (*Buffer, error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*entry
	onReady []ReadyFunc
}

// NewDecodeService decodes through open, falling back to the ffmpeg binary
// at ffmpegPath for formats without a native decoder.
func NewDecodeService(open Opener, ffmpegPath string) *DecodeService {
	return newDecodeService(func(ctx context.Context, path string) (*Buffer, error) {
		rc, err := open.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return Decode(ctx, rc, path, ffmpegPath)
	})
}

func newDecodeService(decode func(ctx context.Context, path string) (*Buffer, error)) *DecodeService {
	ctx, cancel := context.WithCancel(context.Background())
	return &DecodeService{
		decode:  decode,
		ctx:     ctx,
		cancel:  cancel,
		entries: map[string]*entry{},
	}
}

// OnReady registers a completion hook.
func (s *DecodeService) OnReady(fn ReadyFunc) {
	s.mu.Lock()
	s.onReady = append(s.onReady, fn)
	s.mu.Unlock()
}

// Request starts decoding assetID from path unless that exact path is
// already pending or ready. A new path replaces and cancels the old decode.
func (s *DecodeService) Request(assetID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[assetID]; ok && e.path == path && e.state != Failed {
		return
	}
	s.startLocked(assetID, path)
}

// Retry restarts a failed decode.
func (s *DecodeService) Retry(assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[assetID]
	if !ok {
		return fmt.Errorf("asset %q was never requested", assetID)
	}
	if e.state != Failed {
		return fmt.Errorf("asset %q is %s, not failed", assetID, e.state)
	}
	s.startLocked(assetID, e.path)
	return nil
}

// Forget cancels any decode of assetID and drops its buffer.
func (s *DecodeService) Forget(assetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[assetID]; ok {
		e.cancel()
		delete(s.entries, assetID)
	}
}

func (s *DecodeService) startLocked(assetID, path string) {
	gen := 0
	if old, ok := s.entries[assetID]; ok {
		old.cancel()
		gen = old.gen + 1
	}
	ctx, cancel := context.WithCancel(s.ctx)
	e := &entry{path: path, state: Pending, gen: gen, cancel: cancel, done: make(chan struct{})}
	s.entries[assetID] = e

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(e.done)

		logger.Debug("decoding asset", logger.String("asset", assetID), logger.String("path", path))
		buf, err := s.decode(ctx, path)
		s.finish(assetID, e, buf, err)
	}()
}

func (s *DecodeService) finish(assetID string, e *entry, buf *Buffer, err error) {
	s.mu.Lock()
	if cur, ok := s.entries[assetID]; !ok || cur != e {
		// superseded or forgotten
		s.mu.Unlock()
		return
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.mu.Unlock()
			return
		}
		e.state, e.err = Failed, err
		s.mu.Unlock()
		logger.Error("asset decode failed", logger.String("asset", assetID), logger.String("path", e.path), logger.Err(err))
		return
	}
	e.state, e.buf = Ready, buf
	hooks := append([]ReadyFunc(nil), s.onReady...)
	s.mu.Unlock()

	length := buf.Length()
	logger.Info("asset decoded", logger.String("asset", assetID), logger.Span("length", length))
	for _, fn := range hooks {
		fn(assetID, length)
	}
}

// Buffer returns the decoded buffer, or an error wrapping ErrNotReady.
func (s *DecodeService) Buffer(assetID string) (*Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[assetID]
	switch {
	case !ok:
		return nil, fmt.Errorf("asset %q not requested: %w", assetID, ErrNotReady)
	case e.state == Failed:
		return nil, fmt.Errorf("asset %q failed to decode (%v): %w", assetID, e.err, ErrNotReady)
	case e.state != Ready:
		return nil, fmt.Errorf("asset %q is %s: %w", assetID, e.state, ErrNotReady)
	}
	return e.buf, nil
}

func (s *DecodeService) Status(assetID string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[assetID]
	if !ok {
		return Status{State: Absent}
	}
	st := Status{State: e.state, Path: e.path}
	if e.err != nil {
		st.Error = e.err.Error()
	}
	if e.buf != nil {
		st.Length = e.buf.Length()
	}
	return st
}

// Wait blocks until the current decode of assetID settles. It returns the
// decode error for a failed asset.
func (s *DecodeService) Wait(ctx context.Context, assetID string) error {
	for {
		s.mu.Lock()
		e, ok := s.entries[assetID]
		s.mu.Unlock()
		if !ok {
			return fmt.Errorf("asset %q not requested: %w", assetID, ErrNotReady)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
		}
		s.mu.Lock()
		cur := s.entries[assetID]
		state, err := e.state, e.err
		s.mu.Unlock()
		if cur != e {
			// replaced while waiting; wait for the new decode
			continue
		}
		if state == Failed {
			return err
		}
		return nil
	}
}

// Close cancels outstanding decodes and waits for the workers to exit.
func (s *DecodeService) Close() {
	s.cancel()
	s.wg.Wait()
}
