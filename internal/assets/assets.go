// Package assets opens the raw bytes behind a music asset's sourcePath.
// Plain paths are read from disk; s3://bucket/key paths come from MinIO
// when an endpoint is configured.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrUnsupportedScheme = errors.New("unsupported asset scheme")

// Fetcher opens one kind of asset location.
type Fetcher interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// FileFetcher reads local files. Relative paths resolve against Root.
type FileFetcher struct {
	Root string
}

func (f FileFetcher) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path = strings.TrimPrefix(path, "file://")
	if !filepath.IsAbs(path) && f.Root != "" {
		path = filepath.Join(f.Root, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open asset: %w", err)
	}
	return file, nil
}

// Router dispatches on the path scheme. Paths without a scheme (and
// file://) go to the local fetcher.
type Router struct {
	local   Fetcher
	schemes map[string]Fetcher
}

func NewRouter(local Fetcher) *Router {
	return &Router{local: local, schemes: make(map[string]Fetcher)}
}

// Handle registers f for paths starting with scheme + "://".
func (r *Router) Handle(scheme string, f Fetcher) {
	r.schemes[strings.ToLower(scheme)] = f
}

func (r *Router) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	scheme, _, ok := strings.Cut(path, "://")
	if !ok || strings.EqualFold(scheme, "file") || isDrive(scheme) {
		return r.local.Open(ctx, path)
	}
	f, ok := r.schemes[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", scheme, ErrUnsupportedScheme)
	}
	return f.Open(ctx, path)
}

// isDrive reports a Windows drive letter such as "C" in C://music.
func isDrive(scheme string) bool {
	return len(scheme) == 1
}
