// Package browse backs the editor's file picker. Every operation reports
// failure as a readable reason rather than an error value.
package browse

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

type Result struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

func fail(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	IsDir   bool      `json:"isDir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

type Listing struct {
	Result
	Path    string  `json:"path"`
	Parent  string  `json:"parent,omitempty"`
	Entries []Entry `json:"entries"`
}

// Options narrow a listing. Extensions match case-insensitively and never
// hide directories.
type Options struct {
	Extensions []string
	ShowHidden bool
}

// ListDir lists path with directories first, then files, each by name.
func ListDir(path string, opts Options) Listing {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Listing{Result: fail("%s: %v", path, err)}
	}
	des, err := os.ReadDir(abs)
	if err != nil {
		return Listing{Result: fail("%s", reason(abs, err)), Path: abs}
	}

	out := Listing{Result: Result{OK: true}, Path: abs, Entries: []Entry{}}
	if parent := filepath.Dir(abs); parent != abs {
		out.Parent = parent
	}
	for _, de := range des {
		name := de.Name()
		if !opts.ShowHidden && strings.HasPrefix(name, ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		isDir := info.IsDir()
		if !isDir && !matchExt(name, opts.Extensions) {
			continue
		}
		out.Entries = append(out.Entries, Entry{
			Name:    name,
			Path:    filepath.Join(abs, name),
			IsDir:   isDir,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.SliceStable(out.Entries, func(i, j int) bool {
		a, b := out.Entries[i], out.Entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return out
}

func matchExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// ListDisks returns the roots a user can start browsing from: drive
// letters on Windows, the filesystem root plus mounted volumes elsewhere.
func ListDisks() []string {
	if runtime.GOOS == "windows" {
		var out []string
		for c := 'A'; c <= 'Z'; c++ {
			root := string(c) + `:\`
			if _, err := os.Stat(root); err == nil {
				out = append(out, root)
			}
		}
		return out
	}
	out := []string{"/"}
	for _, base := range []string{"/Volumes", "/media", "/mnt"} {
		des, err := os.ReadDir(base)
		if err != nil {
			continue
		}
		for _, de := range des {
			if de.IsDir() && !strings.HasPrefix(de.Name(), ".") {
				out = append(out, filepath.Join(base, de.Name()))
			}
		}
	}
	return out
}

// CreateFile creates an empty file. It fails if path already exists.
func CreateFile(path string) Result {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fail("%s", reason(path, err))
	}
	if err := f.Close(); err != nil {
		return fail("%s", reason(path, err))
	}
	return Result{OK: true}
}

// CreateFolder creates one directory. The parent must exist.
func CreateFolder(path string) Result {
	if err := os.Mkdir(path, 0o755); err != nil {
		return fail("%s", reason(path, err))
	}
	return Result{OK: true}
}

func reason(path string, err error) string {
	switch {
	case errors.Is(err, fs.ErrExist):
		return path + " already exists"
	case errors.Is(err, fs.ErrNotExist):
		return path + " does not exist"
	case errors.Is(err, fs.ErrPermission):
		return "permission denied: " + path
	default:
		var perr *fs.PathError
		if errors.As(err, &perr) {
			return fmt.Sprintf("%s: %v", path, perr.Err)
		}
		return err.Error()
	}
}
