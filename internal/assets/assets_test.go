package assets

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- FileFetcher ---

func TestFileFetcherRelativeToRoot(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "loop.wav"), []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := FileFetcher{Root: dir}

	for _, p := range []string{"loop.wav", filepath.Join(dir, "loop.wav"), "file://" + filepath.Join(dir, "loop.wav")} {
		rc, err := f.Open(context.Background(), p)
		if err != nil {
			t.Fatalf("Open(%q): %v", p, err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		if string(b) != "RIFF" {
			t.Errorf("Open(%q) read %q", p, b)
		}
	}
}

func TestFileFetcherMissing(t *testing.T) {
	_, err := FileFetcher{Root: t.TempDir()}.Open(context.Background(), "nope.wav")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestFileFetcherCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (FileFetcher{}).Open(ctx, "x.wav"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

// --- Router ---

type stubFetcher struct{ got []string }

func (s *stubFetcher) Open(_ context.Context, path string) (io.ReadCloser, error) {
	s.got = append(s.got, path)
	return io.NopCloser(strings.NewReader(path)), nil
}

func TestRouterDispatch(t *testing.T) {
	local, remote := &stubFetcher{}, &stubFetcher{}
	r := NewRouter(local)
	r.Handle("S3", remote)

	paths := []string{"music/a.wav", "file:///tmp/b.wav", `C://music/c.wav`, "s3://bucket/d.ogg"}
	for _, p := range paths {
		rc, err := r.Open(context.Background(), p)
		if err != nil {
			t.Fatalf("Open(%q): %v", p, err)
		}
		rc.Close()
	}
	if len(local.got) != 3 {
		t.Errorf("local got %v", local.got)
	}
	if len(remote.got) != 1 || remote.got[0] != "s3://bucket/d.ogg" {
		t.Errorf("remote got %v", remote.got)
	}

	if _, err := r.Open(context.Background(), "ftp://host/e.wav"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("ftp err = %v", err)
	}
}

// --- Object paths ---

func TestParseObjectPath(t *testing.T) {
	tests := []struct {
		in          string
		bucket, key string
		wantErr     bool
	}{
		{"s3://music/level1/theme.ogg", "music", "level1/theme.ogg", false},
		{"s3://music/a.wav", "music", "a.wav", false},
		{"s3://music", "", "", true},
		{"s3://music/", "", "", true},
		{"s3:///a.wav", "", "", true},
		{"/local/a.wav", "", "", true},
	}
	for _, tt := range tests {
		b, k, err := ParseObjectPath(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseObjectPath(%q) err = %v", tt.in, err)
			continue
		}
		if b != tt.bucket || k != tt.key {
			t.Errorf("ParseObjectPath(%q) = %q, %q", tt.in, b, k)
		}
	}
}
