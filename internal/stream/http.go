package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/satindergrewal/segue/internal/audio"
	"github.com/satindergrewal/segue/internal/logger"
)

// MP3Handler serves the preview mix as a chunked MP3 stream. Each request
// runs its own ffmpeg encoder fed from a monitor tap.
type MP3Handler struct {
	monitor    *Monitor
	ffmpegPath string
	bitrate    int
}

func NewMP3Handler(m *Monitor, ffmpegPath string, bitrate int) *MP3Handler {
	return &MP3Handler{monitor: m, ffmpegPath: ffmpegPath, bitrate: bitrate}
}

// encodeArgs reads raw device PCM on stdin and writes MP3 on stdout.
func (h *MP3Handler) encodeArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", h.bitrate/1000),
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

func (h *MP3Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, h.ffmpegPath, h.encodeArgs()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		logger.Error("mp3 monitor: stdin pipe", logger.Err(err))
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		logger.Error("mp3 monitor: stdout pipe", logger.Err(err))
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		logger.Error("mp3 monitor: ffmpeg start", logger.String("ffmpeg", h.ffmpegPath), logger.Err(err))
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}
	defer cmd.Wait()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("ICY-Name", "segue preview")

	tap := h.monitor.Attach()
	defer h.monitor.Detach(tap)
	logger.Info("mp3 monitor connected", logger.Int("taps", h.monitor.TapCount()))
	defer logger.Info("mp3 monitor disconnected", logger.Int64("dropped", tap.Dropped()))

	go feed(ctx, tap, stdin)

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				logger.Warn("mp3 monitor: encoder read", logger.Err(err))
			}
			return
		}
	}
}

// feed writes tap frames to the encoder as little-endian PCM until the
// request ends or the tap is detached.
func feed(ctx context.Context, tap *Tap, w io.WriteCloser) {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tap.Done():
			return
		case frame := <-tap.C:
			if _, err := w.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
		}
	}
}
