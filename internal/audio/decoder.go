package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"

	"github.com/satindergrewal/segue/internal/logger"
)

const (
	resampleQuality = 4
	streamChunk     = 4096
)

// Decode reads a whole asset into a Buffer at SampleRate. WAV, MP3 and
// FLAC are decoded in process; anything else, or a file the native decoder
// rejects, goes through ffmpeg. name only selects the decoder.
func Decode(ctx context.Context, r io.Reader, name, ffmpegPath string) (*Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	var (
		stream beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		stream, format, err = wav.Decode(bytes.NewReader(data))
	case ".mp3":
		stream, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	case ".flac":
		stream, format, err = flac.Decode(bytes.NewReader(data))
	default:
		return decodeFFmpeg(ctx, data, name, ffmpegPath)
	}
	if err != nil {
		logger.Warn("native decode failed, trying ffmpeg", logger.String("asset", name), logger.Err(err))
		return decodeFFmpeg(ctx, data, name, ffmpegPath)
	}
	defer stream.Close()

	return readStream(ctx, stream, format)
}

// readStream drains a beep streamer into a Buffer, resampling when the
// source rate differs from SampleRate.
func readStream(ctx context.Context, s beep.Streamer, format beep.Format) (*Buffer, error) {
	if format.SampleRate != beep.SampleRate(SampleRate) {
		s = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(SampleRate), s)
	}

	chunk := make([][2]float64, streamChunk)
	out := &Buffer{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, ok := s.Stream(chunk)
		for _, f := range chunk[:n] {
			out.Data = append(out.Data, float32(f[0]), float32(f[1]))
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("decode stream: %w", err)
	}
	return out, nil
}

// decodeFFmpeg pipes the encoded bytes through ffmpeg and converts the
// s16le output to float PCM.
func decodeFFmpeg(ctx context.Context, data []byte, name, ffmpegPath string) (*Buffer, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(SampleRate),
		"-ac", fmt.Sprint(Channels),
		"-loglevel", "error",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return bytesToBuffer(out), nil
}

// bytesToBuffer converts little-endian s16 interleaved stereo PCM.
func bytesToBuffer(pcm []byte) *Buffer {
	// drop a trailing partial frame
	pcm = pcm[:len(pcm)-len(pcm)%(2*Channels)]
	buf := &Buffer{Data: make([]float32, len(pcm)/2)}
	for i := range buf.Data {
		buf.Data[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return buf
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
