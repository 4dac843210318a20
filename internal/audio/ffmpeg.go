package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/audio-transcribe/backend/internal/ffmpeg"
)

// FFmpegDecoder normalizes any container/codec ffmpeg understands into 16 kHz
// mono PCM and decodes the result.
type FFmpegDecoder struct {
	tool       *ffmpeg.Tool
	tempDir    string
	sampleRate int
}

// NewFFmpegDecoder creates a decoder writing its intermediates under tempDir.
func NewFFmpegDecoder(tool *ffmpeg.Tool, tempDir string) *FFmpegDecoder {
	return &FFmpegDecoder{tool: tool, tempDir: tempDir, sampleRate: ffmpeg.DefaultSampleRate}
}

// Decode writes data to a private scratch directory, converts it to WAV and
// decodes that. The scratch directory is removed before returning.
func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte, filename string) (*Timeline, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("audio: empty upload: %w", ErrMalformed)
	}

	dir, err := os.MkdirTemp(d.tempDir, "decode-*")
	if err != nil {
		return nil, fmt.Errorf("audio: create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	ext := strings.ToLower(filepath.Ext(filename))
	inPath := filepath.Join(dir, "input"+ext)
	if err := os.WriteFile(inPath, data, 0600); err != nil {
		return nil, fmt.Errorf("audio: write upload: %w", err)
	}

	info, err := d.tool.Probe(ctx, inPath)
	if err != nil {
		if errors.Is(err, ffmpeg.ErrNoAudio) {
			return nil, fmt.Errorf("audio: %s: %w", filename, ErrUnsupported)
		}
		return nil, fmt.Errorf("audio: probe %s: %v: %w", filename, err, ErrMalformed)
	}
	slog.Debug("[audio] probed upload",
		"file", filename,
		"container", info.Container,
		"codec", info.Codec,
		"sample_rate", info.SampleRate,
		"channels", info.Channels,
		"duration", info.Duration)

	wavPath := filepath.Join(dir, "normalized.wav")
	if err := d.tool.ToWAV(ctx, inPath, wavPath, d.sampleRate); err != nil {
		return nil, fmt.Errorf("audio: convert %s: %v: %w", filename, err, ErrMalformed)
	}

	f, err := os.Open(wavPath)
	if err != nil {
		return nil, fmt.Errorf("audio: open normalized audio: %w", err)
	}
	defer f.Close()

	return DecodeWAV(f)
}
