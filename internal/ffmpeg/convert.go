// Package ffmpeg shells out to ffmpeg/ffprobe for audio normalization.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoAudio is returned by Probe when the input has no audio stream.
var ErrNoAudio = errors.New("no audio stream")

// DefaultSampleRate is the rate whisper models expect.
const DefaultSampleRate = 16000

// Tool locates the ffmpeg and ffprobe binaries.
type Tool struct {
	FFmpegPath  string
	FFprobePath string
}

// NewTool returns a Tool using the given ffmpeg binary. ffprobe is expected
// next to it.
func NewTool(ffmpegPath string) *Tool {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	probe := "ffprobe"
	if i := strings.LastIndex(ffmpegPath, "ffmpeg"); i >= 0 && ffmpegPath != "ffmpeg" {
		probe = ffmpegPath[:i] + "ffprobe" + ffmpegPath[i+len("ffmpeg"):]
	}
	return &Tool{FFmpegPath: ffmpegPath, FFprobePath: probe}
}

// Available reports whether both binaries can be found.
func (t *Tool) Available() bool {
	if _, err := exec.LookPath(t.ffmpegPath()); err != nil {
		return false
	}
	_, err := exec.LookPath(t.probePath())
	return err == nil
}

// ToWAV converts any input ffmpeg understands to 16-bit PCM WAV at the given
// sample rate, mono.
func (t *Tool) ToWAV(ctx context.Context, inputPath, outputPath string, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	cmd := exec.CommandContext(ctx, t.ffmpegPath(),
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-vn",          // no video
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",     // mono
		"-f", "wav",
		"-y",           // overwrite
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %s: %w", strings.TrimSpace(string(output)), err)
	}
	return nil
}

func (t *Tool) ffmpegPath() string {
	if t.FFmpegPath == "" {
		return "ffmpeg"
	}
	return t.FFmpegPath
}

func (t *Tool) probePath() string {
	if t.FFprobePath == "" {
		return "ffprobe"
	}
	return t.FFprobePath
}
