package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ProbeStream struct {
	Index         int               `json:"index"`
	CodecName     string            `json:"codec_name"`
	CodecType     string            `json:"codec_type"` // video, audio, subtitle
	SampleRate    string            `json:"sample_rate,omitempty"`
	Channels      int               `json:"channels,omitempty"`
	ChannelLayout string            `json:"channel_layout,omitempty"`
	Duration      string            `json:"duration,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// AudioInfo summarizes the first audio stream of a media file.
type AudioInfo struct {
	Container  string  `json:"container"`
	Codec      string  `json:"codec"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Duration   float64 `json:"duration"` // seconds, 0 if unknown
}

// Probe runs ffprobe on filePath and returns its first audio stream.
// ErrNoAudio is returned when the file has no audio stream.
func (t *Tool) Probe(ctx context.Context, filePath string) (*AudioInfo, error) {
	cmd := exec.CommandContext(ctx, t.probePath(),
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	return parseProbe(output)
}

func parseProbe(output []byte) (*AudioInfo, error) {
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("ffprobe output: %w", err)
	}

	for _, s := range result.Streams {
		if s.CodecType != "audio" {
			continue
		}
		info := &AudioInfo{
			Container: result.Format.FormatName,
			Codec:     s.CodecName,
			Channels:  s.Channels,
		}
		info.SampleRate, _ = strconv.Atoi(s.SampleRate)

		// Stream duration is missing for some containers; fall back to the format's
		dur := s.Duration
		if dur == "" {
			dur = result.Format.Duration
		}
		info.Duration, _ = strconv.ParseFloat(dur, 64)
		return info, nil
	}

	return nil, ErrNoAudio
}
