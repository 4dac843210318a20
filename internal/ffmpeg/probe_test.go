package ffmpeg

import (
	"context"
	"errors"
	"testing"
)

func TestParseProbe(t *testing.T) {
	output := []byte(`{
		"streams": [
			{"index": 0, "codec_name": "h264", "codec_type": "video"},
			{"index": 1, "codec_name": "mp3", "codec_type": "audio", "sample_rate": "44100", "channels": 2}
		],
		"format": {"filename": "in.mp4", "format_name": "mov,mp4,m4a", "duration": "75.250000"}
	}`)

	info, err := parseProbe(output)
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if info.Codec != "mp3" {
		t.Errorf("Codec = %q, want mp3", info.Codec)
	}
	if info.SampleRate != 44100 || info.Channels != 2 {
		t.Errorf("format = %d Hz / %d ch, want 44100 / 2", info.SampleRate, info.Channels)
	}
	if info.Duration != 75.25 {
		t.Errorf("Duration = %v, want 75.25 (from format)", info.Duration)
	}
	if info.Container != "mov,mp4,m4a" {
		t.Errorf("Container = %q", info.Container)
	}
}

func TestParseProbeNoAudio(t *testing.T) {
	output := []byte(`{"streams": [{"index": 0, "codec_name": "png", "codec_type": "video"}], "format": {}}`)
	if _, err := parseProbe(output); !errors.Is(err, ErrNoAudio) {
		t.Errorf("error = %v, want ErrNoAudio", err)
	}
}

func TestParseProbeGarbage(t *testing.T) {
	if _, err := parseProbe([]byte("not json")); err == nil {
		t.Error("parseProbe should fail on invalid JSON")
	}
}

func TestNewTool(t *testing.T) {
	tests := []struct {
		in, ffmpeg, ffprobe string
	}{
		{"", "ffmpeg", "ffprobe"},
		{"ffmpeg", "ffmpeg", "ffprobe"},
		{"/opt/ffmpeg/bin/ffmpeg", "/opt/ffmpeg/bin/ffmpeg", "/opt/ffmpeg/bin/ffprobe"},
	}
	for _, tt := range tests {
		tool := NewTool(tt.in)
		if tool.FFmpegPath != tt.ffmpeg || tool.FFprobePath != tt.ffprobe {
			t.Errorf("NewTool(%q) = %q / %q, want %q / %q", tt.in, tool.FFmpegPath, tool.FFprobePath, tt.ffmpeg, tt.ffprobe)
		}
	}
}

func TestProbeMissingBinary(t *testing.T) {
	tool := &Tool{FFprobePath: "/nonexistent/ffprobe"}
	if _, err := tool.Probe(context.Background(), "whatever.mp3"); err == nil {
		t.Error("Probe with missing binary should return error")
	}
}
