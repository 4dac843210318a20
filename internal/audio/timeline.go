// Package audio holds decoded PCM audio and the decoders that produce it.
package audio

import (
	"fmt"

	goaudio "github.com/go-audio/audio"
)

// Timeline is decoded, interleaved integer PCM with a known duration.
// Sub-ranges are addressed in milliseconds.
type Timeline struct {
	buf *goaudio.IntBuffer
}

// NewTimeline wraps a PCM buffer. The buffer must describe its format.
func NewTimeline(buf *goaudio.IntBuffer) (*Timeline, error) {
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("audio: buffer has no format")
	}
	if buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", buf.Format.SampleRate)
	}
	if buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", buf.Format.NumChannels)
	}
	if buf.SourceBitDepth == 0 {
		buf.SourceBitDepth = 16
	}
	return &Timeline{buf: buf}, nil
}

func (t *Timeline) SampleRate() int { return t.buf.Format.SampleRate }
func (t *Timeline) Channels() int   { return t.buf.Format.NumChannels }
func (t *Timeline) BitDepth() int   { return t.buf.SourceBitDepth }

// Frames returns the number of sample frames (one sample per channel).
func (t *Timeline) Frames() int {
	return len(t.buf.Data) / t.Channels()
}

// DurationMillis returns the duration rounded up to a whole millisecond, so
// that every frame falls inside [0, DurationMillis).
func (t *Timeline) DurationMillis() int64 {
	frames := int64(t.Frames())
	rate := int64(t.SampleRate())
	return (frames*1000 + rate - 1) / rate
}

// Slice returns the half-open range [startMillis, endMillis). An end at or
// past the duration extends to the final frame. The returned timeline shares
// sample storage with t.
func (t *Timeline) Slice(startMillis, endMillis int64) *Timeline {
	start := t.frameAt(startMillis)
	end := t.Frames()
	if endMillis < t.DurationMillis() {
		end = t.frameAt(endMillis)
	}
	if end < start {
		end = start
	}

	ch := t.Channels()
	return &Timeline{buf: &goaudio.IntBuffer{
		Format:         t.buf.Format,
		Data:           t.buf.Data[start*ch : end*ch],
		SourceBitDepth: t.buf.SourceBitDepth,
	}}
}

// Buffer exposes the underlying PCM buffer.
func (t *Timeline) Buffer() *goaudio.IntBuffer {
	return t.buf
}

func (t *Timeline) frameAt(millis int64) int {
	if millis <= 0 {
		return 0
	}
	frame := millis * int64(t.SampleRate()) / 1000
	if frame > int64(t.Frames()) {
		return t.Frames()
	}
	return int(frame)
}
