package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
)

// wavFormatPCM is the RIFF audio format tag for integer PCM.
const wavFormatPCM = 1

// WAVDecoder decodes RIFF/WAVE PCM bytes in-process.
type WAVDecoder struct{}

func (WAVDecoder) Decode(_ context.Context, data []byte, filename string) (*Timeline, error) {
	return DecodeWAV(bytes.NewReader(data))
}

// DecodeWAV reads a whole PCM WAV stream into a Timeline.
func DecodeWAV(r io.ReadSeeker) (*Timeline, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("audio: not a valid WAV stream: %w", ErrMalformed)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("audio: WAV format %d is not integer PCM: %w", dec.WavAudioFormat, ErrUnsupported)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode WAV: %v: %w", err, ErrMalformed)
	}

	tl, err := NewTimeline(buf)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrMalformed)
	}
	return tl, nil
}

// WriteWAV encodes t as PCM WAV into w.
func WriteWAV(w io.WriteSeeker, t *Timeline) error {
	enc := wav.NewEncoder(w, t.SampleRate(), t.BitDepth(), t.Channels(), wavFormatPCM)
	if err := enc.Write(t.Buffer()); err != nil {
		return fmt.Errorf("audio: encode WAV: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalize WAV: %w", err)
	}
	return nil
}

// WriteWAVFile encodes t into a new file at path.
func WriteWAVFile(path string, t *Timeline) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
