package audio

import (
	"context"
	"errors"
)

var (
	// ErrMalformed is returned for input that cannot be parsed as audio.
	ErrMalformed = errors.New("malformed audio")
	// ErrUnsupported is returned for input in a format the decoder cannot handle.
	ErrUnsupported = errors.New("unsupported audio")
)

// Decoder turns raw uploaded bytes into a Timeline.
type Decoder interface {
	Decode(ctx context.Context, data []byte, filename string) (*Timeline, error)
}
