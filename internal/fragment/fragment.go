// Package fragment partitions an audio duration into fixed-length windows.
//
// The partition is pure arithmetic on milliseconds. Slicing the decoded
// audio and persisting each window is left to the caller.
package fragment

import "fmt"

// DefaultWindowMillis is the window length used when none is configured (30s).
const DefaultWindowMillis int64 = 30000

// Fragment is one contiguous window [StartMillis, EndMillis) of a timeline.
type Fragment struct {
	Index       int   `json:"index"`
	StartMillis int64 `json:"start_ms"`
	EndMillis   int64 `json:"end_ms"`
}

// Duration returns the fragment length in milliseconds.
func (f Fragment) Duration() int64 {
	return f.EndMillis - f.StartMillis
}

// Name returns the zero-padded file name used when the fragment is persisted.
func (f Fragment) Name(ext string) string {
	return fmt.Sprintf("fragment_%04d%s", f.Index, ext)
}

// Split partitions [0, totalMillis) into consecutive windows of windowMillis.
// The last fragment covers the remainder when totalMillis is not an exact
// multiple of the window. A zero duration yields no fragments.
func Split(totalMillis, windowMillis int64) ([]Fragment, error) {
	if windowMillis <= 0 {
		return nil, fmt.Errorf("fragment: window must be positive, got %d", windowMillis)
	}
	if totalMillis < 0 {
		return nil, fmt.Errorf("fragment: negative duration %d", totalMillis)
	}

	full := totalMillis / windowMillis
	fragments := make([]Fragment, 0, Count(totalMillis, windowMillis))
	for i := int64(0); i < full; i++ {
		fragments = append(fragments, Fragment{
			Index:       int(i),
			StartMillis: i * windowMillis,
			EndMillis:   (i + 1) * windowMillis,
		})
	}

	// Handle the last fragment which might be shorter
	if totalMillis%windowMillis != 0 {
		fragments = append(fragments, Fragment{
			Index:       int(full),
			StartMillis: full * windowMillis,
			EndMillis:   totalMillis,
		})
	}

	return fragments, nil
}

// Count returns ceil(totalMillis / windowMillis), or 0 for invalid input.
func Count(totalMillis, windowMillis int64) int {
	if windowMillis <= 0 || totalMillis <= 0 {
		return 0
	}
	return int((totalMillis + windowMillis - 1) / windowMillis)
}
