// Package transcript assembles per-fragment transcription text into the
// final transcript and derives its word count.
package transcript

import (
	"sort"
	"strings"
)

// Result is the text produced for one fragment.
type Result struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Summary is the aggregated transcript.
type Summary struct {
	Text  string `json:"text"`
	Words int    `json:"words_count"`
}

// Aggregate joins results in ascending fragment order, separated by a single
// space, then normalizes whitespace and counts words. The input slice is not
// modified.
func Aggregate(results []Result) Summary {
	ordered := make([]Result, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	var b strings.Builder
	for i, r := range ordered {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(r.Text)
	}

	text := Normalize(b.String())
	return Summary{Text: text, Words: CountWords(text)}
}

// Normalize collapses every run of spaces into one and trims surrounding
// whitespace. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' {
			if prevSpace {
				continue
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// CountWords returns the number of whitespace-delimited tokens in s.
// An empty or all-whitespace string has zero words.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
