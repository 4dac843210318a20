package pipeline

import (
	"encoding/json"
	"time"
)

// Outcome is the result of one Process call. It is always well-formed:
// either Success with the transcript fields set, or a failure with Error and
// ErrorKind set.
type Outcome struct {
	Success               bool
	Text                  string
	WordsCount            int
	Fragments             int
	TranscriptionDuration time.Duration
	ServiceDuration       time.Duration
	TotalDuration         time.Duration
	Error                 string
	ErrorKind             string

	err error
}

// Err returns the error behind a failed outcome.
func (o Outcome) Err() error {
	return o.err
}

type successJSON struct {
	Success               bool    `json:"success"`
	Text                  string  `json:"text"`
	TranscriptionDuration float64 `json:"transcription_duration"`
	WordsCount            int     `json:"words_count"`
	ServiceDuration       float64 `json:"service_duration"`
	TotalDuration         float64 `json:"total_duration"`
	Fragments             int     `json:"fragments"`
}

type failureJSON struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
}

// MarshalJSON writes durations as float seconds and omits transcript fields
// on failure.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if !o.Success {
		return json.Marshal(failureJSON{
			Success:   false,
			Error:     o.Error,
			ErrorKind: o.ErrorKind,
		})
	}
	return json.Marshal(successJSON{
		Success:               true,
		Text:                  o.Text,
		TranscriptionDuration: o.TranscriptionDuration.Seconds(),
		WordsCount:            o.WordsCount,
		ServiceDuration:       o.ServiceDuration.Seconds(),
		TotalDuration:         o.TotalDuration.Seconds(),
		Fragments:             o.Fragments,
	})
}

// UnmarshalJSON accepts both shapes written by MarshalJSON.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var raw struct {
		successJSON
		Error     string `json:"error"`
		ErrorKind string `json:"error_kind"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = Outcome{
		Success:               raw.Success,
		Text:                  raw.Text,
		WordsCount:            raw.WordsCount,
		Fragments:             raw.Fragments,
		TranscriptionDuration: seconds(raw.TranscriptionDuration),
		ServiceDuration:       seconds(raw.ServiceDuration),
		TotalDuration:         seconds(raw.TotalDuration),
		Error:                 raw.Error,
		ErrorKind:             raw.ErrorKind,
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// stopwatch splits elapsed time into the transcription and service buckets.
type stopwatch struct {
	transcription time.Duration
	service       time.Duration
}

func (s *stopwatch) serviceStage(fn func() error) error {
	start := time.Now()
	err := fn()
	s.service += time.Since(start)
	return err
}

func (s *stopwatch) transcriptionStage(fn func() error) error {
	start := time.Now()
	err := fn()
	s.transcription += time.Since(start)
	return err
}
