package pipeline

import (
	"errors"
	"fmt"
)

// Failure kinds. Every failed Outcome carries exactly one of them.
var (
	ErrDecode        = errors.New("decode")
	ErrPersistence   = errors.New("persistence")
	ErrTranscription = errors.New("transcription")
)

// StageError reports which stage aborted a request. Fragment is -1 when the
// failure is not tied to a fragment.
type StageError struct {
	Kind     error
	Fragment int
	Err      error
}

func (e *StageError) Error() string {
	if e.Fragment >= 0 {
		return fmt.Sprintf("%s failed at fragment %d: %v", e.Kind, e.Fragment, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func stageErr(kind error, fragment int, err error) *StageError {
	return &StageError{Kind: kind, Fragment: fragment, Err: err}
}

// KindName returns the short name of err's failure kind, or "" when err
// carries none.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrDecode):
		return ErrDecode.Error()
	case errors.Is(err, ErrPersistence):
		return ErrPersistence.Error()
	case errors.Is(err, ErrTranscription):
		return ErrTranscription.Error()
	}
	return ""
}
