package job

import (
	"context"
	"encoding/json"
	"time"
)

// JobType represents the kind of job
type JobType string

const (
	JobTranscribe JobType = "transcribe"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Job represents a queued transcription of an uploaded recording
type Job struct {
	ID             string          `json:"id"`
	Type           JobType         `json:"type"`
	Status         JobStatus       `json:"status"`
	Filename       string          `json:"filename"`
	Params         json.RawMessage `json:"params"`
	Progress       float64         `json:"progress"`
	FragmentsDone  int             `json:"fragments_done"`
	FragmentsTotal int             `json:"fragments_total"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedBy      string          `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Finished reports whether the job reached a terminal state
func (j *Job) Finished() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// TranscribeParams are parameters for a transcription job
type TranscribeParams struct {
	Upload   string `json:"upload"`   // stored upload name under the uploads dir
	Language string `json:"language"` // "ru", "en", "auto", etc.
	Engine   string `json:"engine"`   // "whisper.cpp", "openai", "whisper-cli"
}

// ProgressFunc reports fragments done out of total
type ProgressFunc func(done, total int)

// JobHandler processes a job. A handler may set job.Result; it is stored
// whether the handler succeeds or fails.
type JobHandler func(ctx context.Context, job *Job, updateProgress ProgressFunc) error
