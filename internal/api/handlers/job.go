package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/audio-transcribe/backend/internal/api/middleware"
	"github.com/audio-transcribe/backend/internal/job"
	"github.com/audio-transcribe/backend/internal/pipeline"
)

type JobHandler struct {
	queue *job.JobQueue
}

func NewJobHandler(queue *job.JobQueue) *JobHandler {
	return &JobHandler{queue: queue}
}

// visible reports whether the caller may see j. Admins see every job, other
// users only their own. Requests without claims (auth disabled) see all.
func visible(r *http.Request, j *job.Job) bool {
	claims := middleware.GetClaims(r)
	return claims == nil || claims.Role == "admin" || claims.Username == j.CreatedBy
}

// lookup loads the {id} job and writes a 404 when it is missing or hidden.
func (h *JobHandler) lookup(w http.ResponseWriter, r *http.Request) (*job.Job, bool) {
	j, err := h.queue.GetJob(chi.URLParam(r, "id"))
	if err != nil || !visible(r, j) {
		jsonError(w, "job not found", http.StatusNotFound)
		return nil, false
	}
	return j, true
}

// ListJobs returns jobs newest first, optionally filtered by ?status=
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queue.ListJobs()
	if err != nil {
		jsonError(w, "failed to list jobs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	status := job.JobStatus(r.URL.Query().Get("status"))
	out := make([]*job.Job, 0, len(jobs))
	for _, j := range jobs {
		if status != "" && j.Status != status {
			continue
		}
		if visible(r, j) {
			out = append(out, j)
		}
	}
	jsonResponse(w, out, http.StatusOK)
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if j, ok := h.lookup(w, r); ok {
		jsonResponse(w, j, http.StatusOK)
	}
}

// GetResult answers with a finished job's outcome exactly as the synchronous
// upload endpoint would, status code included.
func (h *JobHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	j, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !j.Finished() {
		jsonError(w, "job is "+string(j.Status), http.StatusConflict)
		return
	}
	if len(j.Result) == 0 {
		jsonError(w, "job has no result", http.StatusNotFound)
		return
	}

	var out pipeline.Outcome
	if err := json.Unmarshal(j.Result, &out); err != nil {
		jsonError(w, "stored result is unreadable: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, out, outcomeStatus(out))
}

// CancelJob cancels a pending or running job
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	j, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if j.Finished() {
		jsonError(w, "job already "+string(j.Status), http.StatusConflict)
		return
	}

	if err := h.queue.CancelJob(j.ID); err != nil {
		jsonError(w, "failed to cancel job: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RetryJob re-queues a failed or cancelled job. The stored upload is kept on
// failure, so the retry transcribes the same audio.
func (h *JobHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.lookup(w, r); !ok {
		return
	}

	j, err := h.queue.RetryJob(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		jsonError(w, "job not found", http.StatusNotFound)
	case errors.Is(err, job.ErrNotRetryable):
		jsonError(w, err.Error(), http.StatusConflict)
	case err != nil:
		jsonError(w, "failed to retry job: "+err.Error(), http.StatusInternalServerError)
	default:
		jsonResponse(w, j, http.StatusOK)
	}
}
