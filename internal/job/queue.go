package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotRetryable is returned by RetryJob for jobs that are not failed or cancelled
var ErrNotRetryable = errors.New("job is not failed or cancelled")

const pollInterval = 10 * time.Second

const jobColumns = `id, type, status, filename, params, progress, fragments_done, fragments_total,
	result, error, created_by, created_at, started_at, completed_at`

// JobQueue manages job persistence and dispatching. A single worker runs jobs
// one at a time, in the order they were queued.
type JobQueue struct {
	db       *sql.DB
	mu       sync.RWMutex
	pending  chan string // job IDs to process
	cancels  map[string]context.CancelFunc
	handlers map[JobType]JobHandler
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewJobQueue creates a job queue. Register handlers, then call Start.
func NewJobQueue(db *sql.DB) *JobQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &JobQueue{
		db:       db,
		pending:  make(chan string, 100),
		cancels:  make(map[string]context.CancelFunc),
		handlers: make(map[JobType]JobHandler),
		ctx:      ctx,
		cancel:   cancel,
	}
	return q
}

// Start resumes jobs left over from a previous run and starts the worker
func (q *JobQueue) Start() {
	q.resumeJobs()

	q.wg.Add(1)
	go q.worker()
}

// RegisterHandler registers a handler for a job type
func (q *JobQueue) RegisterHandler(jobType JobType, handler JobHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// Enqueue creates a new job and adds it to the queue
func (q *JobQueue) Enqueue(jobType JobType, filename, createdBy string, params interface{}) (*Job, error) {
	return q.EnqueueWithID(NewID(), jobType, filename, createdBy, params)
}

// NewID returns an id for a job about to be enqueued, so callers can store
// files under it first.
func NewID() string {
	return uuid.New().String()
}

// EnqueueWithID is Enqueue with a caller-chosen id
func (q *JobQueue) EnqueueWithID(id string, jobType JobType, filename, createdBy string, params interface{}) (*Job, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	job := &Job{
		ID:        id,
		Type:      jobType,
		Status:    StatusPending,
		Filename:  filename,
		Params:    paramsJSON,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
	}
	_, err = q.db.Exec(`
		INSERT INTO jobs (id, type, status, filename, params, progress, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		job.ID, job.Type, job.Status, job.Filename, string(job.Params), job.CreatedBy, job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	q.push(job.ID)
	return job, nil
}

func (q *JobQueue) push(id string) {
	select {
	case q.pending <- id:
	default:
		slog.Warn("[job] queue full, job will be picked up on next poll", "job", id)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	job := &Job{}
	var params, result, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := s.Scan(&job.ID, &job.Type, &job.Status, &job.Filename, &params, &job.Progress,
		&job.FragmentsDone, &job.FragmentsTotal, &result, &errMsg, &job.CreatedBy,
		&job.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if params.Valid {
		job.Params = json.RawMessage(params.String)
	}
	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

// GetJob retrieves a job by ID
func (q *JobQueue) GetJob(id string) (*Job, error) {
	return scanJob(q.db.QueryRow("SELECT "+jobColumns+" FROM jobs WHERE id = ?", id))
}

// ListJobs returns all jobs ordered by creation time (newest first)
func (q *JobQueue) ListJobs() ([]*Job, error) {
	rows, err := q.db.Query("SELECT " + jobColumns + " FROM jobs ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CancelJob cancels a pending or running job
func (q *JobQueue) CancelJob(id string) error {
	q.mu.Lock()
	if cancelFn, ok := q.cancels[id]; ok {
		cancelFn()
		delete(q.cancels, id)
	}
	q.mu.Unlock()

	_, err := q.db.Exec(`
		UPDATE jobs SET status = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		StatusCancelled, time.Now(), id, StatusPending, StatusRunning,
	)
	return err
}

// RetryJob puts a failed or cancelled job back in the queue
func (q *JobQueue) RetryJob(id string) (*Job, error) {
	res, err := q.db.Exec(`
		UPDATE jobs SET status = ?, progress = 0, fragments_done = 0, fragments_total = 0,
			result = NULL, error = NULL, started_at = NULL, completed_at = NULL
		WHERE id = ? AND status IN (?, ?)`,
		StatusPending, id, StatusFailed, StatusCancelled,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := q.GetJob(id); err != nil {
			return nil, err
		}
		return nil, ErrNotRetryable
	}

	q.push(id)
	return q.GetJob(id)
}

// UpdateProgress records fragments done out of total for a running job
func (q *JobQueue) UpdateProgress(id string, done, total int) {
	progress := 0.0
	if total > 0 {
		progress = float64(done) / float64(total)
	}
	q.db.Exec("UPDATE jobs SET progress = ?, fragments_done = ?, fragments_total = ? WHERE id = ?",
		progress, done, total, id)
}

// Stop shuts down the queue and waits for the running job to return
func (q *JobQueue) Stop() {
	q.cancel()
	q.wg.Wait()
}

// worker processes jobs from the pending channel one at a time
func (q *JobQueue) worker() {
	defer q.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case jobID := <-q.pending:
			q.processJob(jobID)
		case <-ticker.C:
			q.pollPending()
		}
	}
}

// pollPending picks up jobs that did not fit in the channel
func (q *JobQueue) pollPending() {
	var id string
	err := q.db.QueryRow("SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1", StatusPending).Scan(&id)
	if err != nil {
		return
	}
	q.processJob(id)
}

// processJob runs a single job
func (q *JobQueue) processJob(jobID string) {
	job, err := q.GetJob(jobID)
	if err != nil {
		slog.Error("[job] failed to load job", "job", jobID, "error", err)
		return
	}

	// Skip if not pending
	if job.Status != StatusPending {
		return
	}

	q.mu.RLock()
	handler, ok := q.handlers[job.Type]
	q.mu.RUnlock()

	if !ok {
		slog.Error("[job] no handler for job type", "job", job.ID, "type", job.Type)
		q.failJob(job, fmt.Sprintf("no handler for job type: %s", job.Type))
		return
	}

	// Create cancellable context before marking running so CancelJob can reach it
	ctx, cancelFn := context.WithCancel(q.ctx)
	q.mu.Lock()
	q.cancels[job.ID] = cancelFn
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		delete(q.cancels, job.ID)
		q.mu.Unlock()
		cancelFn()
	}()

	now := time.Now()
	res, err := q.db.Exec("UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?",
		StatusRunning, now, job.ID, StatusPending)
	if err != nil {
		slog.Error("[job] failed to start job", "job", job.ID, "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Cancelled between load and start
		return
	}
	job.StartedAt = &now
	job.Status = StatusRunning

	slog.Info("[job] started", "job", job.ID, "type", job.Type, "file", job.Filename)

	updateProgress := func(done, total int) {
		q.UpdateProgress(job.ID, done, total)
	}

	err = q.runHandler(ctx, handler, job, updateProgress)

	switch {
	case ctx.Err() != nil && q.ctx.Err() != nil:
		// Shutting down: leave the job running so resumeJobs re-queues it
		slog.Info("[job] interrupted by shutdown", "job", job.ID)
	case ctx.Err() != nil:
		slog.Info("[job] cancelled", "job", job.ID)
	case err != nil:
		q.failJob(job, err.Error())
	default:
		q.completeJob(job)
	}
}

// runHandler calls handler and turns a panic into an error
func (q *JobQueue) runHandler(ctx context.Context, handler JobHandler, job *Job, updateProgress ProgressFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return handler(ctx, job, updateProgress)
}

func (q *JobQueue) completeJob(job *Job) {
	now := time.Now()
	q.db.Exec("UPDATE jobs SET status = ?, progress = 1.0, result = ?, completed_at = ? WHERE id = ? AND status = ?",
		StatusCompleted, nullJSON(job.Result), now, job.ID, StatusRunning)
	slog.Info("[job] completed", "job", job.ID)
}

func (q *JobQueue) failJob(job *Job, errMsg string) {
	now := time.Now()
	q.db.Exec("UPDATE jobs SET status = ?, error = ?, result = ?, completed_at = ? WHERE id = ? AND status IN (?, ?)",
		StatusFailed, errMsg, nullJSON(job.Result), now, job.ID, StatusPending, StatusRunning)
	slog.Warn("[job] failed", "job", job.ID, "error", errMsg)
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// resumeJobs re-queues any pending jobs found in DB on startup
func (q *JobQueue) resumeJobs() {
	// Mark any previously "running" jobs as pending (server restarted)
	q.db.Exec("UPDATE jobs SET status = ?, started_at = NULL WHERE status = ?", StatusPending, StatusRunning)

	rows, err := q.db.Query("SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC", StatusPending)
	if err != nil {
		slog.Error("[job] failed to resume jobs", "error", err)
		return
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		select {
		case q.pending <- id:
			count++
		default:
		}
	}

	if count > 0 {
		slog.Info("[job] resumed pending jobs", "count", count)
	}
}
