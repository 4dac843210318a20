package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/audio-transcribe/backend/internal/api/middleware"
	"github.com/audio-transcribe/backend/internal/job"
	"github.com/audio-transcribe/backend/internal/pipeline"
	"github.com/audio-transcribe/backend/internal/storage"
	"github.com/audio-transcribe/backend/internal/transcribe"
)

// multipart parts beyond this are spooled to temp files by net/http
const formMemory = 32 << 20

// Transcriber runs the pipeline for a resolved engine.
type Transcriber interface {
	Engine(name string) (transcribe.Engine, error)
	Transcribe(ctx context.Context, data []byte, filename, language string, engine transcribe.Engine, progress pipeline.ProgressFunc) pipeline.Outcome
}

type TranscribeHandler struct {
	service   Transcriber
	uploads   *storage.Uploads
	queue     *job.JobQueue
	maxUpload int64
}

func NewTranscribeHandler(service Transcriber, uploads *storage.Uploads, queue *job.JobQueue, maxUpload int64) *TranscribeHandler {
	return &TranscribeHandler{service: service, uploads: uploads, queue: queue, maxUpload: maxUpload}
}

type uploadForm struct {
	data     []byte
	filename string
	language string
	engine   transcribe.Engine
}

// requestError is a client error with its HTTP status
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func (h *TranscribeHandler) parseUpload(w http.ResponseWriter, r *http.Request) (*uploadForm, error) {
	tooLarge := &requestError{http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUpload)}
	if r.ContentLength > h.maxUpload {
		return nil, tooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, tooLarge
		}
		return nil, &requestError{http.StatusBadRequest, "invalid multipart form"}
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, &requestError{http.StatusBadRequest, "missing file"}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &requestError{http.StatusBadRequest, "failed to read upload"}
	}

	engine, err := h.service.Engine(r.FormValue("engine"))
	if err != nil {
		return nil, &requestError{http.StatusBadRequest, err.Error()}
	}

	return &uploadForm{
		data:     data,
		filename: filepath.Base(header.Filename),
		language: r.FormValue("language"),
		engine:   engine,
	}, nil
}

// Transcribe handles a synchronous upload and responds with the outcome.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseUpload(w, r)
	if err != nil {
		var re *requestError
		errors.As(err, &re)
		jsonResponse(w, pipeline.Outcome{Success: false, Error: re.msg, ErrorKind: "request"}, re.status)
		return
	}

	slog.Info("[api] transcribe upload",
		"file", form.filename, "bytes", len(form.data), "engine", form.engine.Name(), "language", form.language)

	out := h.service.Transcribe(r.Context(), form.data, form.filename, form.language, form.engine, nil)
	jsonResponse(w, out, outcomeStatus(out))
}

// Submit stores the upload and queues it as a transcription job.
func (h *TranscribeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseUpload(w, r)
	if err != nil {
		var re *requestError
		errors.As(err, &re)
		jsonError(w, re.msg, re.status)
		return
	}

	id := job.NewID()
	name, err := h.uploads.Save(id, form.filename, form.data)
	if err != nil {
		slog.Error("[api] failed to store upload", "error", err)
		jsonError(w, "failed to store upload", http.StatusInternalServerError)
		return
	}

	createdBy := ""
	if claims := middleware.GetClaims(r); claims != nil {
		createdBy = claims.Username
	}

	j, err := h.queue.EnqueueWithID(id, job.JobTranscribe, form.filename, createdBy, job.TranscribeParams{
		Upload:   name,
		Language: form.language,
		Engine:   form.engine.Name(),
	})
	if err != nil {
		h.uploads.Delete(name)
		jsonError(w, "failed to queue job: "+err.Error(), http.StatusInternalServerError)
		return
	}

	jsonResponse(w, j, http.StatusAccepted)
}

// outcomeStatus maps an outcome to its HTTP status
func outcomeStatus(out pipeline.Outcome) int {
	if out.Success {
		return http.StatusOK
	}
	switch out.ErrorKind {
	case pipeline.ErrDecode.Error():
		return http.StatusUnprocessableEntity
	case pipeline.ErrTranscription.Error():
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
