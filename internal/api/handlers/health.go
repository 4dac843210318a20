package handlers

import (
	"net/http"

	"github.com/audio-transcribe/backend/internal/gpu"
)

// Pinger checks a backing store.
type Pinger interface {
	Ping() error
}

type HealthHandler struct {
	db      Pinger
	engines EngineLister
	gpu     *gpu.Detector
	window  int64
}

func NewHealthHandler(db Pinger, engines EngineLister, detector *gpu.Detector, windowMillis int64) *HealthHandler {
	return &HealthHandler{db: db, engines: engines, gpu: detector, window: windowMillis}
}

// Health reports service status, engines and GPU memory
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	dbStatus := "ok"
	if err := h.db.Ping(); err != nil {
		status = "degraded"
		dbStatus = err.Error()
		code = http.StatusServiceUnavailable
	}

	resp := map[string]interface{}{
		"status":         status,
		"database":       dbStatus,
		"engines":        h.engines.Engines(),
		"default_engine": h.engines.DefaultEngine(),
		"language":       h.engines.Language(""),
		"fragment_ms":    h.window,
	}
	if h.gpu != nil {
		resp["gpu"] = h.gpu.Snapshot()
	}

	jsonResponse(w, resp, code)
}
