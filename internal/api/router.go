package api

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/audio-transcribe/backend/internal/api/handlers"
	"github.com/audio-transcribe/backend/internal/api/middleware"
	"github.com/audio-transcribe/backend/internal/auth"
	"github.com/audio-transcribe/backend/internal/config"
	"github.com/audio-transcribe/backend/internal/db"
	"github.com/audio-transcribe/backend/internal/gpu"
	"github.com/audio-transcribe/backend/internal/job"
	"github.com/audio-transcribe/backend/internal/pipeline"
	"github.com/audio-transcribe/backend/internal/storage"
)

// JSON bodies on the management API are small
const maxJSONBody = 1 << 20

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Config   *config.Config
	Database *db.Database
	JWT      *auth.JWTService
	Service  *pipeline.Service
	Uploads  *storage.Uploads
	Queue    *job.JobQueue
	GPU      *gpu.Detector
}

// NewRouter builds the HTTP routes. ctx bounds the rate limiter's cleanup loop.
func NewRouter(ctx context.Context, d Deps) *chi.Mux {
	cfg := d.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(middleware.CORSHandler(cfg.CORSOrigins)))

	// Handlers
	authHandler := handlers.NewAuthHandler(d.Database, d.JWT)
	transcribeHandler := handlers.NewTranscribeHandler(d.Service, d.Uploads, d.Queue, cfg.MaxUploadBytes())
	jobHandler := handlers.NewJobHandler(d.Queue)
	settingsHandler := handlers.NewSettingsHandler(d.Database, d.Service)
	healthHandler := handlers.NewHealthHandler(d.Database, d.Service, d.GPU, d.Service.WindowMillis())

	uploadLimiter := middleware.NewRateLimiter(ctx, cfg.RateLimit, time.Minute)

	// Upload endpoint, also reachable at its historical path
	r.Group(func(r chi.Router) {
		r.Use(uploadLimiter.Handler)
		if cfg.Auth.Required {
			r.Use(middleware.AuthMiddleware(d.JWT))
		}
		r.Post("/transcribe/", transcribeHandler.Transcribe)
		r.Post("/api/transcribe", transcribeHandler.Transcribe)
	})

	r.Route("/api", func(r chi.Router) {
		// Public
		r.With(middleware.MaxBodySize(maxJSONBody)).Post("/auth/login", authHandler.Login)
		r.Get("/health", healthHandler.Health)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(d.JWT))

			r.Get("/auth/me", authHandler.Me)

			// Jobs
			r.With(uploadLimiter.Handler).Post("/jobs", transcribeHandler.Submit)
			r.Get("/jobs", jobHandler.ListJobs)
			r.Get("/jobs/{id}", jobHandler.GetJob)
			r.Delete("/jobs/{id}", jobHandler.CancelJob)
			r.Get("/jobs/{id}/result", jobHandler.GetResult)
			r.Post("/jobs/{id}/retry", jobHandler.RetryJob)

			// Settings
			r.Get("/settings", settingsHandler.GetSettings)
			r.With(middleware.RequireRole("admin"), middleware.MaxBodySize(maxJSONBody)).
				Put("/settings", settingsHandler.UpdateSettings)
		})
	})

	return r
}
