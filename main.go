package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audio-transcribe/backend/internal/api"
	"github.com/audio-transcribe/backend/internal/audio"
	"github.com/audio-transcribe/backend/internal/auth"
	"github.com/audio-transcribe/backend/internal/config"
	"github.com/audio-transcribe/backend/internal/db"
	"github.com/audio-transcribe/backend/internal/ffmpeg"
	"github.com/audio-transcribe/backend/internal/gpu"
	"github.com/audio-transcribe/backend/internal/job"
	"github.com/audio-transcribe/backend/internal/pipeline"
	"github.com/audio-transcribe/backend/internal/storage"
	"github.com/audio-transcribe/backend/internal/transcribe"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("[main] fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	if err := os.MkdirAll(cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	database, err := db.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer database.Close()

	if err := database.EnsureAdmin(cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	slog.Info("[main] admin user ensured", "username", cfg.Auth.AdminUsername)

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret)

	scratch, err := storage.NewScratch(cfg.TempPath)
	if err != nil {
		return err
	}
	uploads, err := storage.NewUploads(cfg.UploadsPath())
	if err != nil {
		return err
	}

	decoder, err := newDecoder(cfg, scratch.Root())
	if err != nil {
		return err
	}

	registry := newRegistry(cfg)
	defaultEngine, err := registry.Get(cfg.Engine.Default)
	if err != nil {
		return fmt.Errorf("default engine: %w", err)
	}

	p, err := pipeline.New(pipeline.Options{
		Decoder:      decoder,
		Engine:       defaultEngine,
		Scratch:      scratch,
		WindowMillis: cfg.Audio.FragmentMillis,
		Model:        cfg.Engine.Model,
	})
	if err != nil {
		return err
	}
	svc := pipeline.NewService(p, registry, uploads, database, cfg.Audio.Language, cfg.Engine.Default)

	jobQueue := job.NewJobQueue(database.DB())
	jobQueue.RegisterHandler(job.JobTranscribe, svc.HandleJob)
	jobQueue.Start()
	defer jobQueue.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := api.NewRouter(ctx, api.Deps{
		Config:   cfg,
		Database: database,
		JWT:      jwtService,
		Service:  svc,
		Uploads:  uploads,
		Queue:    jobQueue,
		GPU:      gpu.NewDetector(""),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("[main] starting server",
			"addr", srv.Addr,
			"engine", cfg.Engine.Default,
			"language", cfg.Audio.Language,
			"fragment_ms", cfg.Audio.FragmentMillis)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("[main] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newDecoder(cfg *config.Config, tempDir string) (audio.Decoder, error) {
	if cfg.Audio.Decoder == "wav" {
		return audio.WAVDecoder{}, nil
	}
	tool := ffmpeg.NewTool(cfg.Audio.FFmpegPath)
	if !tool.Available() {
		return nil, fmt.Errorf("ffmpeg not found at %q (set AUDIO_DECODER=wav to accept WAV only)", cfg.Audio.FFmpegPath)
	}
	return audio.NewFFmpegDecoder(tool, tempDir), nil
}

func newRegistry(cfg *config.Config) *transcribe.Registry {
	registry := transcribe.NewRegistry()
	add := func(engine transcribe.Engine) {
		if cfg.Engine.Exclusive {
			engine = transcribe.NewExclusive(engine)
		}
		registry.Register(engine)
	}

	add(transcribe.NewWhisperCppClient(cfg.Engine.WhisperURL, cfg.Engine.ReloadModel))
	if cfg.Engine.OpenAIKey != "" || cfg.Engine.OpenAIBaseURL != "" {
		// The hosted API only knows whisper-1; local servers take the configured model.
		model := ""
		if cfg.Engine.OpenAIBaseURL != "" {
			model = cfg.Engine.Model
		}
		add(transcribe.NewOpenAIClient("openai", cfg.Engine.OpenAIBaseURL, cfg.Engine.OpenAIKey, model))
	}
	if cfg.Engine.WhisperCLI != "" {
		add(transcribe.NewCLIEngine(cfg.Engine.WhisperCLI, cfg.Engine.Model))
	}
	return registry
}
