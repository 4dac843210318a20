package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/audio-transcribe/backend/internal/job"
	"github.com/audio-transcribe/backend/internal/storage"
	"github.com/audio-transcribe/backend/internal/transcribe"
)

// Setting keys consulted when a request leaves language or engine empty
const (
	SettingDefaultLanguage = "default_language"
	SettingDefaultEngine   = "default_engine"
)

// ErrUnknownEngine is returned when a request names an engine that is not registered
var ErrUnknownEngine = errors.New("unknown engine")

// SettingsStore reads runtime settings.
type SettingsStore interface {
	GetSetting(key, defaultVal string) string
}

// Service resolves per-request language and engine and runs the pipeline,
// for both synchronous uploads and queued jobs.
type Service struct {
	pipeline        *Pipeline
	engines         *transcribe.Registry
	uploads         *storage.Uploads
	settings        SettingsStore
	defaultLanguage string
	defaultEngine   string
}

// NewService creates a transcription service. settings may be nil.
func NewService(p *Pipeline, engines *transcribe.Registry, uploads *storage.Uploads, settings SettingsStore, defaultLanguage, defaultEngine string) *Service {
	return &Service{
		pipeline:        p,
		engines:         engines,
		uploads:         uploads,
		settings:        settings,
		defaultLanguage: defaultLanguage,
		defaultEngine:   defaultEngine,
	}
}

// Language returns lang, or the configured default when lang is empty.
func (s *Service) Language(lang string) string {
	if lang != "" {
		return lang
	}
	if s.settings != nil {
		return s.settings.GetSetting(SettingDefaultLanguage, s.defaultLanguage)
	}
	return s.defaultLanguage
}

// Engine returns the named engine, or the configured default when name is empty.
func (s *Service) Engine(name string) (transcribe.Engine, error) {
	if name == "" {
		name = s.DefaultEngine()
	}
	engine, err := s.engines.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownEngine, err)
	}
	return engine, nil
}

// DefaultEngine returns the engine used when a request names none.
func (s *Service) DefaultEngine() string {
	if s.settings != nil {
		return s.settings.GetSetting(SettingDefaultEngine, s.defaultEngine)
	}
	return s.defaultEngine
}

// Engines lists the registered engine names.
func (s *Service) Engines() []string {
	return s.engines.Names()
}

// WindowMillis is the fragment length uploads are split into.
func (s *Service) WindowMillis() int64 {
	return s.pipeline.WindowMillis()
}

// Transcribe runs the pipeline on data with the given engine.
func (s *Service) Transcribe(ctx context.Context, data []byte, filename, language string, engine transcribe.Engine, progress ProgressFunc) Outcome {
	p := s.pipeline.WithEngine(engine)
	if progress != nil {
		p = p.WithProgress(progress)
	}
	return p.Process(ctx, data, filename, s.Language(language))
}

// HandleJob processes a queued transcription job. The stored upload is
// removed once the job succeeds and kept otherwise so the job can be retried.
func (s *Service) HandleJob(ctx context.Context, j *job.Job, updateProgress job.ProgressFunc) error {
	var params job.TranscribeParams
	if err := json.Unmarshal(j.Params, &params); err != nil {
		return fmt.Errorf("unmarshal params: %w", err)
	}

	engine, err := s.Engine(params.Engine)
	if err != nil {
		return err
	}

	data, err := s.uploads.Load(params.Upload)
	if err != nil {
		return fmt.Errorf("load upload: %w", err)
	}

	slog.Info("[pipeline] starting job",
		"job", j.ID, "engine", engine.Name(), "file", j.Filename, "language", s.Language(params.Language))

	out := s.Transcribe(ctx, data, j.Filename, params.Language, engine, func(done, total int) {
		updateProgress(done, total)
	})

	result, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	j.Result = result

	if !out.Success {
		return out.Err()
	}

	if err := s.uploads.Delete(params.Upload); err != nil {
		slog.Warn("[pipeline] failed to remove job upload", "job", j.ID, "error", err)
	}
	return nil
}
