// Package pipeline turns an uploaded recording into a transcript: decode,
// split into fixed windows, transcribe each window in order, aggregate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/audio-transcribe/backend/internal/audio"
	"github.com/audio-transcribe/backend/internal/fragment"
	"github.com/audio-transcribe/backend/internal/storage"
	"github.com/audio-transcribe/backend/internal/transcribe"
	"github.com/audio-transcribe/backend/internal/transcript"
)

// ProgressFunc is called after each fragment with the number of fragments
// done and the total.
type ProgressFunc func(done, total int)

// Pipeline is safe for concurrent use; each Process call owns its own
// workspace and timeline.
type Pipeline struct {
	decoder  audio.Decoder
	engine   transcribe.Engine
	scratch  *storage.Scratch
	window   int64
	model    string
	progress ProgressFunc
}

// Options configures a Pipeline.
type Options struct {
	Decoder      audio.Decoder
	Engine       transcribe.Engine
	Scratch      *storage.Scratch
	WindowMillis int64 // defaults to fragment.DefaultWindowMillis
	Model        string
}

func New(opts Options) (*Pipeline, error) {
	if opts.Decoder == nil {
		return nil, errors.New("pipeline: decoder is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("pipeline: engine is required")
	}
	if opts.Scratch == nil {
		return nil, errors.New("pipeline: scratch storage is required")
	}
	window := opts.WindowMillis
	if window == 0 {
		window = fragment.DefaultWindowMillis
	}
	if window < 0 {
		return nil, fmt.Errorf("pipeline: invalid window %dms", window)
	}
	return &Pipeline{
		decoder: opts.Decoder,
		engine:  opts.Engine,
		scratch: opts.Scratch,
		window:  window,
		model:   opts.Model,
	}, nil
}

// WithEngine returns a copy of p that transcribes with engine.
func (p *Pipeline) WithEngine(engine transcribe.Engine) *Pipeline {
	c := *p
	c.engine = engine
	return &c
}

// WithProgress returns a copy of p that reports progress to fn.
func (p *Pipeline) WithProgress(fn ProgressFunc) *Pipeline {
	c := *p
	c.progress = fn
	return &c
}

// WindowMillis returns the fragment window.
func (p *Pipeline) WindowMillis() int64 {
	return p.window
}

// Process runs the whole pipeline on one upload. It never returns an error
// and never panics: failures are reported in the Outcome, and the request
// workspace is removed on every path. A workspace that cannot be removed
// turns a successful run into a persistence failure.
func (p *Pipeline) Process(ctx context.Context, data []byte, filename, language string) (out Outcome) {
	var sw stopwatch
	stage := ErrPersistence
	fragIdx := -1

	defer func() {
		if r := recover(); r != nil {
			slog.Error("[pipeline] panic", "stage", stage, "fragment", fragIdx, "panic", r)
			out = failure(stageErr(stage, fragIdx, fmt.Errorf("panic: %v", r)))
		}
	}()

	var ws *storage.Workspace
	err := sw.serviceStage(func() (err error) {
		ws, err = p.scratch.Open()
		return err
	})
	if err != nil {
		return failure(stageErr(ErrPersistence, -1, err))
	}
	defer func() {
		err := ws.Close()
		if err == nil {
			return
		}
		left, _ := ws.Files()
		slog.Error("[pipeline] workspace cleanup failed", "dir", ws.Dir, "left", left, "error", err)
		if out.Success {
			out = failure(stageErr(ErrPersistence, -1, fmt.Errorf("remove workspace: %w", err)))
		}
	}()

	results, err := p.run(ctx, ws, data, filename, language, &sw, &stage, &fragIdx)
	if err != nil {
		slog.Warn("[pipeline] request failed", "workspace", ws.ID, "error", err)
		return failure(err)
	}

	var summary transcript.Summary
	sw.serviceStage(func() error {
		summary = transcript.Aggregate(results)
		return nil
	})

	out = Outcome{
		Success:               true,
		Text:                  summary.Text,
		WordsCount:            summary.Words,
		Fragments:             len(results),
		TranscriptionDuration: sw.transcription,
		ServiceDuration:       sw.service,
		TotalDuration:         sw.transcription + sw.service,
	}
	slog.Info("[pipeline] transcribed",
		"workspace", ws.ID,
		"fragments", out.Fragments,
		"words", out.WordsCount,
		"transcription", out.TranscriptionDuration,
		"service", out.ServiceDuration,
	)
	return out
}

func (p *Pipeline) run(ctx context.Context, ws *storage.Workspace, data []byte, filename, language string, sw *stopwatch, stage *error, fragIdx *int) ([]transcript.Result, error) {
	*stage = ErrDecode
	var tl *audio.Timeline
	err := sw.serviceStage(func() (err error) {
		tl, err = p.decoder.Decode(ctx, data, filename)
		return err
	})
	if err != nil {
		return nil, stageErr(ErrDecode, -1, err)
	}

	// A split failure is a bad window or timeline, not bad audio
	*stage = ErrPersistence
	var frags []fragment.Fragment
	err = sw.serviceStage(func() (err error) {
		frags, err = fragment.Split(tl.DurationMillis(), p.window)
		return err
	})
	if err != nil {
		return nil, stageErr(ErrPersistence, -1, err)
	}

	slog.Debug("[pipeline] decoded",
		"workspace", ws.ID,
		"duration_ms", tl.DurationMillis(),
		"sample_rate", tl.SampleRate(),
		"fragments", len(frags),
	)

	results := make([]transcript.Result, 0, len(frags))
	for _, f := range frags {
		*fragIdx = f.Index

		if err := ctx.Err(); err != nil {
			return nil, stageErr(ErrTranscription, f.Index, err)
		}

		*stage = ErrPersistence
		var path string
		err := sw.serviceStage(func() (err error) {
			path, err = ws.WriteFragment(f, tl)
			return err
		})
		if err != nil {
			return nil, stageErr(ErrPersistence, f.Index, err)
		}

		text, err := p.transcribeOne(ctx, path, language, sw, stage)

		*stage = ErrPersistence
		rmErr := sw.serviceStage(func() error {
			return ws.Remove(path)
		})
		if err != nil {
			return nil, stageErr(ErrTranscription, f.Index, err)
		}
		if rmErr != nil {
			return nil, stageErr(ErrPersistence, f.Index, rmErr)
		}

		results = append(results, transcript.Result{Index: f.Index, Text: text})
		slog.Debug("[pipeline] fragment transcribed",
			"workspace", ws.ID,
			"fragment", f.Index,
			"start_ms", f.StartMillis,
			"end_ms", f.EndMillis,
		)

		if p.progress != nil {
			p.progress(f.Index+1, len(frags))
		}
	}
	return results, nil
}

// transcribeOne resets the engine cache and transcribes one fragment. With a
// Serialized engine both steps run under the engine's lock, so a concurrent
// request cannot slip a call in between.
func (p *Pipeline) transcribeOne(ctx context.Context, path, language string, sw *stopwatch, stage *error) (string, error) {
	var text string
	call := func(engine transcribe.Engine) error {
		if r, ok := engine.(transcribe.Resetter); ok {
			sw.serviceStage(func() error {
				if err := r.ResetCache(ctx); err != nil {
					slog.Warn("[pipeline] engine cache reset failed", "engine", engine.Name(), "error", err)
				}
				return nil
			})
		}

		*stage = ErrTranscription
		return sw.transcriptionStage(func() (err error) {
			text, err = engine.Transcribe(ctx, transcribe.Request{
				AudioPath: path,
				Language:  language,
				Model:     p.model,
			})
			return err
		})
	}

	var err error
	if s, ok := p.engine.(transcribe.Serialized); ok {
		err = s.Do(ctx, call)
	} else {
		err = call(p.engine)
	}
	return text, err
}

func failure(err error) Outcome {
	return Outcome{
		Success:   false,
		Error:     err.Error(),
		ErrorKind: KindName(err),
		err:       err,
	}
}
