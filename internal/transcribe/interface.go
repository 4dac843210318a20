package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Request is the input for one fragment transcription
type Request struct {
	AudioPath string // absolute path to a WAV fragment
	Language  string // "ru", "en", "auto", etc.
	Model     string // engine-specific model name
}

// Engine converts one audio fragment into text. Implementations make a
// single attempt per call.
type Engine interface {
	Transcribe(ctx context.Context, req Request) (string, error)
	// Name returns the engine name
	Name() string
}

// Resetter is implemented by engines that can reclaim their working memory
// between calls.
type Resetter interface {
	ResetCache(ctx context.Context) error
}

// Serialized is implemented by engine wrappers that can run several engine
// calls, such as a cache reset followed by a transcription, as one unit that
// no other caller can interleave with.
type Serialized interface {
	Do(ctx context.Context, fn func(Engine) error) error
}

// Exclusive wraps an engine so that at most one call is in flight across the
// whole process.
type Exclusive struct {
	mu     sync.Mutex
	engine Engine
}

func NewExclusive(engine Engine) *Exclusive {
	return &Exclusive{engine: engine}
}

func (e *Exclusive) Name() string {
	return e.engine.Name()
}

func (e *Exclusive) Transcribe(ctx context.Context, req Request) (text string, err error) {
	err = e.Do(ctx, func(engine Engine) (err error) {
		text, err = engine.Transcribe(ctx, req)
		return err
	})
	return text, err
}

// Do runs fn with the wrapped engine while holding the lock. A context that
// is already done when the lock is acquired skips fn.
func (e *Exclusive) Do(ctx context.Context, fn func(Engine) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(e.engine)
}

// ResetCache forwards to the wrapped engine when it supports resetting.
func (e *Exclusive) ResetCache(ctx context.Context) error {
	r, ok := e.engine.(Resetter)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.ResetCache(ctx)
}

// Registry holds the engines available to the service, keyed by name.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// Register adds an engine under its own name
func (r *Registry) Register(engine Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[engine.Name()] = engine
	slog.Info("[transcribe] registered engine", "engine", engine.Name())
}

// Get returns the named engine.
func (r *Registry) Get(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engine, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("unknown engine: %s (available: %v)", name, r.namesLocked())
	}
	return engine, nil
}

// Names returns the registered engine names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
