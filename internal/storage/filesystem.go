package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/audio-transcribe/backend/internal/audio"
	"github.com/audio-transcribe/backend/internal/fragment"
)

// Scratch is the root directory under which per-request workspaces live.
type Scratch struct {
	root string
}

// NewScratch ensures root exists and returns a Scratch rooted there.
func NewScratch(root string) (*Scratch, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Scratch{root: abs}, nil
}

// Root returns the absolute scratch root.
func (s *Scratch) Root() string {
	return s.root
}

// Open creates a fresh uuid-named workspace. Two concurrent requests never
// share a workspace directory.
func (s *Scratch) Open() (*Workspace, error) {
	id := uuid.New().String()
	dir := filepath.Join(s.root, id)
	if err := os.Mkdir(dir, 0700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{ID: id, Dir: dir}, nil
}

// Workspace is a request-private directory for transient fragment files.
type Workspace struct {
	ID  string
	Dir string
}

// Path resolves name inside the workspace, rejecting anything that escapes it.
func (w *Workspace) Path(name string) (string, error) {
	full := filepath.Join(w.Dir, name)

	// Prevent path traversal
	if !strings.HasPrefix(full, w.Dir+string(os.PathSeparator)) {
		return "", os.ErrPermission
	}
	return full, nil
}

// WriteFragment persists one fragment of tl as WAV and returns its path.
func (w *Workspace) WriteFragment(f fragment.Fragment, tl *audio.Timeline) (string, error) {
	path, err := w.Path(f.Name(".wav"))
	if err != nil {
		return "", err
	}
	if err := audio.WriteWAVFile(path, tl.Slice(f.StartMillis, f.EndMillis)); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

// Remove deletes a single file from the workspace. A file that is already
// gone is not an error.
func (w *Workspace) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Files lists the names currently in the workspace, sorted.
func (w *Workspace) Files() ([]string, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Close removes the workspace and everything left in it.
func (w *Workspace) Close() error {
	return os.RemoveAll(w.Dir)
}
