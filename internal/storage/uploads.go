package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Uploads keeps raw uploads for queued jobs until a worker picks them up.
type Uploads struct {
	dir string
}

// NewUploads ensures dir exists.
func NewUploads(dir string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Uploads{dir: dir}, nil
}

// Save stores data under the job id, keeping the original extension so the
// decoder can use it as a hint. Returns the stored file name.
func (u *Uploads) Save(id, filename string, data []byte) (string, error) {
	name := id + strings.ToLower(filepath.Ext(filename))
	if filepath.Base(name) != name {
		return "", os.ErrPermission
	}
	if err := os.WriteFile(filepath.Join(u.dir, name), data, 0600); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return name, nil
}

// Load reads a stored upload.
func (u *Uploads) Load(name string) ([]byte, error) {
	if filepath.Base(name) != name {
		return nil, os.ErrPermission
	}
	return os.ReadFile(filepath.Join(u.dir, name))
}

// Delete removes a stored upload; missing files are ignored.
func (u *Uploads) Delete(name string) error {
	if filepath.Base(name) != name {
		return os.ErrPermission
	}
	if err := os.Remove(filepath.Join(u.dir, name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
