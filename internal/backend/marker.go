package backend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

// SyncMarker records whether the remote copy is missing local writes.
type SyncMarker interface {
	Behind() (bool, error)
	MarkBehind() error
	MarkCurrent() error
}

// FileMarker keeps the flag as the presence of a file, so it survives
// restarts.
type FileMarker struct {
	path string
}

func NewFileMarker(path string) (*FileMarker, error) {
	if path == "" {
		return nil, errors.New("sync marker path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create marker directory: %w", err)
	}
	return &FileMarker{path: path}, nil
}

func (m *FileMarker) Behind() (bool, error) {
	_, err := os.Stat(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat sync marker: %w", err)
	}
	return true, nil
}

func (m *FileMarker) MarkBehind() error {
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create sync marker: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync marker: %w", err)
	}
	return f.Close()
}

func (m *FileMarker) MarkCurrent() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove sync marker: %w", err)
	}
	return nil
}

// MemoryMarker is a process-lifetime marker.
type MemoryMarker struct {
	behind atomic.Bool
}

func (m *MemoryMarker) Behind() (bool, error) { return m.behind.Load(), nil }
func (m *MemoryMarker) MarkBehind() error { m.behind.Store(true); return nil }
func (m *MemoryMarker) MarkCurrent() error { m.behind.Store(false); return nil }
