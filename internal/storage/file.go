package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
)

const (
	DirPermsDefault  = 0o700
	FilePermsDefault = 0o600
)

// FileStore keeps one JSON document per key under a root directory.
type FileStore struct {
	root string
	mu   sync.Mutex
}

func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	if err := os.MkdirAll(abs, DirPermsDefault); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &FileStore{root: abs}, nil
}

func (s *FileStore) path(key string) (string, error) {
	key = slotKey(key)
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	clean := filepath.Clean(filepath.Join(s.root, key+".json"))
	if !strings.HasPrefix(clean, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("file path escapes root: %s", clean)
	}
	return clean, nil
}

func (s *FileStore) Load(_ context.Context, key string) (*printer.State, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return decodeState(data)
}

// Save writes to a temp file and renames it over the target, so readers
// never see a partial document.
func (s *FileStore) Save(_ context.Context, key string, state *printer.State) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("refusing to save nil state")
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.root, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Chmod(FilePermsDefault); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// HealthCheck verifies the root directory exists and is writable.
func (s *FileStore) HealthCheck(context.Context) bool {
	info, err := os.Stat(s.root)
	if err != nil || !info.IsDir() {
		return false
	}
	probe, err := os.CreateTemp(s.root, ".health-*")
	if err != nil {
		return false
	}
	probe.Close()
	return os.Remove(probe.Name()) == nil
}

func (s *FileStore) Type() string { return BackendFile }

func (s *FileStore) Root() string { return s.root }
