// Package credentials owns the two files the engine reads from the project
// root: the durable OAuth token and the client credentials descriptor.
package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned when the token artifact does not exist.
var ErrNotFound = errors.New("token not found")

// Store is the durable token artifact. Its presence is the only record of a
// completed authorization.
type Store interface {
	Read() ([]byte, error)
	Write(data []byte) error
	// Delete removes the token. It returns ErrNotFound if there was nothing
	// to remove.
	Delete() error
	Exists() (bool, error)
}

// FileStore keeps the token in a single file. Writers are serialized within
// the process; readers treat a file that vanishes mid-read as absent.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the token file location.
func (s *FileStore) Path() string { return s.path }

// Read returns the token bytes. The engine writes the token itself, so the
// server only reads it through tests and alternate Store implementations.
func (s *FileStore) Read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}
	return data, nil
}

// Write replaces the token atomically. Like Read it completes the Store
// contract; the running server never writes the token.
func (s *FileStore) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating token dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".token-*")
	if err != nil {
		return fmt.Errorf("creating temp token: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting token permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing token: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

func (s *FileStore) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking token: %w", err)
	}
	return true, nil
}
