package logsink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File appends events to a local file, one JSON object per line.
type File struct {
	mu   sync.Mutex
	path string
	f    *os.File
	enc  *json.Encoder
}

// OpenFile opens path for appending, creating it and its directory if needed.
func OpenFile(path string) (*File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating events directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening events file: %w", err)
	}
	return &File{path: path, f: f, enc: json.NewEncoder(f)}, nil
}

// Path returns the file being written.
func (s *File) Path() string { return s.path }

// Append implements Sink.
func (s *File) Append(ctx context.Context, ev Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return 0, fmt.Errorf("events file %s is closed", s.path)
	}
	if err := s.enc.Encode(ev); err != nil {
		return 0, fmt.Errorf("writing event to %s: %w", s.path, err)
	}
	return 1, nil
}

// Close closes the underlying file. Subsequent appends fail.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
