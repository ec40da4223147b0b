// Package store provides the append-only artifact store for captured stills
// and audio clips. Artifacts live on the local filesystem (SD card in the
// field) under deterministic names derived from the event id; the next id
// after a restart is recovered by scanning those names.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// StoreError represents a storage error.
type StoreError string

func (e StoreError) Error() string { return string(e) }

const (
	// ErrNotMounted is returned when the artifact root is unavailable.
	ErrNotMounted = StoreError("artifact storage is not mounted")
	// ErrNotFound is returned when the requested artifact does not exist.
	ErrNotFound = StoreError("artifact not found")
)

const artifactPrefix = "event_"

// ImageName returns the deterministic still-image name for an event id.
func ImageName(id uint64) string { return fmt.Sprintf("%s%06d.jpg", artifactPrefix, id) }

// AudioName returns the deterministic audio-clip name for an event id.
func AudioName(id uint64) string { return fmt.Sprintf("%s%06d.pcm", artifactPrefix, id) }

// Mirror uploads artifacts to an off-board object store. Failures are
// best-effort only; local storage remains the source of truth.
type Mirror interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) error
}

// Store is the filesystem-backed artifact store.
type Store struct {
	mu     sync.Mutex
	root   string
	mirror Mirror
	logger *slog.Logger
}

// Open creates the artifact directory under dataDir and returns the store.
func Open(dataDir string) (*Store, error) {
	root := filepath.Join(dataDir, "artifacts")
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotMounted, err)
	}

	return &Store{
		root:   root,
		logger: slog.Default().With("component", "artifact_store"),
	}, nil
}

// SetMirror attaches an optional off-board mirror.
func (s *Store) SetMirror(m Mirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror = m
}

// Root returns the artifact directory path.
func (s *Store) Root() string { return s.root }

// WriteArtifact writes a complete artifact under the given name.
func (s *Store) WriteArtifact(name string, data []byte) error {
	if err := s.checkMounted(); err != nil {
		return err
	}

	path := filepath.Join(s.root, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize artifact %s: %w", name, err)
	}

	s.mirrorUpload(name, data)
	return nil
}

// Create opens an artifact for incremental writing. Audio clips are streamed
// chunk by chunk so a whole clip never sits in memory.
func (s *Store) Create(name string) (io.WriteCloser, error) {
	if err := s.checkMounted(); err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(s.root, name))
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact %s: %w", name, err)
	}
	return f, nil
}

// Exists reports whether an artifact with the given name is stored.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.root, name))
	return err == nil
}

// Open opens a stored artifact for reading.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// NextEventID scans existing artifact names and returns the highest embedded
// id plus one. This is the only state recovered across power cycles.
func (s *Store) NextEventID() uint64 {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Warn("Failed to scan artifact directory", "error", err)
		return 1
	}

	var max uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := parseArtifactID(entry.Name())
		if ok && id > max {
			max = id
		}
	}

	return max + 1
}

// parseArtifactID extracts the event id from an artifact name like
// "event_000042.jpg". The second return value is false for foreign files.
func parseArtifactID(name string) (uint64, bool) {
	if !strings.HasPrefix(name, artifactPrefix) {
		return 0, false
	}
	rest := strings.TrimPrefix(name, artifactPrefix)
	dot := strings.IndexByte(rest, '.')
	if dot <= 0 {
		return 0, false
	}
	id, err := strconv.ParseUint(rest[:dot], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (s *Store) checkMounted() error {
	if info, err := os.Stat(s.root); err != nil || !info.IsDir() {
		return ErrNotMounted
	}
	return nil
}

func (s *Store) mirrorUpload(name string, data []byte) {
	s.mu.Lock()
	mirror := s.mirror
	s.mu.Unlock()
	if mirror == nil {
		return
	}

	contentType := "application/octet-stream"
	if strings.HasSuffix(name, ".jpg") {
		contentType = "image/jpeg"
	}

	go func() {
		if err := mirror.Upload(context.Background(), name, data, contentType); err != nil {
			s.logger.Warn("Mirror upload failed", "artifact", name, "error", err)
		}
	}()
}
