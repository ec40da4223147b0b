package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if s.Root() != filepath.Join(dir, "artifacts") {
		t.Errorf("Expected root under %s, got %s", dir, s.Root())
	}
	if info, err := os.Stat(s.Root()); err != nil || !info.IsDir() {
		t.Error("Artifact directory was not created")
	}
}

func TestArtifactNames(t *testing.T) {
	if got := ImageName(5); got != "event_000005.jpg" {
		t.Errorf("Expected event_000005.jpg, got %s", got)
	}
	if got := AudioName(1234567); got != "event_1234567.pcm" {
		t.Errorf("Expected event_1234567.pcm, got %s", got)
	}
}

func TestWriteAndRead(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	name := ImageName(1)
	if err := s.WriteArtifact(name, []byte("jpegdata")); err != nil {
		t.Fatalf("WriteArtifact failed: %v", err)
	}

	if !s.Exists(name) {
		t.Error("Expected artifact to exist after write")
	}

	r, err := s.Open(name)
	if err != nil {
		t.Fatalf("Open artifact failed: %v", err)
	}
	defer r.Close()

	data, _ := io.ReadAll(r)
	if string(data) != "jpegdata" {
		t.Errorf("Expected jpegdata, got %s", data)
	}
}

func TestOpen_NotFound(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if _, err := s.Open("event_000099.jpg"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCreate_Incremental(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	w, err := s.Create(AudioName(2))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Chunked writes, as the audio window produces them
	for i := 0; i < 4; i++ {
		if _, err := w.Write([]byte{byte(i), byte(i)}); err != nil {
			t.Fatalf("Chunk write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, err := s.Open(AudioName(2))
	if err != nil {
		t.Fatalf("Open artifact failed: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if len(data) != 8 {
		t.Errorf("Expected 8 bytes, got %d", len(data))
	}
}

func TestNextEventID_Fresh(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if id := s.NextEventID(); id != 1 {
		t.Errorf("Expected next id 1 for fresh store, got %d", id)
	}
}

func TestNextEventID_Recovery(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// Simulate artifacts surviving a restart
	_ = s.WriteArtifact(ImageName(3), []byte("a"))
	_ = s.WriteArtifact(AudioName(5), []byte("b"))
	_ = s.WriteArtifact(ImageName(5), []byte("c"))

	// Foreign files must be ignored by the scan
	_ = os.WriteFile(filepath.Join(s.Root(), "notes.txt"), []byte("x"), 0644)
	_ = os.WriteFile(filepath.Join(s.Root(), "event_bogus.jpg"), []byte("x"), 0644)

	// Reopen, as after a power cycle
	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if id := s2.NextEventID(); id != 6 {
		t.Errorf("Expected next id 6 after artifacts up to 5, got %d", id)
	}
}

func TestParseArtifactID(t *testing.T) {
	tests := []struct {
		name string
		id   uint64
		ok   bool
	}{
		{"event_000001.jpg", 1, true},
		{"event_000042.pcm", 42, true},
		{"event_.jpg", 0, false},
		{"event_abc.jpg", 0, false},
		{"other_000001.jpg", 0, false},
		{"event_000007", 0, false},
	}

	for _, tt := range tests {
		id, ok := parseArtifactID(tt.name)
		if ok != tt.ok || id != tt.id {
			t.Errorf("parseArtifactID(%q) = (%d, %v), expected (%d, %v)", tt.name, id, ok, tt.id, tt.ok)
		}
	}
}

type recordingMirror struct {
	mu    sync.Mutex
	names []string
	done  chan struct{}
}

func (m *recordingMirror) Upload(_ context.Context, name string, _ []byte, _ string) error {
	m.mu.Lock()
	m.names = append(m.names, name)
	m.mu.Unlock()
	close(m.done)
	return nil
}

func TestMirrorUpload(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	mirror := &recordingMirror{done: make(chan struct{})}
	s.SetMirror(mirror)

	if err := s.WriteArtifact(ImageName(1), []byte("jpeg")); err != nil {
		t.Fatalf("WriteArtifact failed: %v", err)
	}

	<-mirror.done
	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	if len(mirror.names) != 1 || mirror.names[0] != ImageName(1) {
		t.Errorf("Expected mirror upload of %s, got %v", ImageName(1), mirror.names)
	}
}
