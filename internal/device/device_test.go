package device

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/chimecam/chimecam/internal/capture"
)

func writeLine(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "value")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write line file: %v", err)
	}
	return path
}

func TestSysfsLine_Read(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"high", "1\n", true},
		{"low", "0\n", false},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := NewSysfsLine(writeLine(t, tt.content))
			if got := line.Read(); got != tt.want {
				t.Errorf("Expected %v for %q, got %v", tt.want, tt.content, got)
			}
		})
	}
}

func TestSysfsLine_MissingFileReadsHigh(t *testing.T) {
	line := NewSysfsLine(filepath.Join(t.TempDir(), "missing"))
	if !line.Read() {
		t.Error("Expected high level for unreadable line")
	}
}

func TestHTTPCamera_ReadFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/live":
			_, _ = w.Write([]byte("live-frame"))
		case "/still":
			_, _ = w.Write([]byte("still-frame"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cam := NewHTTPCamera(CameraConfig{
		LiveURL:  srv.URL + "/live",
		StillURL: srv.URL + "/still",
	})

	frame, err := cam.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("Failed to read live frame: %v", err)
	}
	if string(frame) != "live-frame" {
		t.Errorf("Expected live frame, got %q", frame)
	}

	if err := cam.Configure(capture.ModeStill); err != nil {
		t.Fatalf("Failed to configure still mode: %v", err)
	}
	frame, err = cam.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("Failed to read still frame: %v", err)
	}
	if string(frame) != "still-frame" {
		t.Errorf("Expected still frame, got %q", frame)
	}
}

func TestHTTPCamera_StillWithoutURL(t *testing.T) {
	cam := NewHTTPCamera(CameraConfig{LiveURL: "http://localhost/live"})

	if err := cam.Configure(capture.ModeStill); err != capture.ErrDeviceNotReady {
		t.Errorf("Expected ErrDeviceNotReady, got %v", err)
	}
}

func TestHTTPCamera_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cam := NewHTTPCamera(CameraConfig{LiveURL: srv.URL})
	if _, err := cam.ReadFrame(context.Background()); err == nil {
		t.Error("Expected error for non-200 response")
	}
}

func TestPCMMicrophone_ReadChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcm")
	if err := os.WriteFile(path, []byte("abcdefgh"), 0644); err != nil {
		t.Fatalf("Failed to write device file: %v", err)
	}

	mic, err := OpenPCMMicrophone(MicrophoneConfig{Device: path, ChunkBytes: 4})
	if err != nil {
		t.Fatalf("Failed to open microphone: %v", err)
	}
	defer mic.Close()

	chunk, err := mic.ReadChunk(context.Background())
	if err != nil {
		t.Fatalf("Failed to read chunk: %v", err)
	}
	if string(chunk) != "abcd" {
		t.Errorf("Expected first chunk abcd, got %q", chunk)
	}

	chunk, err = mic.ReadChunk(context.Background())
	if err != nil {
		t.Fatalf("Failed to read second chunk: %v", err)
	}
	if string(chunk) != "efgh" {
		t.Errorf("Expected second chunk efgh, got %q", chunk)
	}
}

func TestPCMMicrophone_MissingDevice(t *testing.T) {
	if _, err := OpenPCMMicrophone(MicrophoneConfig{Device: "/nonexistent"}); err == nil {
		t.Error("Expected error for missing device")
	}
}
