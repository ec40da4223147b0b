package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/chimecam/chimecam/internal/events"
	"github.com/chimecam/chimecam/internal/store"
)

const defaultLogLimit = 50

// handleHealth reports overall device health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	if s.db != nil {
		if err := s.db.Health(r.Context()); err != nil {
			status = "degraded"
			checks["database"] = "error"
		} else {
			checks["database"] = "ok"
		}
	}

	if s.status != nil {
		snap := s.status.Snapshot()
		if !snap.Subsystems.Camera || !snap.Subsystems.Storage {
			status = "degraded"
		}
		checks["state"] = string(snap.State)
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	JSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// handleStatus serves the controller status snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		ServiceUnavailable(w, "controller not running")
		return
	}
	OK(w, s.status.Snapshot())
}

// handleEvents serves the in-memory history ring, oldest first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		ServiceUnavailable(w, "controller not running")
		return
	}

	history := s.status.History()
	summaries := make([]events.Summary, 0, len(history))
	for _, ev := range history {
		summaries = append(summaries, ev.Summarize())
	}
	OK(w, summaries)
}

// handleEventLog serves the durable event log, newest first.
func (s *Server) handleEventLog(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		ServiceUnavailable(w, "event log unavailable")
		return
	}

	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := s.log.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list event log", "error", err)
		InternalError(w, "failed to read event log")
		return
	}

	total, err := s.log.Count(r.Context())
	if err != nil {
		s.logger.Error("Failed to count event log", "error", err)
		InternalError(w, "failed to read event log")
		return
	}

	summaries := make([]events.Summary, 0, len(list))
	for _, ev := range list {
		summaries = append(summaries, ev.Summarize())
	}
	JSONWithMeta(w, http.StatusOK, summaries, &Meta{Total: total, Limit: limit})
}

// handleArtifact streams a stored artifact by event id and kind.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		ServiceUnavailable(w, "artifact storage unavailable")
		return
	}

	id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id == 0 {
		BadRequest(w, "id must be a positive integer")
		return
	}

	var name, contentType string
	switch kind := r.URL.Query().Get("kind"); kind {
	case "image":
		name = store.ImageName(id)
		contentType = "image/jpeg"
	case "audio":
		name = store.AudioName(id)
		contentType = "application/octet-stream"
	default:
		BadRequest(w, "kind must be image or audio")
		return
	}

	f, err := s.artifacts.Open(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(w, fmt.Sprintf("no %s artifact for event %d", r.URL.Query().Get("kind"), id))
			return
		}
		s.logger.Error("Failed to open artifact", "name", name, "error", err)
		InternalError(w, "failed to open artifact")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Debug("Artifact transfer aborted", "name", name, "error", err)
	}
}

// handleLive streams the low-resolution live view as MJPEG parts.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		ServiceUnavailable(w, "live view unavailable")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			frame, err := s.live.GrabLiveFrame(r.Context())
			if err != nil {
				// Stills and pool pressure starve the live view briefly;
				// skip the frame and keep the stream open.
				continue
			}

			_, err = fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame.Data()))
			if err == nil {
				_, err = w.Write(frame.Data())
			}
			if err == nil {
				_, err = io.WriteString(w, "\r\n")
			}
			frame.Release()

			if err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
