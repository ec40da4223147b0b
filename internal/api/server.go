package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chimecam/chimecam/internal/capture"
	"github.com/chimecam/chimecam/internal/controller"
	"github.com/chimecam/chimecam/internal/database"
	"github.com/chimecam/chimecam/internal/events"
)

// StatusSource exposes the controller state to the remote interface.
type StatusSource interface {
	Snapshot() controller.Status
	History() []events.Event
}

// LogReader reads the durable event log.
type LogReader interface {
	List(ctx context.Context, limit int) ([]events.Event, error)
	Count(ctx context.Context) (int, error)
}

// ArtifactReader opens stored artifacts by name.
type ArtifactReader interface {
	Open(name string) (io.ReadCloser, error)
}

// LiveSource provides low-resolution frames for the live view.
type LiveSource interface {
	GrabLiveFrame(ctx context.Context) (*capture.Frame, error)
}

// Server is the remote HTTP interface. Every route is read-only; the device
// is controlled by its physical trigger, not the network.
type Server struct {
	status    StatusSource
	log       LogReader
	artifacts ArtifactReader
	live      LiveSource
	hub       *Hub
	db        *database.DB
	logger    *slog.Logger
}

// NewServer creates the HTTP server. Any collaborator may be nil; the
// corresponding routes answer 503.
func NewServer(status StatusSource, log LogReader, artifacts ArtifactReader, live LiveSource, hub *Hub, db *database.DB) *Server {
	return &Server{
		status:    status,
		log:       log,
		artifacts: artifacts,
		live:      live,
		hub:       hub,
		db:        db,
		logger:    slog.Default().With("component", "api"),
	}
}

// Router builds the HTTP router with all routes
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		// The live stream and websocket hold their connections open, so the
		// timeout applies only to the plain JSON routes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(15 * time.Second))
			r.Get("/status", s.handleStatus)
			r.Get("/events", s.handleEvents)
			r.Get("/events/log", s.handleEventLog)
			r.Get("/artifact", s.handleArtifact)
		})
	})

	r.Get("/live", s.handleLive)

	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWebSocket)
	}

	return r
}

// ListenAndServe runs the HTTP server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, host string, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("HTTP interface listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
