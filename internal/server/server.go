// Package server provides the local HTTP server for the squatcoach UI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/squatcoach/internal/server/api"
)

// App is what the server needs from the running application.
type App interface {
	api.Session
	LatestFrame() ([]byte, uint64)
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	App       App
	// Settings persists thresholds changed through the API. Optional.
	Settings api.ThresholdStore
	// Hooks exposes plugin hooks through the API. Optional.
	Hooks       api.HookStore
	HUDInterval time.Duration
	Log         *slog.Logger
}

// Server represents the HTTP server for the squatcoach application.
type Server struct {
	config Config
	router chi.Router
	log    *slog.Logger
	hud    *HUDHandler
	start  time.Time
}

// New creates a new Server with all routes configured.
func New(config Config) *Server {
	if config.Log == nil {
		config.Log = slog.Default()
	}
	s := &Server{
		config: config,
		router: chi.NewRouter(),
		log:    config.Log,
		start:  time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Get("/api/health", s.handleHealth)

	if s.config.App != nil {
		session := api.NewSessionHandler(s.config.App)
		settings := api.NewSettingsHandler(s.config.App, s.config.Settings, s.log)

		s.router.Get("/api/state", session.State)
		s.router.Post("/api/reset", session.Reset)
		s.router.Post("/api/session/pause", session.Pause)
		s.router.Post("/api/session/resume", session.Resume)
		s.router.Get("/api/settings", settings.Get)
		s.router.Put("/api/settings", settings.Update)

		s.router.Method(http.MethodGet, "/api/stream", NewStreamHandler(s.config.App, 0))

		s.hud = NewHUDHandler(s.config.App, s.config.HUDInterval, s.log)
		s.router.Method(http.MethodGet, "/api/hud", s.hud)
	}

	if s.config.Hooks != nil {
		hooks := api.NewHookHandler(s.config.Hooks)
		s.router.Get("/api/hooks", hooks.List)
		s.router.Put("/api/hooks/{id}", hooks.Update)
		s.router.Delete("/api/hooks/{id}", hooks.Delete)
	}

	if s.config.StaticDir != "" {
		s.router.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
// Request contexts derive from ctx so open MJPEG streams end on shutdown.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Close stops the HUD broadcaster and disconnects its clients.
func (s *Server) Close() {
	if s.hud != nil {
		s.hud.Close()
	}
}
