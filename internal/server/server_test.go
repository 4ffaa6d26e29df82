package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ayusman/squatcoach/internal/app"
	"github.com/ayusman/squatcoach/internal/exercise"
)

// fakeApp is an in-memory App for handler tests.
type fakeApp struct {
	mu         sync.Mutex
	state      app.State
	thresholds exercise.Thresholds
	frame      []byte
	seq        uint64
}

func newFakeApp() *fakeApp {
	return &fakeApp{
		state: app.State{
			Snapshot: exercise.Snapshot{SessionID: "s-1", Reps: 2, Angle: 170, Phase: exercise.PhaseDown, Tracking: true},
			Enabled:  true,
			Mode:     "active",
		},
		thresholds: exercise.DefaultThresholds(),
	}
}

func (f *fakeApp) State() app.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeApp) Reset() app.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Reps = 0
	f.state.SessionID = "s-2"
	return f.state
}

func (f *fakeApp) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Enabled = enabled
}

func (f *fakeApp) IsEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Enabled
}

func (f *fakeApp) Thresholds() exercise.Thresholds {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.thresholds
}

func (f *fakeApp) SetThresholds(t exercise.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thresholds = t
	return nil
}

func (f *fakeApp) LatestFrame() ([]byte, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame, f.seq
}

func (f *fakeApp) setFrame(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = b
	f.seq++
}

func (f *fakeApp) setReps(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Reps = n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Log == nil {
		cfg.Log = discardLogger()
	}
	s := New(cfg)
	t.Cleanup(s.Close)
	return s
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_CORS(t *testing.T) {
	s := newTestServer(t, Config{App: newFakeApp()})

	req := httptest.NewRequest(http.MethodOptions, "/api/settings", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestServer_AppRoutes(t *testing.T) {
	fake := newFakeApp()
	s := newTestServer(t, Config{App: fake})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{method: http.MethodGet, path: "/api/state", want: http.StatusOK},
		{method: http.MethodPost, path: "/api/reset", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/settings", want: http.StatusOK},
		{method: http.MethodPost, path: "/api/session/pause", want: http.StatusOK},
		{method: http.MethodPost, path: "/api/session/resume", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/reset", want: http.StatusMethodNotAllowed},
		{method: http.MethodDelete, path: "/api/state", want: http.StatusMethodNotAllowed},
		{method: http.MethodGet, path: "/api/hooks", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cssContent := "body { color: red; }"
	if err := os.WriteFile(filepath.Join(tmpDir, "style.css"), []byte(cssContent), 0644); err != nil {
		t.Fatalf("failed to create test CSS file: %v", err)
	}

	s := newTestServer(t, Config{StaticDir: tmpDir, App: newFakeApp()})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("serves static files from configured directory", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != cssContent {
			t.Errorf("expected body %q, got %q", cssContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("api routes win over static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON state, got %q", rec.Header().Get("Content-Type"))
		}
	})
}

func TestServer_NoStaticDir(t *testing.T) {
	s := newTestServer(t, Config{})

	t.Run("root path returns 404 when no static dir configured", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("creates server with config", func(t *testing.T) {
		cfg := Config{StaticDir: "/some/path"}
		s := New(cfg)

		if s == nil {
			t.Fatal("expected non-nil server")
		}
		if s.config.StaticDir != cfg.StaticDir {
			t.Errorf("expected StaticDir %s, got %s", cfg.StaticDir, s.config.StaticDir)
		}
		if s.log == nil {
			t.Error("expected a default logger")
		}
	})

	t.Run("server implements http.Handler", func(t *testing.T) {
		var _ http.Handler = New(Config{})
	})
}
