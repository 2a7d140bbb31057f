// Package status serves a read-mostly HTTP view of the running server:
// the active session, the adopted snapshot, the free camera and, when
// the storage backend supports it, recorded frames.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/eldstar/server/internal/camera"
	"github.com/eldstar/server/internal/storage"
	"github.com/eldstar/server/pkg/core"
	"github.com/eldstar/server/pkg/streaming"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const defaultFrameLimit = 50

// Consumer is the part of the consumer loop the API reads and steers.
type Consumer interface {
	Current() (*core.Snapshot, bool)
	StatusLine() string
	Camera() (camera.Camera, bool)
	Stats() (ticks, adopted uint64)
	Dropped() uint64
	Track() camera.Target
	SetTrack(t camera.Target)
	Mirror() bool
	SetMirror(on bool)
}

// Sessions is the part of the session context the API reads.
type Sessions interface {
	Current() (core.Session, bool)
	LastFrame() int64
	Total() uint64
}

// FrameLoader restores a recorded frame by id.
type FrameLoader interface {
	LoadFrame(id uint) (*core.Snapshot, error)
}

// Dependencies holds what the handlers read from.
type Dependencies struct {
	Consumer Consumer
	Sessions Sessions
	Backlog  func() int
	Frames   storage.FrameLister // optional
	Loader   FrameLoader         // optional
	Logger   *slog.Logger
	Version  string
}

// Report is the body of GET /status.
type Report struct {
	Version       string        `json:"version"`
	Uptime        time.Duration `json:"uptime"`
	StatusLine    string        `json:"statusLine"`
	Session       *core.Session `json:"session,omitempty"`
	TotalSessions uint64        `json:"totalSessions"`
	LastFrame     int64         `json:"lastFrame"`
	Backlog       int           `json:"backlog"`
	Ticks         uint64        `json:"ticks"`
	Adopted       uint64        `json:"adopted"`
	Dropped       uint64        `json:"dropped"`
}

// CameraReport is the body of GET /camera.
type CameraReport struct {
	camera.Camera
	Track  string `json:"track"`
	Mirror bool   `json:"mirror"`
}

// Server is the status HTTP server.
type Server struct {
	deps    Dependencies
	router  *chi.Mux
	started time.Time
}

// New builds the router.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Backlog == nil {
		deps.Backlog = func() int { return 0 }
	}

	s := &Server{deps: deps, started: time.Now()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/snapshot", s.handleSnapshot)
	r.Route("/camera", func(r chi.Router) {
		r.Get("/", s.handleCamera)
		r.Put("/track", s.handleSetTrack)
		r.Put("/mirror", s.handleSetMirror)
	})
	r.Route("/frames", func(r chi.Router) {
		r.Get("/", s.handleFrames)
		r.Get("/{id}", s.handleFrame)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Report gathers the current server status.
func (s *Server) Report() Report {
	ticks, adopted := s.deps.Consumer.Stats()
	rep := Report{
		Version:       s.deps.Version,
		Uptime:        time.Since(s.started).Round(time.Second),
		StatusLine:    s.deps.Consumer.StatusLine(),
		TotalSessions: s.deps.Sessions.Total(),
		LastFrame:     s.deps.Sessions.LastFrame(),
		Backlog:       s.deps.Backlog(),
		Ticks:         ticks,
		Adopted:       adopted,
		Dropped:       s.deps.Consumer.Dropped(),
	}
	if cur, ok := s.deps.Sessions.Current(); ok {
		rep.Session = &cur
	}
	return rep
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status listener: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	s.deps.Logger.Info("Status API listening", "address", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Report())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.deps.Consumer.Current()
	if !ok {
		http.Error(w, "no snapshot adopted", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, streaming.NewFramePayload(snap))
}

func (s *Server) handleCamera(w http.ResponseWriter, _ *http.Request) {
	cam, ok := s.deps.Consumer.Camera()
	if !ok {
		http.Error(w, "camera not published yet", http.StatusNotFound)
		return
	}
	cam.Position = core.FiniteVec3(cam.Position)
	cam.Target = core.FiniteVec3(cam.Target)
	s.writeJSON(w, http.StatusOK, CameraReport{
		Camera: cam,
		Track:  s.deps.Consumer.Track().String(),
		Mirror: s.deps.Consumer.Mirror(),
	})
}

func (s *Server) handleSetTrack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	t, err := camera.ParseTarget(req.Target)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.deps.Consumer.SetTrack(t)
	s.deps.Logger.Info("Tracking target changed", "target", t.String())
	s.writeJSON(w, http.StatusOK, map[string]string{"track": t.String()})
}

func (s *Server) handleSetMirror(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mirror bool `json:"mirror"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.deps.Consumer.SetMirror(req.Mirror)
	s.writeJSON(w, http.StatusOK, map[string]bool{"mirror": req.Mirror})
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	if s.deps.Frames == nil {
		http.Error(w, "storage backend does not list frames", http.StatusNotFound)
		return
	}

	limit := defaultFrameLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	frames, err := s.deps.Frames.RecentFrames(limit)
	if err != nil {
		s.deps.Logger.Error("Failed to list frames", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if frames == nil {
		frames = []core.Stats{}
	}
	s.writeJSON(w, http.StatusOK, frames)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if s.deps.Loader == nil {
		http.Error(w, "storage backend does not load frames", http.StatusNotFound)
		return
	}

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		http.Error(w, "Invalid frame id", http.StatusBadRequest)
		return
	}

	snap, err := s.deps.Loader.LoadFrame(uint(id))
	if err != nil {
		http.Error(w, "frame not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, streaming.NewFramePayload(snap))
}

// writeJSON encodes v before committing the status code so an encoding
// failure can still be reported as a 500.
func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.deps.Logger.Error("Failed to encode response", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(append(body, '\n')); err != nil {
		s.deps.Logger.Debug("Failed to write response", "error", err)
	}
}
