// Package worker turns dispatched consumer events into storage calls.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eldstar/server/internal/storage"
	"github.com/eldstar/server/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

// PointWriter receives one metrics point per recorded frame.
type PointWriter interface {
	WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Logger *slog.Logger
	Influx PointWriter // optional
}

// Manager keeps the storage backend in step with the consumer: it opens
// a session on its first frame, records frames, and closes the session
// when the consumer reports its end or a frame of a newer session shows
// up first.
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	mu       sync.Mutex
	open     *core.Session
	recorded uint64
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// OpenSession returns the session currently open on the backend.
func (m *Manager) OpenSession() (core.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open == nil {
		return core.Session{}, false
	}
	return *m.open, true
}

// Recorded returns how many frames reached the backend.
func (m *Manager) Recorded() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recorded
}

// Close ends a session left open, e.g. when shutting down while a
// producer is still connected. The dispatcher must be closed first.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open == nil {
		return nil
	}
	s := *m.open
	if s.EndedAt.IsZero() {
		s.EndedAt = time.Now()
	}
	return m.endLocked(&s)
}
