package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/eldstar/server/internal/dispatcher"
	"github.com/eldstar/server/internal/influx"
	"github.com/eldstar/server/pkg/core"
)

// storageLane carries every storage event through one ordered queue.
const storageLane = "storage"

// storageQueueSize bounds the storage lane. At the default tick rate it
// holds about a minute of frames.
const storageQueueSize = 1024

// RegisterHandlers registers all event handlers with the dispatcher.
// Snapshots and session ends share a lane so an end is never handled
// before the frames queued ahead of it. The lane does not block the
// consumer tick; events beyond the queue size are refused with
// dispatcher.ErrQueueFull.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	opts := []dispatcher.Option{
		dispatcher.Buffered(storageQueueSize),
		dispatcher.Lane(storageLane),
		dispatcher.Logged(),
	}
	d.Register(dispatcher.CommandSnapshot, m.handleSnapshot, opts...)
	d.Register(dispatcher.CommandSessionEnd, m.handleSessionEnd, opts...)
}

func (m *Manager) handleSnapshot(e dispatcher.Event) (any, error) {
	snap := e.Snapshot
	if snap == nil {
		return nil, fmt.Errorf("snapshot event without snapshot")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open != nil && m.open.ID != snap.Session {
		// the end event of the previous session was never seen
		prev := *m.open
		if prev.EndedAt.IsZero() {
			prev.EndedAt = snap.CommittedAt
		}
		if err := m.endLocked(&prev); err != nil {
			m.deps.Logger.Error("Failed to end session", "session", prev.ID, "error", err)
		}
	}

	if m.open == nil {
		s := sessionFor(e.Session, snap)
		if err := m.backend.StartSession(&s); err != nil {
			return nil, fmt.Errorf("failed to start session %d: %w", s.ID, err)
		}
		m.open = &s
		m.deps.Logger.Info("Recording session", "session", s.ID, "agent", s.UserAgent)
	}

	if err := m.backend.RecordSnapshot(snap); err != nil {
		return nil, fmt.Errorf("failed to record frame %d: %w", snap.Frame, err)
	}
	m.open.Frames++
	m.open.UserAgent = snap.UserAgent
	m.recorded++

	if m.deps.Influx != nil {
		if err := m.deps.Influx.WritePoint(context.Background(), influx.BucketFrames, influx.FramePoint(snap)); err != nil {
			m.deps.Logger.Debug("Failed to write frame point", "error", err)
		}
	}
	return nil, nil
}

func (m *Manager) handleSessionEnd(e dispatcher.Event) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open == nil || m.open.ID != e.Session.ID {
		// nothing of that session was recorded
		return nil, nil
	}

	final := e.Session
	if final.EndedAt.IsZero() {
		final.EndedAt = e.Timestamp
	}
	if final.UserAgent == "" {
		final.UserAgent = m.open.UserAgent
	}
	final.Frames = m.open.Frames
	return nil, m.endLocked(&final)
}

// endLocked closes the open session on the backend. m.mu must be held.
func (m *Manager) endLocked(s *core.Session) error {
	m.open = nil
	if err := m.backend.EndSession(s); err != nil {
		return fmt.Errorf("failed to end session %d: %w", s.ID, err)
	}
	m.deps.Logger.Info("Session recorded",
		"session", s.ID,
		"frames", s.Frames,
		"duration", s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond))
	return nil
}

// sessionFor returns the session info to open for snap, filling what
// the event did not carry from the snapshot itself.
func sessionFor(s core.Session, snap *core.Snapshot) core.Session {
	if s.ID != snap.Session {
		s = core.Session{ID: snap.Session}
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = snap.CommittedAt
	}
	if s.UserAgent == "" {
		s.UserAgent = snap.UserAgent
	}
	s.EndedAt = time.Time{}
	s.Frames = 0
	return s
}
