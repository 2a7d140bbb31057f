// Package consumer runs the headless stand-in for the render loop: once
// per tick it adopts at most one committed snapshot, moves the free
// camera, publishes it through the patchback slot and forwards the
// snapshot to the recording sinks.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eldstar/server/internal/camera"
	"github.com/eldstar/server/internal/dispatcher"
	"github.com/eldstar/server/pkg/core"
)

// NoClient is the status line shown before the first snapshot arrives.
const NoClient = "No client connected"

// DefaultTickRate approximates a 16 Hz frame loop.
const DefaultTickRate = 60 * time.Millisecond

// Source hands out committed snapshots without blocking.
type Source interface {
	TryTakeSnapshot() (*core.Snapshot, bool)
}

// Sessions resolves producer sessions by id.
type Sessions interface {
	CurrentID() uint64
	Lookup(id uint64) (core.Session, bool)
}

// Sink receives adopted snapshots and session ends.
type Sink interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Config controls the tick loop.
type Config struct {
	TickRate time.Duration
	Track    camera.Target
	Mirror   bool
}

// Loop is the consumer side of the snapshot queue.
type Loop struct {
	cfg       Config
	source    Source
	sessions  Sessions
	sink      Sink // optional
	patchback *camera.Patchback
	logger    *slog.Logger

	current atomic.Pointer[core.Snapshot]
	ticks   atomic.Uint64
	adopted atomic.Uint64
	dropped atomic.Uint64

	// owned by the goroutine calling Tick
	retryEnd *dispatcher.Event

	// written by the loop goroutine, settings also by SetTrack/SetMirror
	mu          sync.Mutex
	cam         camera.Camera
	track       camera.Target
	mirror      bool
	lastSession uint64
}

// New creates a consumer loop. sink may be nil when nothing records.
func New(cfg Config, source Source, sessions Sessions, sink Sink, patchback *camera.Patchback, logger *slog.Logger) *Loop {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	if patchback == nil {
		patchback = &camera.Patchback{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:       cfg,
		source:    source,
		sessions:  sessions,
		sink:      sink,
		patchback: patchback,
		logger:    logger,
		cam:       camera.Default(),
		track:     cfg.Track,
		mirror:    cfg.Mirror,
	}
}

// Run ticks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.TickRate)
	defer ticker.Stop()

	l.logger.Info("Consumer loop started", "tickRate", l.cfg.TickRate, "track", l.Track().String(), "mirror", l.Mirror())
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			l.Tick(now)
		}
	}
}

// Tick runs one frame: adopt, track, mirror, publish. Recording events
// are dispatched after the frame is published and never wait for a
// sink. Tick is called from one goroutine at a time.
func (l *Loop) Tick(now time.Time) {
	l.ticks.Add(1)

	// read before polling the queue: the producer pushes its last
	// frame before its session ends, so once the id has moved on an
	// empty queue means that session is fully drained
	var currentID uint64
	if l.sessions != nil {
		currentID = l.sessions.CurrentID()
	}

	l.mu.Lock()
	var ended uint64
	snap, ok := l.source.TryTakeSnapshot()
	if ok {
		ended = l.adopt(snap)
	} else if l.lastSession != 0 && l.sessions != nil && currentID != l.lastSession {
		// queue drained and the producer is gone
		ended = l.lastSession
		l.lastSession = 0
	}

	world := l.current.Load()
	if world != nil {
		camera.Track(&l.cam, world, l.track)
	}

	published := l.cam
	if l.mirror && world != nil {
		published = camera.Mirror(world)
	}
	l.patchback.Store(published)
	l.mu.Unlock()

	if l.sink == nil {
		return
	}
	if l.retryEnd != nil {
		e := *l.retryEnd
		l.retryEnd = nil
		l.dispatchEnd(e)
	}
	if ended != 0 {
		l.dispatchEnd(l.endEvent(ended, now))
	}
	if ok {
		l.dispatchSnapshot(snap, now)
	}
}

// adopt makes snap the displayed snapshot and returns the id of the
// session it replaces, if any. l.mu must be held.
func (l *Loop) adopt(snap *core.Snapshot) (ended uint64) {
	if l.lastSession != 0 && snap.Session != l.lastSession {
		ended = l.lastSession
	}
	if snap.Session != l.lastSession {
		l.logger.Debug("Adopting snapshots of new session", "session", snap.Session)
	}
	l.lastSession = snap.Session
	l.current.Store(snap)
	l.adopted.Add(1)
	return ended
}

func (l *Loop) dispatchSnapshot(snap *core.Snapshot, now time.Time) {
	var info core.Session
	if l.sessions != nil {
		info, _ = l.sessions.Lookup(snap.Session)
	}
	_, err := l.sink.Dispatch(dispatcher.Event{
		Command:   dispatcher.CommandSnapshot,
		Snapshot:  snap,
		Session:   info,
		Timestamp: now,
	})
	switch {
	case errors.Is(err, dispatcher.ErrQueueFull):
		if l.dropped.Add(1) == 1 {
			l.logger.Warn("Recording queue full, dropping snapshots", "session", snap.Session, "frame", snap.Frame)
		}
	case err != nil:
		l.logger.Warn("Failed to dispatch snapshot", "session", snap.Session, "frame", snap.Frame, "error", err)
	}
}

func (l *Loop) endEvent(id uint64, now time.Time) dispatcher.Event {
	info := core.Session{ID: id, EndedAt: now}
	if l.sessions != nil {
		if s, ok := l.sessions.Lookup(id); ok {
			info = s
		}
	}
	return dispatcher.Event{
		Command:   dispatcher.CommandSessionEnd,
		Session:   info,
		Timestamp: now,
	}
}

// dispatchEnd queues a session end. A full queue keeps it for the next tick.
func (l *Loop) dispatchEnd(e dispatcher.Event) {
	_, err := l.sink.Dispatch(e)
	switch {
	case errors.Is(err, dispatcher.ErrQueueFull):
		l.retryEnd = &e
	case err != nil:
		l.logger.Warn("Failed to dispatch session end", "session", e.Session.ID, "error", err)
	}
}

// Current returns the adopted snapshot. It stays after the producer
// disconnects until a newer one replaces it.
func (l *Loop) Current() (*core.Snapshot, bool) {
	s := l.current.Load()
	return s, s != nil
}

// StatusLine returns the description of the adopted snapshot.
func (l *Loop) StatusLine() string {
	if s := l.current.Load(); s != nil {
		return s.Description
	}
	return NoClient
}

// Camera returns the last published camera.
func (l *Loop) Camera() (camera.Camera, bool) {
	return l.patchback.Load()
}

// Track returns the current tracking target.
func (l *Loop) Track() camera.Target {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.track
}

// SetTrack changes the tracking target from the next tick on.
func (l *Loop) SetTrack(t camera.Target) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.track = t
}

// Mirror reports whether the published camera follows the game camera.
func (l *Loop) Mirror() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mirror
}

// SetMirror turns game camera mirroring on or off.
func (l *Loop) SetMirror(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mirror = on
}

// Stats reports how many ticks ran and how many snapshots were adopted.
func (l *Loop) Stats() (ticks, adopted uint64) {
	return l.ticks.Load(), l.adopted.Load()
}

// Dropped reports how many adopted snapshots the recording queue refused.
func (l *Loop) Dropped() uint64 {
	return l.dropped.Load()
}
