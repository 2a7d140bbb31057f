// Package ingest runs the parsing side of the scene pipeline: it accepts
// a producer, frames its byte stream into records, builds snapshots and
// queues every committed snapshot for the consumer.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eldstar/server/internal/framer"
	"github.com/eldstar/server/internal/listener"
	"github.com/eldstar/server/internal/parser"
	"github.com/eldstar/server/internal/queue"
	"github.com/eldstar/server/internal/session"
	"github.com/eldstar/server/pkg/core"
)

// Config controls the ingest listener.
type Config struct {
	Address        string
	AcceptTimeout  time.Duration
	ReadBufferSize int
}

// DefaultConfig returns the stock listener settings.
func DefaultConfig() Config {
	return Config{
		Address:        ":5617",
		AcceptTimeout:  time.Second,
		ReadBufferSize: 8192,
	}
}

// Server owns the listener and the parsing goroutine.
type Server struct {
	cfg       Config
	logger    *slog.Logger
	listener  *listener.Listener
	sessions  *session.Context
	snapshots *queue.Queue[*core.Snapshot]
	metrics   *metrics

	stopped atomic.Bool

	mu     sync.Mutex
	active *listener.Session
}

// New binds the listener. A bind failure is returned and is fatal for
// the caller.
func New(cfg Config, logger *slog.Logger, sessions *session.Context) (*Server, error) {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultConfig().ReadBufferSize
	}
	if sessions == nil {
		sessions = session.NewContext()
	}

	l, err := listener.Listen(cfg.Address)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		listener:  l,
		sessions:  sessions,
		snapshots: queue.New[*core.Snapshot](),
	}
	s.metrics, err = newMetrics(s.Backlog)
	if err != nil {
		l.Close()
		return nil, err
	}
	return s, nil
}

// Run accepts producers one at a time until ctx is done or Stop is
// called. Stop requests are noticed between accepts, so shutdown takes
// at most one accept timeout. Only unexpected listener failures are
// returned.
func (s *Server) Run(ctx context.Context) error {
	defer context.AfterFunc(ctx, s.Stop)()
	defer s.listener.Close()

	s.logger.Info("Listening for scene producer", "address", s.listener.Addr().String())

	for !s.stopped.Load() {
		conn, err := s.listener.AcceptWithTimeout(s.cfg.AcceptTimeout)
		switch {
		case errors.Is(err, listener.ErrTimeout):
			continue
		case errors.Is(err, listener.ErrClosed):
			return nil
		case err != nil:
			return fmt.Errorf("ingest listener: %w", err)
		}
		s.serve(ctx, conn)
	}
	return nil
}

// Stop asks Run to return and closes the active connection so that a
// blocked read ends. It is safe to call from any goroutine.
func (s *Server) Stop() {
	s.stopped.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.active.Close()
	}
}

// TryTakeSnapshot returns the oldest committed snapshot without
// blocking. The caller takes ownership of it.
func (s *Server) TryTakeSnapshot() (*core.Snapshot, bool) {
	return s.snapshots.TryPop()
}

// Backlog returns the number of queued snapshots.
func (s *Server) Backlog() int {
	return s.snapshots.Len()
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Sessions returns the session context the server reports into.
func (s *Server) Sessions() *session.Context {
	return s.sessions
}

// Close releases the listener without running. Used when the server is
// constructed but never started.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) setActive(conn *listener.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn != nil && s.stopped.Load() {
		return false
	}
	s.active = conn
	return true
}

func (s *Server) serve(ctx context.Context, conn *listener.Session) {
	defer conn.Close()
	if !s.setActive(conn) {
		return
	}
	defer s.setActive(nil)

	info := s.sessions.Begin(conn.RemoteAddr(), conn.Started())
	s.metrics.sessions.Add(ctx, 1)
	s.logger.Info("Client connected", "session", info.ID, "client", info.RemoteAddr)

	b := NewBuilder(info.ID)
	f := framer.New(s.cfg.ReadBufferSize)
	buf := make([]byte, s.cfg.ReadBufferSize)
	emit := func(record string) { s.handle(ctx, b, record) }

	var readErr error
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			f.Feed(buf[:n], emit)
		}
		if err != nil {
			readErr = err
			break
		}
		if n == 0 {
			readErr = io.EOF
			break
		}
	}

	// A trailing partial record and an uncommitted scene are dropped.
	dropped := f.Pending()
	f.Reset()

	final, _ := s.sessions.End(time.Now())
	attrs := []any{
		"session", final.ID,
		"frames", final.Frames,
		"duration", final.EndedAt.Sub(final.StartedAt).Round(time.Millisecond),
	}
	if dropped > 0 {
		attrs = append(attrs, "droppedBytes", dropped)
	}

	switch {
	case errors.Is(readErr, io.EOF):
		s.logger.Info("Client disconnected", attrs...)
	case s.stopped.Load():
		s.logger.Info("Client session closed for shutdown", attrs...)
	default:
		s.logger.Info("Client session ended", append(attrs, "reason", readErr)...)
	}
}

func (s *Server) handle(ctx context.Context, b *Builder, record string) {
	cmd := parser.Parse(record)
	if ig, ok := cmd.(parser.Ignored); ok {
		s.metrics.ignored.Add(ctx, 1, opcodeAttr(ig.Op))
		return
	}
	s.metrics.parsed.Add(ctx, 1, opcodeAttr(cmd.Opcode()))

	if snap := b.Apply(cmd); snap != nil {
		s.snapshots.Push(snap)
		s.sessions.RecordFrame(snap.Frame, snap.UserAgent)
		s.metrics.committed.Add(ctx, 1)
	}
}
