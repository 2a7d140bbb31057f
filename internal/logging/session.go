package logging

import (
	"context"
	"log/slog"

	"github.com/eldstar/server/pkg/core"
)

// SessionSource reports the producer session that is connected right now.
type SessionSource interface {
	Current() (core.Session, bool)
	LastFrame() int64
}

// sessionAttrs describes the active session, or nothing while no producer
// is connected.
func sessionAttrs(src SessionSource) []slog.Attr {
	s, ok := src.Current()
	if !ok {
		return nil
	}
	attrs := []slog.Attr{
		slog.Uint64("session", s.ID),
		slog.String("client", s.RemoteAddr),
	}
	if s.UserAgent != "" {
		attrs = append(attrs, slog.String("agent", s.UserAgent))
	}
	if s.Frames > 0 {
		attrs = append(attrs, slog.Int64("frame", src.LastFrame()))
	}
	return attrs
}

// SessionHandler stamps records with the active producer session.
// Records and loggers that already name a session keep their own, so
// events about a finished session are not attributed to the next one.
type SessionHandler struct {
	inner  slog.Handler
	src    SessionSource
	pinned bool
}

// NewSessionHandler wraps inner.
func NewSessionHandler(inner slog.Handler, src SessionSource) *SessionHandler {
	return &SessionHandler{inner: inner, src: src}
}

func (h *SessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *SessionHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.pinned && !namesSession(r) {
		r.AddAttrs(sessionAttrs(h.src)...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *SessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	pinned := h.pinned
	for _, a := range attrs {
		if a.Key == "session" {
			pinned = true
		}
	}
	return &SessionHandler{inner: h.inner.WithAttrs(attrs), src: h.src, pinned: pinned}
}

func (h *SessionHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SessionHandler{inner: h.inner.WithGroup(name), src: h.src, pinned: h.pinned}
}

func namesSession(r slog.Record) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		found = a.Key == "session"
		return !found
	})
	return found
}
