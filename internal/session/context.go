package session

import (
	"sync"
	"time"

	"github.com/eldstar/server/pkg/core"
)

// Context tracks the producer session currently being serviced. It is
// written by the ingest goroutine and read by loggers and the status API.
type Context struct {
	mu        sync.RWMutex
	current   *core.Session
	ended     []core.Session
	lastID    uint64
	lastFrame int64
	total     uint64
}

// historySize bounds how many ended sessions Lookup can still resolve.
const historySize = 32

// NewContext creates a Context with no active session.
func NewContext() *Context {
	return &Context{}
}

// Begin opens a new session for the client at remoteAddr.
func (c *Context) Begin(remoteAddr string, started time.Time) core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastID++
	c.total++
	c.current = &core.Session{
		ID:         c.lastID,
		RemoteAddr: remoteAddr,
		StartedAt:  started,
	}
	return *c.current
}

// RecordFrame notes a committed frame on the active session.
func (c *Context) RecordFrame(frame int64, userAgent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFrame = frame
	if c.current == nil {
		return
	}
	c.current.Frames++
	c.current.UserAgent = userAgent
}

// End closes the active session and returns its final state. ok is
// false when no session was open.
func (c *Context) End(ended time.Time) (s core.Session, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return s, false
	}
	c.current.EndedAt = ended
	s = *c.current
	c.current = nil
	if len(c.ended) == historySize {
		c.ended = append(c.ended[:0], c.ended[1:]...)
	}
	c.ended = append(c.ended, s)
	return s, true
}

// Lookup returns the active or a recently ended session by id.
func (c *Context) Lookup(id uint64) (core.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current != nil && c.current.ID == id {
		return *c.current, true
	}
	for i := len(c.ended) - 1; i >= 0; i-- {
		if c.ended[i].ID == id {
			return c.ended[i], true
		}
	}
	return core.Session{}, false
}

// Current returns the active session, if any.
func (c *Context) Current() (core.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return core.Session{}, false
	}
	return *c.current, true
}

// CurrentID returns the active session id, or zero.
func (c *Context) CurrentID() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return 0
	}
	return c.current.ID
}

// LastFrame returns the most recent committed frame number.
func (c *Context) LastFrame() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFrame
}

// Total returns how many sessions have been opened.
func (c *Context) Total() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total
}
