// Package listener accepts one producer connection at a time with a
// bounded wait.
package listener

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

var (
	// ErrTimeout is returned by AcceptWithTimeout when no client
	// connected in time. The caller is expected to retry.
	ErrTimeout = errors.New("accept timed out")
	// ErrClosed is returned once the listener has been closed.
	ErrClosed = errors.New("listener closed")
)

// Listener is a TCP rendezvous point for the scene producer.
type Listener struct {
	tcp *net.TCPListener
}

// Listen binds a TCP listener on addr (for example ":5617").
func Listen(addr string) (*Listener, error) {
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", addr, err)
	}
	l, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %q: %w", addr, err)
	}
	return &Listener{tcp: l}, nil
}

// AcceptWithTimeout waits up to d for a client. A negative d waits
// without a deadline.
func (l *Listener) AcceptWithTimeout(d time.Duration) (*Session, error) {
	var deadline time.Time
	if d >= 0 {
		deadline = time.Now().Add(d)
	}
	if err := l.tcp.SetDeadline(deadline); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("failed to set accept deadline: %w", err)
	}

	conn, err := l.tcp.AcceptTCP()
	switch {
	case err == nil:
		return &Session{conn: conn, started: time.Now()}, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return nil, ErrTimeout
	case errors.Is(err, net.ErrClosed):
		return nil, ErrClosed
	}
	return nil, fmt.Errorf("failed to accept: %w", err)
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.tcp.Addr()
}

// Close stops listening. Pending and future accepts return ErrClosed.
func (l *Listener) Close() error {
	return l.tcp.Close()
}

// Session is one accepted producer connection.
type Session struct {
	conn    *net.TCPConn
	started time.Time
}

// Read reads raw bytes from the producer.
func (s *Session) Read(p []byte) (int, error) {
	return s.conn.Read(p)
}

// RemoteAddr returns the producer's address.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// Started returns the time the connection was accepted.
func (s *Session) Started() time.Time {
	return s.started
}

// Close closes the connection. It may be called from another goroutine
// to unblock a pending Read.
func (s *Session) Close() error {
	return s.conn.Close()
}
