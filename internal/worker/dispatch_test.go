package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/eldstar/server/internal/dispatcher"
	"github.com/eldstar/server/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct{}

func (mockLogger) Debug(string, ...any) {}
func (mockLogger) Info(string, ...any)  {}
func (mockLogger) Error(string, ...any) {}

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu       sync.Mutex
	calls    []string
	started  []core.Session
	ended    []core.Session
	frames   []*core.Snapshot
	failNext error
}

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "start")
	b.started = append(b.started, *s)
	return nil
}

func (b *mockBackend) EndSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "end")
	b.ended = append(b.ended, *s)
	return nil
}

func (b *mockBackend) RecordSnapshot(snap *core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failNext; err != nil {
		b.failNext = nil
		return err
	}
	b.calls = append(b.calls, "frame")
	b.frames = append(b.frames, snap)
	return nil
}

type mockPoints struct {
	mu      sync.Mutex
	buckets []string
}

func (p *mockPoints) WritePoint(_ context.Context, bucket string, _ *influxdb2_write.Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buckets = append(p.buckets, bucket)
	return nil
}

func newTestManager(b *mockBackend, points PointWriter) *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(Dependencies{Logger: logger, Influx: points}, b)
}

func snapshot(session uint64, frame int64) *core.Snapshot {
	s := core.NewSnapshot(session)
	s.Commit(frame, "emu", time.Unix(1000+frame, 0))
	return s
}

func TestHandleSnapshot_StartsSessionOnFirstFrame(t *testing.T) {
	b := &mockBackend{}
	points := &mockPoints{}
	m := newTestManager(b, points)

	info := core.Session{ID: 1, RemoteAddr: "127.0.0.1:4000", StartedAt: time.Unix(900, 0)}
	_, err := m.handleSnapshot(dispatcher.Event{Command: dispatcher.CommandSnapshot, Snapshot: snapshot(1, 1), Session: info})
	require.NoError(t, err)
	_, err = m.handleSnapshot(dispatcher.Event{Command: dispatcher.CommandSnapshot, Snapshot: snapshot(1, 2), Session: info})
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "frame", "frame"}, b.calls)
	require.Len(t, b.started, 1)
	assert.Equal(t, "127.0.0.1:4000", b.started[0].RemoteAddr)
	assert.Equal(t, time.Unix(900, 0), b.started[0].StartedAt)
	assert.Equal(t, "emu", b.started[0].UserAgent)

	open, ok := m.OpenSession()
	require.True(t, ok)
	assert.Equal(t, uint(2), open.Frames)
	assert.Equal(t, uint64(2), m.Recorded())
	assert.Len(t, points.buckets, 2)
}

func TestHandleSnapshot_NewSessionEndsPrevious(t *testing.T) {
	b := &mockBackend{}
	m := newTestManager(b, nil)

	_, err := m.handleSnapshot(dispatcher.Event{Snapshot: snapshot(1, 1)})
	require.NoError(t, err)
	_, err = m.handleSnapshot(dispatcher.Event{Snapshot: snapshot(2, 1)})
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "frame", "end", "start", "frame"}, b.calls)
	require.Len(t, b.ended, 1)
	assert.Equal(t, uint64(1), b.ended[0].ID)
	assert.Equal(t, uint(1), b.ended[0].Frames)
	assert.Equal(t, time.Unix(1001, 0), b.ended[0].EndedAt)
	assert.Equal(t, uint64(2), b.started[1].ID)
}

func TestHandleSnapshot_RecordError(t *testing.T) {
	b := &mockBackend{failNext: errors.New("disk full")}
	m := newTestManager(b, nil)

	_, err := m.handleSnapshot(dispatcher.Event{Snapshot: snapshot(1, 1)})
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, uint64(0), m.Recorded())

	_, err = m.handleSnapshot(dispatcher.Event{})
	assert.Error(t, err)
}

func TestHandleSessionEnd(t *testing.T) {
	b := &mockBackend{}
	m := newTestManager(b, nil)

	_, err := m.handleSnapshot(dispatcher.Event{Snapshot: snapshot(3, 1)})
	require.NoError(t, err)

	// an end for a session that was never recorded is ignored
	_, err = m.handleSessionEnd(dispatcher.Event{Session: core.Session{ID: 2}})
	require.NoError(t, err)
	assert.Empty(t, b.ended)

	final := core.Session{ID: 3, StartedAt: time.Unix(1000, 0), EndedAt: time.Unix(1010, 0), Frames: 99}
	_, err = m.handleSessionEnd(dispatcher.Event{Session: final})
	require.NoError(t, err)

	require.Len(t, b.ended, 1)
	assert.Equal(t, time.Unix(1010, 0), b.ended[0].EndedAt)
	assert.Equal(t, uint(1), b.ended[0].Frames)
	assert.Equal(t, "emu", b.ended[0].UserAgent)

	_, ok := m.OpenSession()
	assert.False(t, ok)
}

func TestClose_EndsOpenSession(t *testing.T) {
	b := &mockBackend{}
	m := newTestManager(b, nil)

	require.NoError(t, m.Close())
	assert.Empty(t, b.calls)

	_, err := m.handleSnapshot(dispatcher.Event{Snapshot: snapshot(1, 1)})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	require.Len(t, b.ended, 1)
	assert.False(t, b.ended[0].EndedAt.IsZero())
}

func TestRegisterHandlers_OrdersEndAfterFrames(t *testing.T) {
	b := &mockBackend{}
	m := newTestManager(b, nil)

	d, err := dispatcher.New(mockLogger{})
	require.NoError(t, err)
	m.RegisterHandlers(d)

	assert.True(t, d.HasHandler(dispatcher.CommandSnapshot))
	assert.True(t, d.HasHandler(dispatcher.CommandSessionEnd))

	for i := int64(1); i <= 50; i++ {
		_, err := d.Dispatch(dispatcher.Event{Command: dispatcher.CommandSnapshot, Snapshot: snapshot(1, i)})
		require.NoError(t, err)
	}
	_, err = d.Dispatch(dispatcher.Event{Command: dispatcher.CommandSessionEnd, Session: core.Session{ID: 1}})
	require.NoError(t, err)
	d.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.calls, 52)
	assert.Equal(t, "start", b.calls[0])
	assert.Equal(t, "end", b.calls[51])
	require.Len(t, b.ended, 1)
	assert.Equal(t, uint(50), b.ended[0].Frames)
}

// stalledBackend holds every RecordSnapshot until release is closed.
type stalledBackend struct {
	mockBackend
	release chan struct{}
}

func (b *stalledBackend) RecordSnapshot(snap *core.Snapshot) error {
	<-b.release
	return b.mockBackend.RecordSnapshot(snap)
}

func TestRegisterHandlers_RefusesWhenBackendStalls(t *testing.T) {
	b := &stalledBackend{release: make(chan struct{})}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(Dependencies{Logger: logger}, b)

	d, err := dispatcher.New(mockLogger{})
	require.NoError(t, err)
	m.RegisterHandlers(d)

	done := make(chan error, 1)
	go func() {
		var last error
		for i := int64(1); i <= storageQueueSize+2; i++ {
			if _, err := d.Dispatch(dispatcher.Event{Command: dispatcher.CommandSnapshot, Snapshot: snapshot(1, i)}); err != nil {
				last = err
			}
		}
		done <- last
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, dispatcher.ErrQueueFull)
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on a stalled backend")
	}

	close(b.release)
	d.Close()
}
