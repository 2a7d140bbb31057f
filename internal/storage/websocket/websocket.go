package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/eldstar/server/pkg/core"
	"github.com/eldstar/server/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	APIKey string
}

// Backend relays committed frames over WebSocket to a viewer service.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger.With("component", "relay")),
		cfg:  cfg,
	}
}

// Init connects to the relay.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.APIKey)
}

// Close disconnects from the relay.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Dropped returns how many messages were discarded because the relay
// could not keep up.
func (b *Backend) Dropped() uint64 {
	return b.conn.droppedCount()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// StartSession announces the session and waits for the relay's ack.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.NewSessionPayload(s))
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends the final session state and waits for the relay's ack.
func (b *Backend) EndSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeEndSession, streaming.NewSessionPayload(s))
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)

	// Clear cached state regardless of error.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = nil
	b.conn.mu.Unlock()

	return err
}

// RecordSnapshot sends the frame without waiting (fire-and-forget).
func (b *Backend) RecordSnapshot(snap *core.Snapshot) error {
	data, err := marshalEnvelope(streaming.TypeFrame, streaming.NewFramePayload(snap))
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}
