// internal/storage/storage.go
package storage

import (
	"time"

	"github.com/eldstar/server/pkg/core"
)

// Backend is the interface all storage implementations must satisfy.
// Calls arrive from a single worker goroutine in session order: one
// StartSession, any number of RecordSnapshot, then EndSession.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession(s *core.Session) error

	// Frame recording. The snapshot is committed and must not be modified.
	RecordSnapshot(snap *core.Snapshot) error
}

// Uploadable is an optional interface for storage backends that produce
// a file per session.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() ExportMetadata
}

// FrameLister is an optional interface for backends that can list
// recorded frames back.
type FrameLister interface {
	RecentFrames(limit int) ([]core.Stats, error)
}

// ExportMetadata describes the last exported session.
type ExportMetadata struct {
	Session   uint64        `json:"session"`
	UserAgent string        `json:"userAgent"`
	Frames    int           `json:"frames"`
	Duration  time.Duration `json:"duration"`
}
