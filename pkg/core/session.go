// pkg/core/session.go
package core

import "time"

// Session describes one producer connection as seen by recorders.
type Session struct {
	ID         uint64
	RemoteAddr string
	UserAgent  string
	StartedAt  time.Time
	EndedAt    time.Time
	Frames     uint
}
