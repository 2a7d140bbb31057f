// internal/storage/memory/memory.go
package memory

import (
	"errors"
	"sort"
	"sync"

	"github.com/eldstar/server/internal/config"
	"github.com/eldstar/server/internal/storage"
	"github.com/eldstar/server/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrNoSession is returned when a frame arrives before StartSession.
var ErrNoSession = errors.New("no session started")

// Backend keeps per-frame summaries of the current session in memory
// and exports them to JSON when the session ends.
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session
	frames  []FrameJSON

	lastExportPath string
	lastExportMeta storage.ExportMetadata
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports a session that was never ended
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil
	}
	err := b.exportJSON()
	b.session = nil
	b.frames = nil
	return err
}

// StartSession begins recording a new session
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *s
	b.session = &cp
	b.frames = nil
	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	cp := *s
	b.session = &cp
	err := b.exportJSON()
	b.session = nil
	b.frames = nil
	return err
}

// RecordSnapshot appends a summary of the snapshot
func (b *Backend) RecordSnapshot(snap *core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	b.frames = append(b.frames, frameToJSON(snap))
	return nil
}

// FrameCount returns how many frames the current session holds
func (b *Backend) FrameCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.frames)
}

// RecentFrames lists the newest frames of the current session, newest first
func (b *Backend) RecentFrames(limit int) ([]core.Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var session uint64
	if b.session != nil {
		session = b.session.ID
	}
	out := make([]core.Stats, 0, limit)
	for i := len(b.frames) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, b.frames[i].stats(session))
	}
	return out, nil
}

// GetExportedFilePath returns the path of the last export
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last export
func (b *Backend) GetExportMetadata() storage.ExportMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMeta
}

func frameToJSON(s *core.Snapshot) FrameJSON {
	f := FrameJSON{
		Frame:       s.Frame,
		CommittedAt: s.CommittedAt,
		Description: s.Description,
		Camera: CameraJSON{
			SidePan:  core.Finite(s.CameraSidePan),
			Position: core.FiniteVec3(s.CameraPosition),
			Target:   core.FiniteVec3(s.CameraTarget),
			Yaw:      core.Finite(s.CameraYaw),
		},
		Mario:     core.FiniteMat4(s.Mario),
		Zones:     make([]ZoneJSON, 0, len(s.Zones)),
		Dynamic:   objectsToJSON(s.DynamicObjects),
		Items:     objectsToJSON(s.ItemObjects),
		World:     objectsToJSON(s.WorldObjects),
		Triangles: s.TriangleCount(),
	}
	for _, z := range s.Zones {
		zj := ZoneJSON{ID: z.ID, Triangles: len(z.Triangles)}
		lo, hi, _ := z.Bounds()
		zj.Min, zj.Max = core.FiniteVec3(lo), core.FiniteVec3(hi)
		f.Zones = append(f.Zones, zj)
	}
	sort.Slice(f.Zones, func(i, j int) bool { return f.Zones[i].ID < f.Zones[j].ID })
	return f
}

func objectsToJSON(m map[int64]mgl32.Mat4) []ObjectJSON {
	out := make([]ObjectJSON, 0, len(m))
	for id, mat := range m {
		out = append(out, ObjectJSON{ID: id, Matrix: core.FiniteMat4(mat)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
