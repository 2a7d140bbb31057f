package ingest

import (
	"time"

	"github.com/eldstar/server/internal/parser"
	"github.com/eldstar/server/pkg/core"
)

// Builder owns the scene under construction for one session. Only the
// ingest goroutine touches it, so it carries no locking.
type Builder struct {
	session uint64
	current *core.Snapshot
	now     func() time.Time
}

// NewBuilder starts an empty scene for the given session.
func NewBuilder(session uint64) *Builder {
	return &Builder{
		session: session,
		current: core.NewSnapshot(session),
		now:     time.Now,
	}
}

// Apply mutates the scene with cmd. On an end of frame it returns the
// committed snapshot, which the builder no longer references, and starts
// a fresh scene. For every other command it returns nil.
func (b *Builder) Apply(cmd parser.Command) *core.Snapshot {
	s := b.current

	switch c := cmd.(type) {
	case parser.EndFrame:
		s.Commit(c.Frame, c.UserAgent, b.now())
		b.current = core.NewSnapshot(b.session)
		return s

	case parser.Triangle:
		s.AddTriangle(c.ZoneID, core.NewTriangle(
			c.Vertices[0], c.Vertices[1], c.Vertices[2], c.Normal,
			core.Gray(1, c.Alpha()),
		))

	case parser.WorldObject:
		s.SetWorldObject(c.ID, core.WorldTransform(c.Position, c.Rotation, c.Scale))

	case parser.DynamicObject:
		s.SetDynamicObject(c.ID, core.DynamicTransform(c.Position, c.Diameter, c.Height, c.Rotation))

	case parser.ItemObject:
		s.SetItemObject(c.ID, core.ItemTransform(c.Position))

	case parser.Mario:
		s.Mario = core.MarioTransform(c.Position, c.Rotation)

	case parser.Camera:
		s.SetCamera(c.SidePan, c.Position, c.Target, c.Yaw)

	case parser.Ignored:
	}
	return nil
}
