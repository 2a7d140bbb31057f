// pkg/core/snapshot.go
package core

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// Snapshot is one complete frame of remote scene state. It is mutated
// only before Commit; afterwards it is handed off and treated as
// read-only by every reader.
type Snapshot struct {
	Session     uint64
	Frame       int64
	UserAgent   string
	Description string
	CommittedAt time.Time

	Zones          map[int64]*Zone
	DynamicObjects map[int64]mgl32.Mat4
	ItemObjects    map[int64]mgl32.Mat4
	WorldObjects   map[int64]mgl32.Mat4
	Mario          mgl32.Mat4

	CameraSidePan  float32
	CameraPosition mgl32.Vec3
	CameraTarget   mgl32.Vec3
	CameraYaw      float32
}

// NewSnapshot returns an empty snapshot ready to receive scene commands.
func NewSnapshot(session uint64) *Snapshot {
	return &Snapshot{
		Session:        session,
		Zones:          make(map[int64]*Zone),
		DynamicObjects: make(map[int64]mgl32.Mat4),
		ItemObjects:    make(map[int64]mgl32.Mat4),
		WorldObjects:   make(map[int64]mgl32.Mat4),
		Mario:          mgl32.Ident4(),
	}
}

// AddTriangle appends t to zone id, creating the zone on first use.
func (s *Snapshot) AddTriangle(id int64, t Triangle) {
	z, ok := s.Zones[id]
	if !ok {
		z = &Zone{ID: id}
		s.Zones[id] = z
	}
	z.Add(t)
}

// SetDynamicObject inserts or replaces the dynamic object at id.
func (s *Snapshot) SetDynamicObject(id int64, m mgl32.Mat4) { s.DynamicObjects[id] = m }

// SetItemObject inserts or replaces the item object at id.
func (s *Snapshot) SetItemObject(id int64, m mgl32.Mat4) { s.ItemObjects[id] = m }

// SetWorldObject inserts or replaces the world object at id.
func (s *Snapshot) SetWorldObject(id int64, m mgl32.Mat4) { s.WorldObjects[id] = m }

// SetCamera overwrites the remote camera state.
func (s *Snapshot) SetCamera(sidePan float32, position, target mgl32.Vec3, yaw float32) {
	s.CameraSidePan = sidePan
	s.CameraPosition = position
	s.CameraTarget = target
	s.CameraYaw = yaw
}

// Commit stamps the frame metadata. After Commit the snapshot must not
// be mutated again.
func (s *Snapshot) Commit(frame int64, userAgent string, now time.Time) {
	s.Frame = frame
	s.UserAgent = userAgent
	s.Description = fmt.Sprintf("%s - Frame %d", userAgent, frame)
	s.CommittedAt = now
}

// TriangleCount returns the number of triangles across all zones.
func (s *Snapshot) TriangleCount() int {
	n := 0
	for _, z := range s.Zones {
		n += len(z.Triangles)
	}
	return n
}

// CameraViewMatrix returns the view matrix of the remote game camera.
func (s *Snapshot) CameraViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(s.CameraPosition, s.CameraTarget, yAxis).
		Mul4(mgl32.Translate3D(-s.CameraSidePan, 0, 0))
}

// Stats is a compact summary of a snapshot.
type Stats struct {
	Session        uint64 `json:"session"`
	Frame          int64  `json:"frame"`
	Description    string `json:"description"`
	Zones          int    `json:"zones"`
	Triangles      int    `json:"triangles"`
	DynamicObjects int    `json:"dynamicObjects"`
	ItemObjects    int    `json:"itemObjects"`
	WorldObjects   int    `json:"worldObjects"`
}

// Stats summarises the snapshot contents.
func (s *Snapshot) Stats() Stats {
	return Stats{
		Session:        s.Session,
		Frame:          s.Frame,
		Description:    s.Description,
		Zones:          len(s.Zones),
		Triangles:      s.TriangleCount(),
		DynamicObjects: len(s.DynamicObjects),
		ItemObjects:    len(s.ItemObjects),
		WorldObjects:   len(s.WorldObjects),
	}
}
