package convert

import (
	"encoding/json"

	"github.com/eldstar/server/internal/model"
	"github.com/eldstar/server/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
	geom "github.com/peterstace/simplefeatures/geom"
)

// pointToVec3 converts a POINT Z back to a Y-up scene position
func pointToVec3(p geom.Point) mgl32.Vec3 {
	coord, ok := p.Coordinates()
	if !ok {
		return mgl32.Vec3{}
	}
	return mgl32.Vec3{float32(coord.XY.X), float32(coord.Z), float32(coord.XY.Y)}
}

// jsonToMatrix decodes a stored transform. Malformed data yields the null matrix.
func jsonToMatrix(data []byte) mgl32.Mat4 {
	var vals []float32
	if err := json.Unmarshal(data, &vals); err != nil || len(vals) != 16 {
		return mgl32.Mat4{}
	}
	var m mgl32.Mat4
	copy(m[:], vals)
	return m
}

// SessionToCore converts a GORM Session to a core.Session.
// GORM Session.Number maps to core Session.ID.
func SessionToCore(s model.Session) core.Session {
	out := core.Session{
		ID:         s.Number,
		RemoteAddr: s.RemoteAddr,
		UserAgent:  s.UserAgent,
		StartedAt:  s.StartedAt,
		Frames:     s.Frames,
	}
	if s.EndedAt.Valid {
		out.EndedAt = s.EndedAt.Time
	}
	return out
}

// FrameToStats converts a stored frame to the snapshot summary
func FrameToStats(f model.Frame, session uint64) core.Stats {
	return core.Stats{
		Session:        session,
		Frame:          f.Frame,
		Description:    f.Description,
		Zones:          f.Zones,
		Triangles:      f.Triangles,
		DynamicObjects: f.DynamicObjects,
		ItemObjects:    f.ItemObjects,
		WorldObjects:   f.WorldObjects,
	}
}

// FrameToCore rebuilds a snapshot from a stored frame and its transforms.
// Zone meshes are not restored.
func FrameToCore(f model.Frame, session uint64) *core.Snapshot {
	s := core.NewSnapshot(session)
	s.Frame = f.Frame
	s.Description = f.Description
	s.CommittedAt = f.CommittedAt
	s.SetCamera(f.CameraSidePan, pointToVec3(f.CameraPosition), pointToVec3(f.CameraTarget), f.CameraYaw)

	for _, t := range f.Transforms {
		m := jsonToMatrix(t.Matrix)
		switch t.Kind {
		case model.KindMario:
			s.Mario = m
		case model.KindDynamic:
			s.SetDynamicObject(t.ObjectID, m)
		case model.KindItem:
			s.SetItemObject(t.ObjectID, m)
		case model.KindWorld:
			s.SetWorldObject(t.ObjectID, m)
		}
	}
	return s
}
