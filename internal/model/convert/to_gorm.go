// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/eldstar/server/internal/model"
	"github.com/eldstar/server/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// vec3ToPoint converts a scene position to a POINT Z. The scene is Y-up,
// so the scene Z axis goes to Y and height goes to Z.
func vec3ToPoint(v mgl32.Vec3) (geom.Point, error) {
	v = core.FiniteVec3(v)
	coords := geom.Coordinates{
		XY:   geom.XY{X: float64(v.X()), Y: float64(v.Z())},
		Z:    float64(v.Y()),
		Type: geom.DimXYZ,
	}
	return geom.NewPoint(coords)
}

// triangleToPolygon converts a triangle to a closed single-ring polygon.
// Zone meshes are 3D surfaces: walls collapse to a line and bare "g"
// records to a point once projected on XY, so the 2D ring checks are
// skipped. The rows are stored, never used for geometric calculations.
func triangleToPolygon(t core.Triangle) (geom.Polygon, error) {
	coords := make([]float64, 0, 12)
	for _, v := range append(t.Vertices[:], t.Vertices[0]) {
		v = core.FiniteVec3(v)
		coords = append(coords, float64(v.X()), float64(v.Z()), float64(v.Y()))
	}
	ring, err := geom.NewLineString(geom.NewSequence(coords, geom.DimXYZ), geom.DisableAllValidations)
	if err != nil {
		return geom.Polygon{}, err
	}
	return geom.NewPolygon([]geom.LineString{ring}, geom.DisableAllValidations)
}

// matrixToJSON stores a transform as its 16 column-major floats
func matrixToJSON(m mgl32.Mat4) datatypes.JSON {
	m = core.FiniteMat4(m)
	data, _ := json.Marshal(m[:])
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to a GORM model.Session.
// The database assigns ID; core Session.ID maps to Number.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		Number:     s.ID,
		RemoteAddr: s.RemoteAddr,
		UserAgent:  s.UserAgent,
		StartedAt:  s.StartedAt,
		EndedAt:    nullTime(s.EndedAt),
		Frames:     s.Frames,
	}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// CoreToZoneMesh converts a zone to a mesh row. FrameID is left for the writer.
func CoreToZoneMesh(z *core.Zone) (model.ZoneMesh, error) {
	polys := make([]geom.Polygon, 0, len(z.Triangles))
	for i, t := range z.Triangles {
		poly, err := triangleToPolygon(t)
		if err != nil {
			return model.ZoneMesh{}, fmt.Errorf("zone %#x triangle %d: %w", z.ID, i, err)
		}
		polys = append(polys, poly)
	}
	// triangles of one surface share edges and may overlap on XY
	mp, err := geom.NewMultiPolygon(polys, geom.DisableAllValidations)
	if err != nil {
		return model.ZoneMesh{}, fmt.Errorf("zone %#x: %w", z.ID, err)
	}
	return model.ZoneMesh{
		ZoneID:    z.ID,
		Triangles: len(z.Triangles),
		Geometry:  model.MeshGeometry{Geometry: mp.AsGeometry()},
	}, nil
}

// CoreToObjectTransform converts one placed object to a transform row
func CoreToObjectTransform(kind string, id int64, m mgl32.Mat4) (model.ObjectTransform, error) {
	pos, err := vec3ToPoint(core.Origin(m))
	if err != nil {
		return model.ObjectTransform{}, fmt.Errorf("%s %#x position: %w", kind, id, err)
	}
	return model.ObjectTransform{
		Kind:     kind,
		ObjectID: id,
		Position: pos,
		Matrix:   matrixToJSON(m),
	}, nil
}

// CoreToFrame converts a committed snapshot to a GORM model.Frame with its
// meshes and transforms attached. Rows are ordered by id so repeated
// conversions of the same snapshot produce identical output.
func CoreToFrame(s *core.Snapshot) (model.Frame, error) {
	stats := s.Stats()
	f := model.Frame{
		Frame:          s.Frame,
		CommittedAt:    s.CommittedAt,
		Description:    s.Description,
		CameraSidePan:  core.Finite(s.CameraSidePan),
		CameraYaw:      core.Finite(s.CameraYaw),
		Zones:          stats.Zones,
		Triangles:      stats.Triangles,
		DynamicObjects: stats.DynamicObjects,
		ItemObjects:    stats.ItemObjects,
		WorldObjects:   stats.WorldObjects,
	}

	var err error
	if f.CameraPosition, err = vec3ToPoint(s.CameraPosition); err != nil {
		return model.Frame{}, fmt.Errorf("camera position: %w", err)
	}
	if f.CameraTarget, err = vec3ToPoint(s.CameraTarget); err != nil {
		return model.Frame{}, fmt.Errorf("camera target: %w", err)
	}
	if f.Mario, err = vec3ToPoint(core.Origin(s.Mario)); err != nil {
		return model.Frame{}, fmt.Errorf("mario: %w", err)
	}

	for _, id := range sortedKeys(s.Zones) {
		mesh, err := CoreToZoneMesh(s.Zones[id])
		if err != nil {
			return model.Frame{}, err
		}
		f.Meshes = append(f.Meshes, mesh)
	}

	mario, err := CoreToObjectTransform(model.KindMario, 0, s.Mario)
	if err != nil {
		return model.Frame{}, err
	}
	f.Transforms = append(f.Transforms, mario)
	for _, group := range []struct {
		kind    string
		objects map[int64]mgl32.Mat4
	}{
		{model.KindDynamic, s.DynamicObjects},
		{model.KindItem, s.ItemObjects},
		{model.KindWorld, s.WorldObjects},
	} {
		for _, id := range sortedKeys(group.objects) {
			tr, err := CoreToObjectTransform(group.kind, id, group.objects[id])
			if err != nil {
				return model.Frame{}, err
			}
			f.Transforms = append(f.Transforms, tr)
		}
	}
	return f, nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
