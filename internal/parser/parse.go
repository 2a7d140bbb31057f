package parser

import (
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Parse decodes one record. It never fails: missing or malformed
// numeric fields are zero, and blank records or unknown opcodes come
// back as Ignored.
func Parse(record string) Command {
	record = strings.TrimSuffix(record, "\r")
	if record == "" {
		return Ignored{}
	}

	c := NewCursor(record[1:])
	switch op := record[0]; op {
	case OpEndFrame:
		frame := c.Int(10)
		return EndFrame{Frame: frame, UserAgent: strings.TrimLeft(c.Rest(), " \t")}

	case OpTriangle:
		id := c.Int(16)
		var coords [4]mgl32.Vec3
		for i := range coords {
			coords[i] = vec3(c)
		}
		return Triangle{
			ZoneID:   id,
			Vertices: [3]mgl32.Vec3{coords[0], coords[1], coords[2]},
			Normal:   coords[3],
			Active:   c.Int(10),
		}

	case OpWorldObject:
		id := c.Int(16)
		return WorldObject{ID: id, Position: vec3(c), Rotation: vec3(c), Scale: vec3(c)}

	case OpDynamicObject:
		id := c.Int(16)
		pos := vec3(c)
		f := c.Floats(3)
		return DynamicObject{ID: id, Position: pos, Diameter: f[0], Height: f[1], Rotation: f[2]}

	case OpItemObject:
		id := c.Int(16)
		return ItemObject{ID: id, Position: vec3(c)}

	case OpMario:
		pos := vec3(c)
		return Mario{Position: pos, Rotation: c.Float()}

	case OpCamera:
		sidePan := c.Float()
		pos := vec3(c)
		target := vec3(c)
		return Camera{SidePan: sidePan, Position: pos, Target: target, Yaw: c.Float()}

	default:
		return Ignored{Op: op}
	}
}

func vec3(c *Cursor) mgl32.Vec3 {
	return mgl32.Vec3{c.Float(), c.Float(), c.Float()}
}
