// pkg/core/geometry.go
package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Triangle is one face of a zone mesh. All three vertices share the
// same normal and color.
type Triangle struct {
	Vertices [3]mgl32.Vec3
	Normal   mgl32.Vec3
	Color    Color
}

// NewTriangle builds a triangle whose normal is the normalised cross
// product of its edges. When the vertices do not span a plane the
// supplied fallback is used instead, and when that is unusable too the
// normal is left as the zero vector.
func NewTriangle(a, b, c, fallback mgl32.Vec3, color Color) Triangle {
	return Triangle{
		Vertices: [3]mgl32.Vec3{a, b, c},
		Normal:   FaceNormal(a, b, c, fallback),
		Color:    color,
	}
}

// FaceNormal returns the unit normal of the triangle abc.
func FaceNormal(a, b, c, fallback mgl32.Vec3) mgl32.Vec3 {
	if n := b.Sub(a).Cross(c.Sub(a)); usable(n) {
		return n.Normalize()
	}
	if usable(fallback) {
		return fallback.Normalize()
	}
	return mgl32.Vec3{}
}

func usable(v mgl32.Vec3) bool {
	l := float64(v.Len())
	return l > 1e-12 && !math.IsInf(l, 0) && !math.IsNaN(l)
}

// Zone is a named mesh region. Triangles keep their arrival order.
type Zone struct {
	ID        int64
	Triangles []Triangle
}

// Add appends a triangle to the zone.
func (z *Zone) Add(t Triangle) {
	z.Triangles = append(z.Triangles, t)
}

// Bounds returns the axis-aligned bounding box of the zone. An empty
// zone reports ok == false.
func (z *Zone) Bounds() (lo, hi mgl32.Vec3, ok bool) {
	for i, t := range z.Triangles {
		for j, v := range t.Vertices {
			if i == 0 && j == 0 {
				lo, hi = v, v
				continue
			}
			for k := 0; k < 3; k++ {
				lo[k] = min(lo[k], v[k])
				hi[k] = max(hi[k], v[k])
			}
		}
	}
	return lo, hi, len(z.Triangles) > 0
}
