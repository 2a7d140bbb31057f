package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Finite returns f, or 0 when f is NaN or infinite. The parser accepts
// "nan", "inf" and out of range literals, none of which JSON or WKB
// columns can carry.
func Finite(f float32) float32 {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return 0
	}
	return f
}

// FiniteVec3 applies Finite to every component of v.
func FiniteVec3(v mgl32.Vec3) mgl32.Vec3 {
	for i := range v {
		v[i] = Finite(v[i])
	}
	return v
}

// FiniteMat4 applies Finite to every element of m.
func FiniteMat4(m mgl32.Mat4) mgl32.Mat4 {
	for i := range m {
		m[i] = Finite(m[i])
	}
	return m
}
