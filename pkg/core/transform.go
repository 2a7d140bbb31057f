// pkg/core/transform.go
package core

import "github.com/go-gl/mathgl/mgl32"

// Fixed mesh scales for the player avatar and pickup items.
var (
	MarioScale = mgl32.Vec3{13, 18.5, 13}
	ItemScale  = mgl32.Vec3{6.75, 27, 6.75}
)

var yAxis = mgl32.Vec3{0, 1, 0}

// DynamicTransform places a cylindrical actor of the given diameter and
// height, rotated about the vertical axis by rotation degrees.
func DynamicTransform(pos mgl32.Vec3, diameter, height, rotation float32) mgl32.Mat4 {
	return cylinder(pos, rotation, mgl32.Vec3{diameter / 2, height, diameter / 2})
}

// MarioTransform is DynamicTransform with the avatar's fixed scale.
func MarioTransform(pos mgl32.Vec3, rotation float32) mgl32.Mat4 {
	return cylinder(pos, rotation, MarioScale)
}

func cylinder(pos mgl32.Vec3, rotation float32, scale mgl32.Vec3) mgl32.Mat4 {
	return mgl32.Translate3D(pos.X(), pos.Y(), pos.Z()).
		Mul4(mgl32.HomogRotate3D(mgl32.DegToRad(rotation), yAxis)).
		Mul4(mgl32.Scale3D(scale.X(), scale.Y(), scale.Z()))
}

// ItemTransform places a pickup item. Items are never rotated.
func ItemTransform(pos mgl32.Vec3) mgl32.Mat4 {
	return mgl32.Translate3D(pos.X(), pos.Y(), pos.Z()).
		Mul4(mgl32.Scale3D(ItemScale.X(), ItemScale.Y(), ItemScale.Z()))
}

// WorldTransform places a static box. Rotations are in degrees and are
// applied yaw first, then pitch, then roll.
func WorldTransform(pos, rotation, size mgl32.Vec3) mgl32.Mat4 {
	return mgl32.Translate3D(pos.X(), pos.Y(), pos.Z()).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(rotation.Y()))).
		Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(rotation.X()))).
		Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(rotation.Z()))).
		Mul4(mgl32.Scale3D(size.X(), size.Y(), size.Z()))
}

// Origin returns the translation part of m.
func Origin(m mgl32.Mat4) mgl32.Vec3 {
	return m.Col(3).Vec3()
}

// IsNull reports whether m was never initialised. World objects default
// to the zero matrix, so a zero homogeneous w marks them as missing.
func IsNull(m mgl32.Mat4) bool {
	return m.At(3, 3) == 0
}
