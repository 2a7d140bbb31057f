// Package camera holds the consumer's free camera: tracking a scene
// object, mirroring the remote game camera, and publishing the result
// back to the ingest side.
package camera

import (
	"sync/atomic"

	"github.com/eldstar/server/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a look-at camera.
type Camera struct {
	Position mgl32.Vec3 `json:"position"`
	Target   mgl32.Vec3 `json:"target"`
}

// Default returns the initial overview camera.
func Default() Camera {
	return Camera{Position: mgl32.Vec3{0, 650, 1125}}
}

// Mirror derives a free camera equivalent to the remote game camera of
// snap.
func Mirror(snap *core.Snapshot) Camera {
	inv := snap.CameraViewMatrix().Inv()
	dist := snap.CameraPosition.Sub(snap.CameraTarget).Len()
	return Camera{
		Position: inv.Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3(),
		Target:   inv.Mul4x1(mgl32.Vec4{0, 0, -dist, 1}).Vec3(),
	}
}

// Patchback is a single-value slot the consumer overwrites every tick
// with its free camera. Any goroutine may read it without blocking.
type Patchback struct {
	p atomic.Pointer[Camera]
}

// Store publishes the camera.
func (p *Patchback) Store(c Camera) {
	p.p.Store(&c)
}

// Load returns the last published camera. ok is false until the first
// Store.
func (p *Patchback) Load() (Camera, bool) {
	c := p.p.Load()
	if c == nil {
		return Camera{}, false
	}
	return *c, true
}
