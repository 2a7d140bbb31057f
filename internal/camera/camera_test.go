package camera

import (
	"sync"
	"testing"

	"github.com/eldstar/server/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchback(t *testing.T) {
	var p Patchback
	_, ok := p.Load()
	assert.False(t, ok)

	p.Store(Default())
	got, ok := p.Load()
	require.True(t, ok)
	assert.Equal(t, Default(), got)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			p.Store(Camera{Position: mgl32.Vec3{float32(i), 0, 0}})
		}(i)
		go func() {
			defer wg.Done()
			p.Load()
		}()
	}
	wg.Wait()
}

func TestMirror(t *testing.T) {
	snap := core.NewSnapshot(1)
	snap.SetCamera(0, mgl32.Vec3{0, 100, 200}, mgl32.Vec3{0, 100, 0}, 0)

	cam := Mirror(snap)
	assert.True(t, cam.Position.ApproxEqualThreshold(mgl32.Vec3{0, 100, 200}, 1e-3), "%v", cam.Position)
	assert.True(t, cam.Target.ApproxEqualThreshold(mgl32.Vec3{0, 100, 0}, 1e-3), "%v", cam.Target)
}

func TestTrack(t *testing.T) {
	snap := core.NewSnapshot(1)
	snap.Mario = core.MarioTransform(mgl32.Vec3{10, 0, 0}, 0)
	snap.SetDynamicObject(0x1f, core.DynamicTransform(mgl32.Vec3{0, 5, 0}, 2, 2, 0))
	snap.SetItemObject(3, core.ItemTransform(mgl32.Vec3{7, 7, 7}))
	snap.SetWorldObject(4, core.WorldTransform(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}))
	snap.SetWorldObject(5, mgl32.Mat4{})

	tests := []struct {
		name    string
		target  Target
		tracked bool
		want    mgl32.Vec3
	}{
		{"none", Target{}, false, mgl32.Vec3{}},
		{"mario", Target{Kind: KindMario}, true, mgl32.Vec3{10, 0, 0}},
		{"dynamic", Target{Kind: KindDynamic, ID: 0x1f}, true, mgl32.Vec3{0, 5, 0}},
		{"item", Target{Kind: KindItem, ID: 3}, true, mgl32.Vec3{7, 7, 7}},
		{"world", Target{Kind: KindWorld, ID: 4}, true, mgl32.Vec3{1, 2, 3}},
		{"null world object", Target{Kind: KindWorld, ID: 5}, false, mgl32.Vec3{}},
		{"missing id", Target{Kind: KindDynamic, ID: 99}, false, mgl32.Vec3{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := Camera{Position: mgl32.Vec3{0, 10, 10}}
			ok := Track(&cam, snap, tt.target)
			assert.Equal(t, tt.tracked, ok)
			assert.Equal(t, tt.want, cam.Target)
			assert.Equal(t, tt.want.Add(mgl32.Vec3{0, 10, 10}), cam.Position)
		})
	}

	// Missing ids do not create entries.
	assert.Len(t, snap.DynamicObjects, 1)
	assert.False(t, Track(&Camera{}, nil, Target{Kind: KindMario}))
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in      string
		want    Target
		wantErr bool
	}{
		{"", Target{}, false},
		{"none", Target{}, false},
		{"Mario", Target{Kind: KindMario}, false},
		{"dynamic:1f", Target{Kind: KindDynamic, ID: 0x1f}, false},
		{"item:0x10", Target{Kind: KindItem, ID: 0x10}, false},
		{"world:4", Target{Kind: KindWorld, ID: 4}, false},
		{"world", Target{}, true},
		{"dynamic:zz", Target{}, true},
		{"camera:1", Target{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTarget(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "dynamic:1f", Target{Kind: KindDynamic, ID: 0x1f}.String())
	assert.Equal(t, "mario", Target{Kind: KindMario}.String())
}
