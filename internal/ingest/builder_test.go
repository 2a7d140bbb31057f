package ingest

import (
	"testing"
	"time"

	"github.com/eldstar/server/internal/parser"
	"github.com/eldstar/server/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apply(b *Builder, records ...string) []*core.Snapshot {
	var out []*core.Snapshot
	for _, r := range records {
		if s := b.Apply(parser.Parse(r)); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func TestBuilder_ZoneAccumulation(t *testing.T) {
	b := NewBuilder(1)
	snaps := apply(b,
		"g2a 0 0 0 1 0 0 0 0 1 0 0 0 1",
		"g2a 1 0 0 2 0 0 1 0 1 0 0 0 1",
		"g2a 2 0 0 3 0 0 2 0 1 0 0 0 0",
		"e1 agent",
	)
	require.Len(t, snaps, 1)

	zone := snaps[0].Zones[0x2a]
	require.NotNil(t, zone)
	require.Len(t, zone.Triangles, 3)
	for i, tri := range zone.Triangles {
		assert.Equal(t, float32(i), tri.Vertices[0].X())
		assert.True(t, tri.Normal.ApproxEqual(mgl32.Vec3{0, -1, 0}))
	}
	assert.Equal(t, parser.ActiveAlpha, zone.Triangles[0].Color.A)
	assert.Equal(t, parser.InactiveAlpha, zone.Triangles[2].Color.A)
	assert.Equal(t, float32(1), zone.Triangles[0].Color.R)
}

func TestBuilder_IDOverwrite(t *testing.T) {
	b := NewBuilder(1)
	snaps := apply(b,
		"d5 1 1 1 10 10 0",
		"d5 2 2 2 10 10 0",
		"i5 3 3 3",
		"i5 4 4 4",
		"w5 5 5 5 0 0 0 1 1 1",
		"w5 6 6 6 0 0 0 1 1 1",
		"e1",
	)
	require.Len(t, snaps, 1)
	s := snaps[0]

	require.Len(t, s.DynamicObjects, 1)
	require.Len(t, s.ItemObjects, 1)
	require.Len(t, s.WorldObjects, 1)
	assert.Equal(t, mgl32.Vec3{2, 2, 2}, core.Origin(s.DynamicObjects[5]))
	assert.Equal(t, mgl32.Vec3{4, 4, 4}, core.Origin(s.ItemObjects[5]))
	assert.Equal(t, mgl32.Vec3{6, 6, 6}, core.Origin(s.WorldObjects[5]))
}

func TestBuilder_PermissiveTriangle(t *testing.T) {
	b := NewBuilder(1)
	snaps := apply(b, "g", "e0")
	require.Len(t, snaps, 1)

	zone := snaps[0].Zones[0]
	require.NotNil(t, zone)
	require.Len(t, zone.Triangles, 1)
	tri := zone.Triangles[0]
	assert.Equal(t, [3]mgl32.Vec3{}, tri.Vertices)
	assert.Equal(t, mgl32.Vec3{}, tri.Normal)
}

func TestBuilder_MarioAndCamera(t *testing.T) {
	b := NewBuilder(1)
	snaps := apply(b, "m10 20 30 0", "c2 0 100 -50 0 0 0 90", "e3 agent")
	require.Len(t, snaps, 1)
	s := snaps[0]

	assert.Equal(t, mgl32.Vec3{10, 20, 30}, core.Origin(s.Mario))
	assert.Equal(t, float32(18.5), s.Mario.At(1, 1))
	assert.Equal(t, float32(2), s.CameraSidePan)
	assert.Equal(t, mgl32.Vec3{0, 100, -50}, s.CameraPosition)
	assert.Equal(t, float32(90), s.CameraYaw)
}

func TestBuilder_CommitAtomicity(t *testing.T) {
	b := NewBuilder(9)
	fixed := time.Unix(1000, 0)
	b.now = func() time.Time { return fixed }

	snaps := apply(b, "d1 1 1 1 1 1 0", "e1 agent")
	require.Len(t, snaps, 1)
	first := snaps[0]

	// Commands after the commit land in a new scene.
	more := apply(b, "d2 1 1 1 1 1 0", "g7", "c1 1 1 1 1 1 1 1", "e2 agent")
	require.Len(t, more, 1)

	assert.Len(t, first.DynamicObjects, 1)
	assert.Empty(t, first.Zones)
	assert.Equal(t, float32(0), first.CameraSidePan)
	assert.Equal(t, int64(1), first.Frame)
	assert.Equal(t, "agent - Frame 1", first.Description)
	assert.Equal(t, fixed, first.CommittedAt)
	assert.Equal(t, uint64(9), first.Session)

	second := more[0]
	assert.NotSame(t, first, second)
	assert.Len(t, second.DynamicObjects, 1)
	assert.Contains(t, second.DynamicObjects, int64(2))
	assert.Equal(t, int64(2), second.Frame)
}

func TestBuilder_IgnoredRecords(t *testing.T) {
	b := NewBuilder(1)
	snaps := apply(b, "", "x1 2 3", "?", "e1")
	require.Len(t, snaps, 1)
	assert.Empty(t, snaps[0].Zones)
	assert.Empty(t, snaps[0].DynamicObjects)
}
