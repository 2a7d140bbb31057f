package streaming

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/eldstar/server/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFramePayload(t *testing.T) {
	s := core.NewSnapshot(4)
	s.SetItemObject(2, core.ItemTransform(mgl32.Vec3{1, 0, 0}))
	s.SetDynamicObject(9, core.DynamicTransform(mgl32.Vec3{}, 1, 1, 0))
	s.SetDynamicObject(3, core.DynamicTransform(mgl32.Vec3{}, 1, 1, 0))
	s.SetCamera(0, mgl32.Vec3{0, 1, 2}, mgl32.Vec3{}, 10)
	s.Commit(5, "emu", time.Now())

	p := NewFramePayload(s)
	assert.Equal(t, uint64(4), p.Session)
	assert.Equal(t, int64(5), p.Frame)
	assert.Equal(t, mgl32.Vec3{0, 1, 2}, p.CameraPosition)

	require.Len(t, p.Objects, 3)
	assert.Equal(t, ObjectPayload{Kind: KindDynamic, ID: 3, Matrix: s.DynamicObjects[3]}, p.Objects[0])
	assert.Equal(t, int64(9), p.Objects[1].ID)
	assert.Equal(t, KindItem, p.Objects[2].Kind)
}

func TestFramePayloadJSON(t *testing.T) {
	s := core.NewSnapshot(1)
	s.Commit(2, "emu", time.Now())

	data, err := json.Marshal(NewFramePayload(s))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	// Stats fields are promoted to the top level
	assert.Equal(t, "emu - Frame 2", decoded["description"])
	assert.Equal(t, float64(2), decoded["frame"])
	assert.Len(t, decoded["mario"], 16)
	assert.Equal(t, []any{}, decoded["objects"])
}

func TestSessionPayloadOmitsOpenEnd(t *testing.T) {
	data, err := json.Marshal(NewSessionPayload(&core.Session{ID: 1, StartedAt: time.Unix(0, 0).UTC()}))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "endedAt")
}

func TestNewFramePayload_NonFinite(t *testing.T) {
	nan := float32(math.NaN())
	s := core.NewSnapshot(1)
	s.SetCamera(nan, mgl32.Vec3{nan, 0, 0}, mgl32.Vec3{0, float32(math.Inf(1)), 0}, nan)
	s.SetDynamicObject(1, core.DynamicTransform(mgl32.Vec3{float32(math.Inf(-1)), 0, 0}, 10, 10, 0))
	s.Commit(7, "emu", time.Unix(100, 0))

	data, err := json.Marshal(NewFramePayload(s))
	require.NoError(t, err)

	var p FramePayload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, mgl32.Vec3{}, p.CameraPosition)
	assert.Equal(t, mgl32.Vec3{}, p.CameraTarget)
	require.Len(t, p.Objects, 1)
	assert.Equal(t, float32(0), p.Objects[0].Matrix[12])
}
