// internal/storage/memory/export_test.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eldstar/server/internal/config"
	"github.com/eldstar/server/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unknown"},
		{"emu", "emu"},
		{"Dolphin 5.0", "Dolphin_5.0"},
		{"a:b/c\\d", "a_b_c_d"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, sanitizeName(tt.input), tt.input)
	}
}

func recordSession(t *testing.T, b *Backend, frames int) *core.Session {
	t.Helper()
	sess := &core.Session{
		ID:         3,
		RemoteAddr: "127.0.0.1:9000",
		StartedAt:  time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	}
	require.NoError(t, b.StartSession(sess))
	for i := 0; i < frames; i++ {
		require.NoError(t, b.RecordSnapshot(testSnapshot(int64(i))))
	}
	sess.UserAgent = "Dolphin 5.0"
	sess.Frames = uint(frames)
	sess.EndedAt = sess.StartedAt.Add(90 * time.Second)
	require.NoError(t, b.EndSession(sess))
	return sess
}

func TestExportJSON_Uncompressed(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	recordSession(t, b, 3)

	path := b.GetExportedFilePath()
	assert.Equal(t, filepath.Join(dir, "session3_Dolphin_5.0_20260115_103000.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var export SessionExport
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, uint64(3), export.Session)
	assert.Equal(t, "Dolphin 5.0", export.UserAgent)
	assert.Equal(t, "127.0.0.1:9000", export.RemoteAddr)
	require.Len(t, export.Frames, 3)
	assert.Equal(t, int64(2), export.Frames[2].Frame)
	assert.Equal(t, testSnapshot(0).DynamicObjects[3], export.Frames[0].Dynamic[1].Matrix)

	meta := b.GetExportMetadata()
	assert.Equal(t, uint64(3), meta.Session)
	assert.Equal(t, 3, meta.Frames)
	assert.Equal(t, 90*time.Second, meta.Duration)

	// the session is finished; new frames need a new session
	assert.ErrorIs(t, b.RecordSnapshot(testSnapshot(9)), ErrNoSession)
}

func TestExportJSON_Gzip(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	recordSession(t, b, 1)

	path := b.GetExportedFilePath()
	require.True(t, strings.HasSuffix(path, ".json.gz"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var export SessionExport
	require.NoError(t, json.NewDecoder(gz).Decode(&export))
	require.Len(t, export.Frames, 1)
	assert.Equal(t, "emu - Frame 0", export.Frames[0].Description)
}

func TestExportJSON_EmptySession(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	recordSession(t, b, 0)

	data, err := os.ReadFile(b.GetExportedFilePath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"frames":[]`)
}

func TestClose_ExportsOpenSession(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	require.NoError(t, b.StartSession(&core.Session{ID: 1, StartedAt: time.Now()}))
	require.NoError(t, b.RecordSnapshot(testSnapshot(0)))
	require.NoError(t, b.Close())

	assert.NotEmpty(t, b.GetExportedFilePath())
	_, err := os.Stat(b.GetExportedFilePath())
	assert.NoError(t, err)
}

func TestExportJSON_NonFiniteValues(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})

	nan := float32(math.NaN())
	sess := &core.Session{ID: 4, StartedAt: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)}
	require.NoError(t, b.StartSession(sess))

	snap := core.NewSnapshot(4)
	snap.SetCamera(nan, mgl32.Vec3{nan, 0, 0}, mgl32.Vec3{}, 0)
	snap.SetDynamicObject(1, core.DynamicTransform(mgl32.Vec3{float32(math.Inf(1)), 0, 0}, 10, 10, 0))
	snap.AddTriangle(2, core.NewTriangle(mgl32.Vec3{nan, 0, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{}, core.Gray(1, 1)))
	snap.Commit(7, "emu", time.Now())
	require.NoError(t, b.RecordSnapshot(snap))
	require.NoError(t, b.RecordSnapshot(testSnapshot(8)))

	sess.EndedAt = sess.StartedAt.Add(time.Second)
	require.NoError(t, b.EndSession(sess))

	data, err := os.ReadFile(b.GetExportedFilePath())
	require.NoError(t, err)
	var export SessionExport
	require.NoError(t, json.Unmarshal(data, &export))
	require.Len(t, export.Frames, 2, "the whole session is exported")
	assert.Equal(t, float32(0), export.Frames[0].Camera.SidePan)
	assert.Equal(t, float32(0), export.Frames[0].Dynamic[0].Matrix[12])
}
