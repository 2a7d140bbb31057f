// internal/storage/storage_test.go
package storage_test

import (
	"testing"
	"time"

	"github.com/eldstar/server/internal/storage"
	"github.com/stretchr/testify/assert"
)

func TestExportMetadataFields(t *testing.T) {
	meta := storage.ExportMetadata{
		Session:   3,
		UserAgent: "emu",
		Frames:    120,
		Duration:  2 * time.Second,
	}

	assert.Equal(t, uint64(3), meta.Session)
	assert.Equal(t, "emu", meta.UserAgent)
	assert.Equal(t, 120, meta.Frames)
	assert.Equal(t, 2*time.Second, meta.Duration)
}
