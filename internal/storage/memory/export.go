// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eldstar/server/internal/storage"
	"github.com/eldstar/server/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

// SessionExport is the root JSON structure
type SessionExport struct {
	Session    uint64      `json:"session"`
	RemoteAddr string      `json:"remoteAddr"`
	UserAgent  string      `json:"userAgent"`
	StartedAt  time.Time   `json:"startedAt"`
	EndedAt    time.Time   `json:"endedAt"`
	Frames     []FrameJSON `json:"frames"`
}

// FrameJSON is one committed snapshot. Matrices are column-major.
type FrameJSON struct {
	Frame       int64        `json:"frame"`
	CommittedAt time.Time    `json:"committedAt"`
	Description string       `json:"description"`
	Camera      CameraJSON   `json:"camera"`
	Mario       mgl32.Mat4   `json:"mario"`
	Zones       []ZoneJSON   `json:"zones"`
	Dynamic     []ObjectJSON `json:"dynamic"`
	Items       []ObjectJSON `json:"items"`
	World       []ObjectJSON `json:"world"`
	Triangles   int          `json:"triangles"`
}

// CameraJSON is the producer's game camera
type CameraJSON struct {
	SidePan  float32    `json:"sidePan"`
	Position mgl32.Vec3 `json:"position"`
	Target   mgl32.Vec3 `json:"target"`
	Yaw      float32    `json:"yaw"`
}

// ZoneJSON summarises a zone mesh by its bounding box
type ZoneJSON struct {
	ID        int64      `json:"id"`
	Triangles int        `json:"triangles"`
	Min       mgl32.Vec3 `json:"min"`
	Max       mgl32.Vec3 `json:"max"`
}

// ObjectJSON is one placed object
type ObjectJSON struct {
	ID     int64      `json:"id"`
	Matrix mgl32.Mat4 `json:"matrix"`
}

func (f FrameJSON) stats(session uint64) core.Stats {
	return core.Stats{
		Session:        session,
		Frame:          f.Frame,
		Description:    f.Description,
		Zones:          len(f.Zones),
		Triangles:      f.Triangles,
		DynamicObjects: len(f.Dynamic),
		ItemObjects:    len(f.Items),
		WorldObjects:   len(f.World),
	}
}

// sanitizeName makes a user agent safe for use in a file name
func sanitizeName(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '/', '\\', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}

// exportJSON writes the session data to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	// Build filename
	agent := sanitizeName(b.session.UserAgent)
	timestamp := b.session.StartedAt.Format("20060102_150405")

	filename := fmt.Sprintf("session%d_%s_%s.json", b.session.ID, agent, timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	b.lastExportMeta = storage.ExportMetadata{
		Session:   b.session.ID,
		UserAgent: b.session.UserAgent,
		Frames:    len(b.frames),
	}
	if !b.session.EndedAt.IsZero() {
		b.lastExportMeta.Duration = b.session.EndedAt.Sub(b.session.StartedAt)
	}
	return nil
}

func (b *Backend) buildExport() SessionExport {
	frames := b.frames
	if frames == nil {
		frames = make([]FrameJSON, 0)
	}
	return SessionExport{
		Session:    b.session.ID,
		RemoteAddr: b.session.RemoteAddr,
		UserAgent:  b.session.UserAgent,
		StartedAt:  b.session.StartedAt,
		EndedAt:    b.session.EndedAt,
		Frames:     frames,
	}
}

func writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return gzWriter.Close()
}
