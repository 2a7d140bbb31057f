package streaming

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/eldstar/server/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeFrame        = "frame"
)

// Object kinds used in FramePayload.
const (
	KindDynamic = "dynamic"
	KindItem    = "item"
	KindWorld   = "world"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// SessionPayload carries the producer session. It is sent on start and
// again, with EndedAt and Frames filled, on end.
type SessionPayload struct {
	ID         uint64    `json:"id"`
	RemoteAddr string    `json:"remoteAddr"`
	UserAgent  string    `json:"userAgent"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt,omitzero"`
	Frames     uint      `json:"frames"`
}

// NewSessionPayload copies s into its wire form.
func NewSessionPayload(s *core.Session) SessionPayload {
	return SessionPayload{
		ID:         s.ID,
		RemoteAddr: s.RemoteAddr,
		UserAgent:  s.UserAgent,
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
		Frames:     s.Frames,
	}
}

// ObjectPayload is one placed object. Matrix is column-major.
type ObjectPayload struct {
	Kind   string     `json:"kind"`
	ID     int64      `json:"id"`
	Matrix mgl32.Mat4 `json:"matrix"`
}

// FramePayload carries the placements of one committed snapshot. Zone
// meshes are summarised by the counts in Stats only.
type FramePayload struct {
	core.Stats
	CommittedAt    time.Time       `json:"committedAt"`
	CameraSidePan  float32         `json:"cameraSidePan"`
	CameraPosition mgl32.Vec3      `json:"cameraPosition"`
	CameraTarget   mgl32.Vec3      `json:"cameraTarget"`
	CameraYaw      float32         `json:"cameraYaw"`
	Mario          mgl32.Mat4      `json:"mario"`
	Objects        []ObjectPayload `json:"objects"`
}

// NewFramePayload builds the wire form of s with objects ordered by kind
// and then id. NaN and infinite values are sent as 0.
func NewFramePayload(s *core.Snapshot) FramePayload {
	p := FramePayload{
		Stats:          s.Stats(),
		CommittedAt:    s.CommittedAt,
		CameraSidePan:  core.Finite(s.CameraSidePan),
		CameraPosition: core.FiniteVec3(s.CameraPosition),
		CameraTarget:   core.FiniteVec3(s.CameraTarget),
		CameraYaw:      core.Finite(s.CameraYaw),
		Mario:          core.FiniteMat4(s.Mario),
		Objects:        make([]ObjectPayload, 0, len(s.DynamicObjects)+len(s.ItemObjects)+len(s.WorldObjects)),
	}
	p.Objects = appendObjects(p.Objects, KindDynamic, s.DynamicObjects)
	p.Objects = appendObjects(p.Objects, KindItem, s.ItemObjects)
	p.Objects = appendObjects(p.Objects, KindWorld, s.WorldObjects)
	return p
}

func appendObjects(dst []ObjectPayload, kind string, objects map[int64]mgl32.Mat4) []ObjectPayload {
	start := len(dst)
	for id, m := range objects {
		dst = append(dst, ObjectPayload{Kind: kind, ID: id, Matrix: core.FiniteMat4(m)})
	}
	added := dst[start:]
	sort.Slice(added, func(i, j int) bool { return added[i].ID < added[j].ID })
	return dst
}
