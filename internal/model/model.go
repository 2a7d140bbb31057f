package model

import (
	"database/sql"
	"fmt"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&ServerInfo{},
	&Session{},
	&Frame{},
	&ZoneMesh{},
	&ObjectTransform{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// ServerInfo identifies the recorder instance that owns the database
type ServerInfo struct {
	gorm.Model
	Name        string `json:"name" gorm:"size:127"`
	Description string `json:"description" gorm:"size:255"`
	Version     string `json:"version" gorm:"size:32"`
}

func (*ServerInfo) TableName() string {
	return "server_infos"
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Session is one producer connection. Number is the per-process session
// counter, which restarts on every server start.
type Session struct {
	ID         uint         `json:"id" gorm:"primarykey;autoIncrement;"`
	Number     uint64       `json:"number" gorm:"index:idx_session_number"`
	RemoteAddr string       `json:"remoteAddr" gorm:"size:64"`
	UserAgent  string       `json:"userAgent" gorm:"size:255"`
	StartedAt  time.Time    `json:"startedAt" gorm:"type:timestamptz;index:idx_session_started_at"`
	EndedAt    sql.NullTime `json:"endedAt" gorm:"type:timestamptz"`
	Frames     uint         `json:"frames"`
}

func (*Session) TableName() string {
	return "sessions"
}

// Frame is one committed snapshot
type Frame struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID   uint      `json:"sessionId" gorm:"index:idx_frame_session_id"`
	Session     Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Frame       int64     `json:"frame" gorm:"index:idx_frame_frame"`
	CommittedAt time.Time `json:"committedAt" gorm:"type:timestamptz;index:idx_frame_committed_at"`
	Description string    `json:"description" gorm:"size:255"`

	CameraSidePan  float32    `json:"cameraSidePan"`
	CameraYaw      float32    `json:"cameraYaw"`
	CameraPosition geom.Point `json:"cameraPosition"` // POINT Z, height on Z
	CameraTarget   geom.Point `json:"cameraTarget"`
	Mario          geom.Point `json:"mario"`

	Zones          int `json:"zones"`
	Triangles      int `json:"triangles"`
	DynamicObjects int `json:"dynamicObjects"`
	ItemObjects    int `json:"itemObjects"`
	WorldObjects   int `json:"worldObjects"`

	// Filled by the writer before insert; not a column
	Meshes     []ZoneMesh        `json:"-" gorm:"-"`
	Transforms []ObjectTransform `json:"-" gorm:"-"`
}

func (*Frame) TableName() string {
	return "frames"
}

// ZoneMesh is the triangle mesh of one zone within a frame
type ZoneMesh struct {
	ID        uint         `json:"id" gorm:"primarykey;autoIncrement;"`
	FrameID   uint         `json:"frameId" gorm:"index:idx_zonemesh_frame_id"`
	Frame     Frame        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:FrameID;"`
	ZoneID    int64        `json:"zoneId" gorm:"index:idx_zonemesh_zone_id"`
	Triangles int          `json:"triangles"`
	Geometry  MeshGeometry `json:"-"` // MULTIPOLYGON Z, one polygon per triangle
}

// MeshGeometry is a zone mesh column. Meshes are 3D surfaces whose
// triangles overlap or collapse once projected on XY, so rows are read
// back without the 2D validity checks.
type MeshGeometry struct {
	geom.Geometry
}

// Scan implements sql.Scanner.
func (g *MeshGeometry) Scan(src any) error {
	var wkb []byte
	switch src := src.(type) {
	case []byte:
		wkb = src
	case string:
		wkb = []byte(src)
	default:
		return fmt.Errorf("unsupported src type in Scan: %T", src)
	}
	out, err := geom.UnmarshalWKB(wkb, geom.DisableAllValidations)
	if err != nil {
		return err
	}
	g.Geometry = out
	return nil
}

func (*ZoneMesh) TableName() string {
	return "zone_meshes"
}

// Object kinds stored in ObjectTransform.Kind
const (
	KindMario   = "mario"
	KindDynamic = "dynamic"
	KindItem    = "item"
	KindWorld   = "world"
)

// ObjectTransform is the placement of one scene object within a frame
type ObjectTransform struct {
	ID       uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	FrameID  uint           `json:"frameId" gorm:"index:idx_objecttransform_frame_id"`
	Frame    Frame          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:FrameID;"`
	Kind     string         `json:"kind" gorm:"size:16;index:idx_objecttransform_kind"`
	ObjectID int64          `json:"objectId" gorm:"index:idx_objecttransform_object_id"`
	Position geom.Point     `json:"position"`
	Matrix   datatypes.JSON `json:"matrix"` // column-major 4x4
}

func (*ObjectTransform) TableName() string {
	return "object_transforms"
}
