package parser

import "github.com/go-gl/mathgl/mgl32"

// Opcodes of the scene protocol. Each record starts with one of these.
const (
	OpEndFrame      byte = 'e'
	OpTriangle      byte = 'g'
	OpWorldObject   byte = 'w'
	OpDynamicObject byte = 'd'
	OpItemObject    byte = 'i'
	OpMario         byte = 'm'
	OpCamera        byte = 'c'
)

// Triangle opacity for active and inactive collision surfaces.
const (
	ActiveAlpha   float32 = 0.9
	InactiveAlpha float32 = 0.25
)

// Command is one parsed protocol record. The set of implementations is
// closed; consumers switch on the concrete type.
type Command interface {
	Opcode() byte
	command()
}

// EndFrame commits the scene under construction.
type EndFrame struct {
	Frame     int64
	UserAgent string
}

// Triangle appends one face to a zone.
type Triangle struct {
	ZoneID   int64
	Vertices [3]mgl32.Vec3
	// Normal is the producer-supplied normal, used when the vertices
	// are degenerate.
	Normal mgl32.Vec3
	Active int64
}

// Alpha returns the opacity the triangle is drawn with.
func (t Triangle) Alpha() float32 {
	if t.Active == 1 {
		return ActiveAlpha
	}
	return InactiveAlpha
}

// WorldObject places a static box. Rotation is in degrees per axis.
type WorldObject struct {
	ID       int64
	Position mgl32.Vec3
	Rotation mgl32.Vec3
	Scale    mgl32.Vec3
}

// DynamicObject places a cylindrical actor.
type DynamicObject struct {
	ID       int64
	Position mgl32.Vec3
	Diameter float32
	Height   float32
	Rotation float32
}

// ItemObject places a pickup item.
type ItemObject struct {
	ID       int64
	Position mgl32.Vec3
}

// Mario places the player avatar.
type Mario struct {
	Position mgl32.Vec3
	Rotation float32
}

// Camera carries the remote camera state.
type Camera struct {
	SidePan  float32
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Yaw      float32
}

// Ignored is a blank record or one with an unknown opcode.
type Ignored struct {
	Op byte
}

func (EndFrame) Opcode() byte      { return OpEndFrame }
func (Triangle) Opcode() byte      { return OpTriangle }
func (WorldObject) Opcode() byte   { return OpWorldObject }
func (DynamicObject) Opcode() byte { return OpDynamicObject }
func (ItemObject) Opcode() byte    { return OpItemObject }
func (Mario) Opcode() byte         { return OpMario }
func (Camera) Opcode() byte        { return OpCamera }
func (i Ignored) Opcode() byte     { return i.Op }

func (EndFrame) command()      {}
func (Triangle) command()      {}
func (WorldObject) command()   {}
func (DynamicObject) command() {}
func (ItemObject) command()    {}
func (Mario) command()         {}
func (Camera) command()        {}
func (Ignored) command()       {}
