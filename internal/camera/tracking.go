package camera

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eldstar/server/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Kind selects which collection a tracking target lives in.
type Kind int

const (
	KindNone Kind = iota
	KindMario
	KindDynamic
	KindItem
	KindWorld
)

var kindNames = map[Kind]string{
	KindNone:    "none",
	KindMario:   "mario",
	KindDynamic: "dynamic",
	KindItem:    "item",
	KindWorld:   "world",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Target identifies an object to keep the camera locked on. Ids are
// looked up again in every snapshot.
type Target struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

// Active reports whether the target tracks anything.
func (t Target) Active() bool {
	return t.Kind != KindNone
}

func (t Target) String() string {
	switch t.Kind {
	case KindNone, KindMario:
		return t.Kind.String()
	}
	return fmt.Sprintf("%s:%x", t.Kind, t.ID)
}

// ParseTarget reads a target written as "none", "mario" or
// "<dynamic|item|world>:<hex id>".
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	name, id, hasID := strings.Cut(s, ":")

	var t Target
	switch name {
	case "", "none":
		return t, nil
	case "mario":
		t.Kind = KindMario
		return t, nil
	case "dynamic":
		t.Kind = KindDynamic
	case "item":
		t.Kind = KindItem
	case "world":
		t.Kind = KindWorld
	default:
		return t, fmt.Errorf("unknown tracking kind %q", name)
	}

	if !hasID {
		return Target{}, fmt.Errorf("tracking target %q needs an id", s)
	}
	v, err := strconv.ParseInt(strings.TrimPrefix(id, "0x"), 16, 64)
	if err != nil {
		return Target{}, fmt.Errorf("invalid tracking id %q: %w", id, err)
	}
	t.ID = v
	return t, nil
}

// Track moves cam so its target sits on the tracked object while
// keeping the position offset. It returns false and leaves cam alone
// when the target is inactive, missing from snap, or uninitialised.
func Track(cam *Camera, snap *core.Snapshot, t Target) bool {
	if snap == nil {
		return false
	}

	var (
		m  mgl32.Mat4
		ok bool
	)
	switch t.Kind {
	case KindMario:
		m, ok = snap.Mario, true
	case KindDynamic:
		m, ok = snap.DynamicObjects[t.ID]
	case KindItem:
		m, ok = snap.ItemObjects[t.ID]
	case KindWorld:
		m, ok = snap.WorldObjects[t.ID]
	}
	if !ok || core.IsNull(m) {
		return false
	}

	delta := cam.Position.Sub(cam.Target)
	cam.Target = core.Origin(m)
	cam.Position = cam.Target.Add(delta)
	return true
}
