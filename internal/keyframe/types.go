package keyframe

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/text/unicode/norm"
)

// IDUndefined marks an unset object, semantic or rig id.
const IDUndefined = -1

// Key identifies a render instance for its whole lifetime within a
// recording session. Keys are assigned by the recorder and never reused.
type Key int32

// String returns the key in decimal form.
func (k Key) String() string {
	return fmt.Sprintf("%d", int32(k))
}

// Transform is a translation plus a rotation. It is comparable with ==.
type Transform struct {
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
}

// IdentityTransform returns the transform with no translation and no rotation.
func IdentityTransform() Transform {
	return Transform{Rotation: mgl32.QuatIdent()}
}

// Compose returns t applied after parent, i.e. the world transform of a
// child whose local transform is t.
func (t Transform) Compose(parent Transform) Transform {
	return Transform{
		Translation: parent.Rotation.Rotate(t.Translation).Add(parent.Translation),
		Rotation:    parent.Rotation.Mul(t.Rotation),
	}
}

// IsFinite reports whether every component of t is a finite number.
func (t Transform) IsFinite() bool {
	for _, v := range t.Translation {
		if !finite(v) {
			return false
		}
	}
	if !finite(t.Rotation.W) {
		return false
	}
	for _, v := range t.Rotation.V {
		if !finite(v) {
			return false
		}
	}
	return true
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// CheckName validates a user transform or bone name. Names must be
// non-empty and in Unicode NFC, so two names that render alike are also
// equal as strings.
func CheckName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name")
	}
	if !norm.NFC.IsNormalString(name) {
		return fmt.Errorf("name %q is not NFC-normalized", name)
	}
	return nil
}

// InstanceState is the dynamic state of an instance tracked every frame.
type InstanceState struct {
	AbsTransform Transform // localToWorld
}

// InstanceMetadata holds classification ids for an instance. Either id may
// be IDUndefined.
type InstanceMetadata struct {
	ObjectID   int
	SemanticID int
}

// UndefinedMetadata returns metadata with both ids undefined.
func UndefinedMetadata() InstanceMetadata {
	return InstanceMetadata{ObjectID: IDUndefined, SemanticID: IDUndefined}
}

// RigCreation defines a rig topology. BoneNames order is fixed for the
// rig's lifetime and every RigUpdate pose is parallel to it.
type RigCreation struct {
	ID        int
	BoneNames []string
}

// RigUpdate carries a full pose for a rig, one transform per bone.
type RigUpdate struct {
	ID   int
	Pose []Transform
}

// AssetType classifies an asset source.
type AssetType string

const (
	AssetUnknown      AssetType = "unknown"
	AssetMesh         AssetType = "mesh"
	AssetInstanceMesh AssetType = "instance_mesh"
	AssetPrimitive    AssetType = "primitive"
)

// AssetInfo describes a render asset. Filepath is the asset's identity.
type AssetInfo struct {
	Type                AssetType
	Filepath            string
	VirtualUnitToMeters float32
	ForceFlatShading    bool
	SplitInstanceMesh   bool
	ShaderType          string
}

// NewAssetInfo returns an AssetInfo for path with the defaults used when an
// asset is announced without further configuration.
func NewAssetInfo(path string) AssetInfo {
	return AssetInfo{
		Type:                AssetMesh,
		Filepath:            path,
		VirtualUnitToMeters: 1,
		ForceFlatShading:    true,
		SplitInstanceMesh:   true,
	}
}

// CreationFlags are bit flags describing how an instance is drawn.
type CreationFlags uint32

const (
	FlagIsStatic CreationFlags = 1 << iota
	FlagIsRGBD
	FlagIsSemantic
	FlagIsTextureSemantic
)

// Has reports whether every bit in f is set.
func (c CreationFlags) Has(f CreationFlags) bool {
	return c&f == f
}

// CreationInfo is what a player needs to re-create an instance.
type CreationInfo struct {
	Filepath      string
	Scale         *mgl32.Vec3 // nil means unscaled
	Flags         CreationFlags
	LightSetupKey string
	RigID         int // IDUndefined if the instance is not skinned
}

// NewCreationInfo returns a CreationInfo for path with no rig.
func NewCreationInfo(path string) CreationInfo {
	return CreationInfo{Filepath: path, RigID: IDUndefined}
}

func (c CreationInfo) equal(o CreationInfo) bool {
	if c.Filepath != o.Filepath || c.Flags != o.Flags ||
		c.LightSetupKey != o.LightSetupKey || c.RigID != o.RigID {
		return false
	}
	if (c.Scale == nil) != (o.Scale == nil) {
		return false
	}
	return c.Scale == nil || *c.Scale == *o.Scale
}

// Clone returns a copy that shares no memory with c.
func (c CreationInfo) Clone() CreationInfo {
	if c.Scale != nil {
		s := *c.Scale
		c.Scale = &s
	}
	return c
}

// LightPositionModel tells the renderer which frame a light vector is in.
type LightPositionModel string

const (
	LightGlobal LightPositionModel = "global"
	LightCamera LightPositionModel = "camera"
	LightObject LightPositionModel = "object"
)

// LightInfo is a single light. Vector.W() is 0 for directional lights and
// 1 for point lights.
type LightInfo struct {
	Vector mgl32.Vec4
	Color  mgl32.Vec3
	Model  LightPositionModel
}

// LightsEqual reports whether two light sets are identical, order included.
func LightsEqual(a, b []LightInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PosesEqual reports whether two poses are identical bone for bone.
func PosesEqual(a, b []Transform) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
