package keyframe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultMaxDecimalPlaces is the float precision written by default.
const DefaultMaxDecimalPlaces = 7

// Encoder controls how keyframes are written.
//
// MaxDecimalPlaces rounds every float before encoding. Zero selects
// DefaultMaxDecimalPlaces; a negative value disables rounding.
type Encoder struct {
	MaxDecimalPlaces int
	Pretty           bool
}

func (e Encoder) places() int {
	if e.MaxDecimalPlaces == 0 {
		return DefaultMaxDecimalPlaces
	}
	return e.MaxDecimalPlaces
}

// Wire types. Field names are snake_case; empty categories are omitted.

type wireTransform struct {
	Translation [3]float32 `json:"translation"`
	Rotation    [4]float32 `json:"rotation"` // w, x, y, z
}

type wireAsset struct {
	Type                AssetType `json:"type"`
	Filepath            string    `json:"filepath"`
	VirtualUnitToMeters float32   `json:"virtual_unit_to_meters"`
	ForceFlatShading    bool      `json:"force_flat_shading"`
	SplitInstanceMesh   bool      `json:"split_instance_mesh"`
	ShaderType          string    `json:"shader_type,omitempty"`
}

type wireCreationInfo struct {
	Filepath      string      `json:"filepath"`
	Scale         *[3]float32 `json:"scale,omitempty"`
	Flags         uint32      `json:"flags,omitempty"`
	LightSetupKey string      `json:"light_setup_key,omitempty"`
	RigID         int         `json:"rig_id"`
}

type wireCreation struct {
	Key      Key              `json:"key"`
	Creation wireCreationInfo `json:"creation"`
}

type wireMetadata struct {
	Key      Key `json:"key"`
	Metadata struct {
		ObjectID   int `json:"object_id"`
		SemanticID int `json:"semantic_id"`
	} `json:"metadata"`
}

type wireState struct {
	Key   Key `json:"key"`
	State struct {
		AbsTransform wireTransform `json:"abs_transform"`
	} `json:"state"`
}

type wireRigCreation struct {
	ID        int      `json:"id"`
	BoneNames []string `json:"bone_names"`
}

type wireRigUpdate struct {
	ID   int             `json:"id"`
	Pose []wireTransform `json:"pose"`
}

type wireLight struct {
	Vector [4]float32         `json:"vector"`
	Color  [3]float32         `json:"color"`
	Model  LightPositionModel `json:"model"`
}

type wireKeyframe struct {
	Loads          []wireAsset              `json:"loads,omitempty"`
	RigCreations   []wireRigCreation        `json:"rig_creations,omitempty"`
	Creations      []wireCreation           `json:"creations,omitempty"`
	Deletions      []Key                    `json:"deletions,omitempty"`
	Metadata       []wireMetadata           `json:"metadata,omitempty"`
	StateUpdates   []wireState              `json:"state_updates,omitempty"`
	RigUpdates     []wireRigUpdate          `json:"rig_updates,omitempty"`
	UserTransforms map[string]wireTransform `json:"user_transforms,omitempty"`
	LightsChanged  bool                     `json:"lights_changed,omitempty"`
	Lights         []wireLight              `json:"lights,omitempty"`
}

type wireWrapped struct {
	Keyframe *wireKeyframe `json:"keyframe"`
}

type wireFile struct {
	Keyframes []wireKeyframe `json:"keyframes"`
}

// rounder rounds floats to a fixed number of decimal places. A negative
// places value leaves floats untouched.
type rounder struct {
	scale float64
	off   bool
}

func newRounder(places int) rounder {
	if places < 0 {
		return rounder{off: true}
	}
	return rounder{scale: math.Pow(10, float64(places))}
}

func (r rounder) f(v float32) float32 {
	if r.off {
		return v
	}
	return float32(math.Round(float64(v)*r.scale) / r.scale)
}

func (r rounder) transform(t Transform) wireTransform {
	return wireTransform{
		Translation: [3]float32{r.f(t.Translation[0]), r.f(t.Translation[1]), r.f(t.Translation[2])},
		Rotation:    [4]float32{r.f(t.Rotation.W), r.f(t.Rotation.V[0]), r.f(t.Rotation.V[1]), r.f(t.Rotation.V[2])},
	}
}

func toWire(k Keyframe, r rounder) wireKeyframe {
	var w wireKeyframe
	for _, a := range k.Loads {
		w.Loads = append(w.Loads, wireAsset{
			Type:                a.Type,
			Filepath:            a.Filepath,
			VirtualUnitToMeters: r.f(a.VirtualUnitToMeters),
			ForceFlatShading:    a.ForceFlatShading,
			SplitInstanceMesh:   a.SplitInstanceMesh,
			ShaderType:          a.ShaderType,
		})
	}
	for _, rc := range k.RigCreations {
		w.RigCreations = append(w.RigCreations, wireRigCreation{ID: rc.ID, BoneNames: append([]string(nil), rc.BoneNames...)})
	}
	for _, c := range k.Creations {
		info := wireCreationInfo{
			Filepath:      c.Info.Filepath,
			Flags:         uint32(c.Info.Flags),
			LightSetupKey: c.Info.LightSetupKey,
			RigID:         c.Info.RigID,
		}
		if c.Info.Scale != nil {
			s := [3]float32{r.f(c.Info.Scale[0]), r.f(c.Info.Scale[1]), r.f(c.Info.Scale[2])}
			info.Scale = &s
		}
		w.Creations = append(w.Creations, wireCreation{Key: c.Key, Creation: info})
	}
	if len(k.Deletions) > 0 {
		w.Deletions = append([]Key(nil), k.Deletions...)
	}
	for _, m := range k.Metadata {
		var wm wireMetadata
		wm.Key = m.Key
		wm.Metadata.ObjectID = m.Metadata.ObjectID
		wm.Metadata.SemanticID = m.Metadata.SemanticID
		w.Metadata = append(w.Metadata, wm)
	}
	for _, s := range k.StateUpdates {
		var ws wireState
		ws.Key = s.Key
		ws.State.AbsTransform = r.transform(s.State.AbsTransform)
		w.StateUpdates = append(w.StateUpdates, ws)
	}
	for _, ru := range k.RigUpdates {
		pose := make([]wireTransform, len(ru.Pose))
		for i, t := range ru.Pose {
			pose[i] = r.transform(t)
		}
		w.RigUpdates = append(w.RigUpdates, wireRigUpdate{ID: ru.ID, Pose: pose})
	}
	if len(k.UserTransforms) > 0 {
		w.UserTransforms = make(map[string]wireTransform, len(k.UserTransforms))
		for name, t := range k.UserTransforms {
			w.UserTransforms[name] = r.transform(t)
		}
	}
	if k.LightsChanged {
		w.LightsChanged = true
		for _, l := range k.Lights {
			w.Lights = append(w.Lights, wireLight{
				Vector: [4]float32{r.f(l.Vector[0]), r.f(l.Vector[1]), r.f(l.Vector[2]), r.f(l.Vector[3])},
				Color:  [3]float32{r.f(l.Color[0]), r.f(l.Color[1]), r.f(l.Color[2])},
				Model:  l.Model,
			})
		}
	}
	return w
}

func fromWireTransform(w wireTransform) Transform {
	return Transform{
		Translation: mgl32.Vec3(w.Translation),
		Rotation:    mgl32.Quat{W: w.Rotation[0], V: mgl32.Vec3{w.Rotation[1], w.Rotation[2], w.Rotation[3]}},
	}
}

func fromWire(w wireKeyframe) Keyframe {
	var k Keyframe
	for _, a := range w.Loads {
		k.Loads = append(k.Loads, AssetInfo(a))
	}
	for _, rc := range w.RigCreations {
		names := rc.BoneNames
		if names == nil {
			names = []string{}
		}
		k.RigCreations = append(k.RigCreations, RigCreation{ID: rc.ID, BoneNames: names})
	}
	for _, c := range w.Creations {
		info := CreationInfo{
			Filepath:      c.Creation.Filepath,
			Flags:         CreationFlags(c.Creation.Flags),
			LightSetupKey: c.Creation.LightSetupKey,
			RigID:         c.Creation.RigID,
		}
		if c.Creation.Scale != nil {
			s := mgl32.Vec3(*c.Creation.Scale)
			info.Scale = &s
		}
		k.Creations = append(k.Creations, Creation{Key: c.Key, Info: info})
	}
	if len(w.Deletions) > 0 {
		k.Deletions = w.Deletions
	}
	for _, m := range w.Metadata {
		k.Metadata = append(k.Metadata, MetadataUpdate{
			Key:      m.Key,
			Metadata: InstanceMetadata{ObjectID: m.Metadata.ObjectID, SemanticID: m.Metadata.SemanticID},
		})
	}
	for _, s := range w.StateUpdates {
		k.StateUpdates = append(k.StateUpdates, StateUpdate{
			Key:   s.Key,
			State: InstanceState{AbsTransform: fromWireTransform(s.State.AbsTransform)},
		})
	}
	for _, ru := range w.RigUpdates {
		pose := make([]Transform, len(ru.Pose))
		for i, t := range ru.Pose {
			pose[i] = fromWireTransform(t)
		}
		k.RigUpdates = append(k.RigUpdates, RigUpdate{ID: ru.ID, Pose: pose})
	}
	if len(w.UserTransforms) > 0 {
		k.UserTransforms = make(map[string]Transform, len(w.UserTransforms))
		for name, t := range w.UserTransforms {
			k.UserTransforms[name] = fromWireTransform(t)
		}
	}
	if w.LightsChanged {
		k.LightsChanged = true
		for _, l := range w.Lights {
			k.Lights = append(k.Lights, LightInfo{
				Vector: mgl32.Vec4(l.Vector),
				Color:  mgl32.Vec3(l.Color),
				Model:  l.Model,
			})
		}
	}
	return k
}

// encode writes v as JSON with HTML escaping disabled and without the
// trailing newline json.Encoder appends.
func encode(v any, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes json.Encoder
// always emits back into literal characters. Every backslash inside a JSON
// string starts exactly one escape sequence, so escapes are skipped pairwise.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if i+5 < len(data) && data[i+1] == 'u' && string(data[i+2:i+5]) == "202" {
			switch data[i+5] {
			case '8':
				out = append(out, "\u2028"...)
				i += 5
				continue
			case '9':
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

// Marshal encodes a single unwrapped keyframe object.
func (e Encoder) Marshal(k Keyframe) ([]byte, error) {
	data, err := encode(toWire(k, newRounder(e.places())), e.Pretty)
	if err != nil {
		return nil, fmt.Errorf("marshal keyframe: %w", err)
	}
	return data, nil
}

// MarshalWrapped encodes a keyframe as {"keyframe": {...}}.
func (e Encoder) MarshalWrapped(k Keyframe) ([]byte, error) {
	w := toWire(k, newRounder(e.places()))
	data, err := encode(wireWrapped{Keyframe: &w}, e.Pretty)
	if err != nil {
		return nil, fmt.Errorf("marshal wrapped keyframe: %w", err)
	}
	return data, nil
}

// MarshalFile encodes keyframes as {"keyframes": [...]}.
func (e Encoder) MarshalFile(kfs []Keyframe) ([]byte, error) {
	r := newRounder(e.places())
	f := wireFile{Keyframes: make([]wireKeyframe, len(kfs))}
	for i, k := range kfs {
		f.Keyframes[i] = toWire(k, r)
	}
	data, err := encode(f, e.Pretty)
	if err != nil {
		return nil, fmt.Errorf("marshal keyframe file: %w", err)
	}
	return data, nil
}

// Marshal encodes a keyframe with the default encoder.
func Marshal(k Keyframe) ([]byte, error) {
	return Encoder{}.Marshal(k)
}

// Unmarshal decodes a single unwrapped keyframe object. Unknown fields and
// structurally invalid keyframes are rejected.
func Unmarshal(data []byte) (Keyframe, error) {
	var w wireKeyframe
	if err := decodeStrict(data, &w); err != nil {
		return Keyframe{}, fmt.Errorf("unmarshal keyframe: %w", err)
	}
	k := fromWire(w)
	if err := k.CheckStructure(); err != nil {
		return Keyframe{}, fmt.Errorf("unmarshal keyframe: %w", err)
	}
	return k, nil
}

// UnmarshalWrapped decodes a keyframe wrapped as {"keyframe": {...}}.
func UnmarshalWrapped(data []byte) (Keyframe, error) {
	var w wireWrapped
	if err := decodeStrict(data, &w); err != nil {
		return Keyframe{}, fmt.Errorf("unmarshal wrapped keyframe: %w", err)
	}
	if w.Keyframe == nil {
		return Keyframe{}, fmt.Errorf("unmarshal wrapped keyframe: missing \"keyframe\" member")
	}
	k := fromWire(*w.Keyframe)
	if err := k.CheckStructure(); err != nil {
		return Keyframe{}, fmt.Errorf("unmarshal wrapped keyframe: %w", err)
	}
	return k, nil
}

// UnmarshalFile decodes a {"keyframes": [...]} document.
func UnmarshalFile(data []byte) ([]Keyframe, error) {
	var f wireFile
	if err := decodeStrict(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal keyframe file: %w", err)
	}
	kfs := make([]Keyframe, len(f.Keyframes))
	for i, w := range f.Keyframes {
		kfs[i] = fromWire(w)
		if err := kfs[i].CheckStructure(); err != nil {
			return nil, fmt.Errorf("unmarshal keyframe file: keyframes[%d]: %w", i, err)
		}
	}
	return kfs, nil
}
