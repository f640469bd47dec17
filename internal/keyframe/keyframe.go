package keyframe

import (
	"fmt"
	"maps"
	"slices"
)

// Creation pairs a new instance key with how to create it.
type Creation struct {
	Key  Key
	Info CreationInfo
}

// MetadataUpdate pairs an instance key with its new metadata.
type MetadataUpdate struct {
	Key      Key
	Metadata InstanceMetadata
}

// StateUpdate pairs an instance key with its new state.
type StateUpdate struct {
	Key   Key
	State InstanceState
}

// Keyframe is the atomic unit of change for one frame.
//
// A Keyframe is built once by the recorder and treated as immutable after
// that. Hand-offs use Clone so no two owners share slices.
type Keyframe struct {
	Loads          []AssetInfo
	RigCreations   []RigCreation
	Creations      []Creation
	Deletions      []Key
	Metadata       []MetadataUpdate
	StateUpdates   []StateUpdate
	RigUpdates     []RigUpdate
	UserTransforms map[string]Transform
	Lights         []LightInfo // only meaningful when LightsChanged
	LightsChanged  bool
}

// IsEmpty reports whether the keyframe carries no change at all.
func (k Keyframe) IsEmpty() bool {
	return len(k.Loads) == 0 &&
		len(k.RigCreations) == 0 &&
		len(k.Creations) == 0 &&
		len(k.Deletions) == 0 &&
		len(k.Metadata) == 0 &&
		len(k.StateUpdates) == 0 &&
		len(k.RigUpdates) == 0 &&
		len(k.UserTransforms) == 0 &&
		!k.LightsChanged
}

// EntryCount returns the number of patch entries in the keyframe. A light
// change counts as one entry.
func (k Keyframe) EntryCount() int {
	n := len(k.Loads) + len(k.RigCreations) + len(k.Creations) + len(k.Deletions) +
		len(k.Metadata) + len(k.StateUpdates) + len(k.RigUpdates) + len(k.UserTransforms)
	if k.LightsChanged {
		n++
	}
	return n
}

// Clone returns a deep copy of the keyframe.
func (k Keyframe) Clone() Keyframe {
	out := Keyframe{LightsChanged: k.LightsChanged}
	if len(k.Loads) > 0 {
		out.Loads = append([]AssetInfo(nil), k.Loads...)
	}
	for _, rc := range k.RigCreations {
		out.RigCreations = append(out.RigCreations, RigCreation{
			ID:        rc.ID,
			BoneNames: append([]string(nil), rc.BoneNames...),
		})
	}
	for _, c := range k.Creations {
		out.Creations = append(out.Creations, Creation{Key: c.Key, Info: c.Info.Clone()})
	}
	if len(k.Deletions) > 0 {
		out.Deletions = append([]Key(nil), k.Deletions...)
	}
	if len(k.Metadata) > 0 {
		out.Metadata = append([]MetadataUpdate(nil), k.Metadata...)
	}
	if len(k.StateUpdates) > 0 {
		out.StateUpdates = append([]StateUpdate(nil), k.StateUpdates...)
	}
	for _, ru := range k.RigUpdates {
		out.RigUpdates = append(out.RigUpdates, RigUpdate{
			ID:   ru.ID,
			Pose: append([]Transform(nil), ru.Pose...),
		})
	}
	if len(k.UserTransforms) > 0 {
		out.UserTransforms = make(map[string]Transform, len(k.UserTransforms))
		for name, t := range k.UserTransforms {
			out.UserTransforms[name] = t
		}
	}
	if k.LightsChanged && len(k.Lights) > 0 {
		out.Lights = append([]LightInfo(nil), k.Lights...)
	}
	return out
}

// Equal reports whether two keyframes describe the same change. Nil and
// empty categories compare equal, and Lights is ignored unless
// LightsChanged is set.
func Equal(a, b Keyframe) bool {
	if a.LightsChanged != b.LightsChanged {
		return false
	}
	if a.LightsChanged && !LightsEqual(a.Lights, b.Lights) {
		return false
	}
	if len(a.Loads) != len(b.Loads) {
		return false
	}
	for i := range a.Loads {
		if a.Loads[i] != b.Loads[i] {
			return false
		}
	}
	if len(a.RigCreations) != len(b.RigCreations) {
		return false
	}
	for i := range a.RigCreations {
		if a.RigCreations[i].ID != b.RigCreations[i].ID ||
			!stringsEqual(a.RigCreations[i].BoneNames, b.RigCreations[i].BoneNames) {
			return false
		}
	}
	if len(a.Creations) != len(b.Creations) {
		return false
	}
	for i := range a.Creations {
		if a.Creations[i].Key != b.Creations[i].Key || !a.Creations[i].Info.equal(b.Creations[i].Info) {
			return false
		}
	}
	if len(a.Deletions) != len(b.Deletions) {
		return false
	}
	for i := range a.Deletions {
		if a.Deletions[i] != b.Deletions[i] {
			return false
		}
	}
	if len(a.Metadata) != len(b.Metadata) {
		return false
	}
	for i := range a.Metadata {
		if a.Metadata[i] != b.Metadata[i] {
			return false
		}
	}
	if len(a.StateUpdates) != len(b.StateUpdates) {
		return false
	}
	for i := range a.StateUpdates {
		if a.StateUpdates[i] != b.StateUpdates[i] {
			return false
		}
	}
	if len(a.RigUpdates) != len(b.RigUpdates) {
		return false
	}
	for i := range a.RigUpdates {
		if a.RigUpdates[i].ID != b.RigUpdates[i].ID || !PosesEqual(a.RigUpdates[i].Pose, b.RigUpdates[i].Pose) {
			return false
		}
	}
	if len(a.UserTransforms) != len(b.UserTransforms) {
		return false
	}
	for name, t := range a.UserTransforms {
		if o, ok := b.UserTransforms[name]; !ok || o != t {
			return false
		}
	}
	return true
}

func stringsEqual(a, b []string) bool {
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

// StructureError reports a problem that is visible inside a single keyframe
// without any history.
type StructureError struct {
	Section string
	Index   int
	Message string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%s[%d]: %s", e.Section, e.Index, e.Message)
}

// CheckStructure validates the intra-keyframe invariants: no key twice in
// creations, no rig id twice in rig creations, bone and user transform
// names valid per CheckName. Lifecycle checks that need history belong to the player.
func (k Keyframe) CheckStructure() error {
	seen := make(map[Key]bool, len(k.Creations))
	for i, c := range k.Creations {
		if seen[c.Key] {
			return &StructureError{Section: "creations", Index: i, Message: fmt.Sprintf("duplicate key %d", c.Key)}
		}
		seen[c.Key] = true
	}
	rigs := make(map[int]bool, len(k.RigCreations))
	for i, rc := range k.RigCreations {
		if rigs[rc.ID] {
			return &StructureError{Section: "rig_creations", Index: i, Message: fmt.Sprintf("duplicate rig %d", rc.ID)}
		}
		rigs[rc.ID] = true
	}
	for i, ru := range k.RigUpdates {
		for j, rc := range k.RigCreations {
			if rc.ID == ru.ID && len(rc.BoneNames) != len(ru.Pose) {
				return &StructureError{
					Section: "rig_updates",
					Index:   i,
					Message: fmt.Sprintf("pose has %d bones, rig_creations[%d] defines %d", len(ru.Pose), j, len(rc.BoneNames)),
				}
			}
		}
	}
	for i, rc := range k.RigCreations {
		for _, name := range rc.BoneNames {
			if err := CheckName(name); err != nil {
				return &StructureError{Section: "rig_creations", Index: i, Message: err.Error()}
			}
		}
	}
	for _, name := range slices.Sorted(maps.Keys(k.UserTransforms)) {
		if err := CheckName(name); err != nil {
			return &StructureError{Section: "user_transforms", Index: 0, Message: err.Error()}
		}
	}
	return nil
}
