package keyframe

import "github.com/go-gl/mathgl/mgl32"

func translation(x, y, z float32) Transform {
	t := IdentityTransform()
	t.Translation = mgl32.Vec3{x, y, z}
	return t
}

// sampleKeyframe exercises every category.
func sampleKeyframe() Keyframe {
	scale := mgl32.Vec3{2, 2, 2}
	return Keyframe{
		Loads: []AssetInfo{NewAssetInfo("objects/box.glb")},
		RigCreations: []RigCreation{
			{ID: 4, BoneNames: []string{"root", "arm"}},
		},
		Creations: []Creation{
			{Key: 0, Info: NewCreationInfo("objects/box.glb")},
			{Key: 1, Info: CreationInfo{Filepath: "objects/box.glb", Scale: &scale, Flags: FlagIsRGBD | FlagIsSemantic, RigID: 4}},
		},
		Deletions: []Key{7},
		Metadata: []MetadataUpdate{
			{Key: 1, Metadata: InstanceMetadata{ObjectID: 9, SemanticID: 7}},
			{Key: 0, Metadata: UndefinedMetadata()},
		},
		StateUpdates: []StateUpdate{
			{Key: 1, State: InstanceState{AbsTransform: translation(1, 2, 3)}},
			{Key: 0, State: InstanceState{AbsTransform: IdentityTransform()}},
		},
		RigUpdates: []RigUpdate{
			{ID: 4, Pose: []Transform{IdentityTransform(), translation(0, 1, 0)}},
		},
		UserTransforms: map[string]Transform{
			"camera": translation(4, 5, 6),
			"agent":  IdentityTransform(),
		},
		Lights: []LightInfo{
			{Vector: mgl32.Vec4{0, -1, 0, 0}, Color: mgl32.Vec3{1, 1, 1}, Model: LightGlobal},
		},
		LightsChanged: true,
	}
}
