package keyframe

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsEmpty(t *testing.T) {
	assert.True(t, Keyframe{}.IsEmpty())
	assert.True(t, Keyframe{Loads: []AssetInfo{}, UserTransforms: map[string]Transform{}}.IsEmpty())
	assert.False(t, Keyframe{LightsChanged: true}.IsEmpty(), "clearing all lights is a change")
	assert.True(t, Keyframe{Lights: []LightInfo{{Model: LightGlobal}}}.IsEmpty(), "lights without LightsChanged carry nothing")
	assert.False(t, sampleKeyframe().IsEmpty())
}

func TestEqual_NilAndEmptyAreEquivalent(t *testing.T) {
	a := Keyframe{}
	b := Keyframe{
		Loads:          []AssetInfo{},
		Creations:      []Creation{},
		Deletions:      []Key{},
		UserTransforms: map[string]Transform{},
	}
	assert.True(t, Equal(a, b))
	assert.True(t, Equal(b, a))
}

func TestEqual_IgnoresLightsUnlessChanged(t *testing.T) {
	a := Keyframe{Lights: []LightInfo{{Model: LightCamera}}}
	b := Keyframe{}
	assert.True(t, Equal(a, b))

	a.LightsChanged = true
	b.LightsChanged = true
	assert.False(t, Equal(a, b))
}

func TestEqual_OrderMatters(t *testing.T) {
	a := Keyframe{Deletions: []Key{1, 2}}
	b := Keyframe{Deletions: []Key{2, 1}}
	assert.False(t, Equal(a, b))
}

func TestEqual_ComparesScaleByValue(t *testing.T) {
	s1 := mgl32.Vec3{1, 2, 3}
	s2 := mgl32.Vec3{1, 2, 3}
	a := Keyframe{Creations: []Creation{{Key: 1, Info: CreationInfo{Filepath: "a", Scale: &s1}}}}
	b := Keyframe{Creations: []Creation{{Key: 1, Info: CreationInfo{Filepath: "a", Scale: &s2}}}}
	assert.True(t, Equal(a, b))

	b.Creations[0].Info.Scale = nil
	assert.False(t, Equal(a, b))
}

func TestClone_IsDeep(t *testing.T) {
	orig := sampleKeyframe()
	c := orig.Clone()
	require.True(t, Equal(orig, c))

	c.Creations[1].Info.Scale[0] = 99
	c.RigCreations[0].BoneNames[0] = "changed"
	c.RigUpdates[0].Pose[0] = translation(9, 9, 9)
	c.UserTransforms["camera"] = IdentityTransform()
	c.Deletions[0] = 100

	assert.Equal(t, float32(2), orig.Creations[1].Info.Scale[0])
	assert.Equal(t, "root", orig.RigCreations[0].BoneNames[0])
	assert.Equal(t, IdentityTransform(), orig.RigUpdates[0].Pose[0])
	assert.Equal(t, translation(4, 5, 6), orig.UserTransforms["camera"])
	assert.Equal(t, Key(7), orig.Deletions[0])
}

func TestEntryCount(t *testing.T) {
	assert.Equal(t, 0, Keyframe{}.EntryCount())
	// 1 load, 1 rig, 2 creations, 1 deletion, 2 metadata, 2 states, 1 rig update, 2 user transforms, lights
	assert.Equal(t, 13, sampleKeyframe().EntryCount())
}

func TestCheckStructure(t *testing.T) {
	require.NoError(t, sampleKeyframe().CheckStructure())

	tests := []struct {
		name    string
		kf      Keyframe
		section string
	}{
		{
			name: "duplicate creation key",
			kf: Keyframe{Creations: []Creation{
				{Key: 3, Info: NewCreationInfo("a")},
				{Key: 3, Info: NewCreationInfo("b")},
			}},
			section: "creations",
		},
		{
			name: "duplicate rig",
			kf: Keyframe{RigCreations: []RigCreation{
				{ID: 1, BoneNames: []string{"a"}},
				{ID: 1, BoneNames: []string{"b"}},
			}},
			section: "rig_creations",
		},
		{
			name: "pose length mismatch against same-keyframe rig",
			kf: Keyframe{
				RigCreations: []RigCreation{{ID: 1, BoneNames: []string{"a", "b"}}},
				RigUpdates:   []RigUpdate{{ID: 1, Pose: []Transform{IdentityTransform()}}},
			},
			section: "rig_updates",
		},
		{
			name:    "empty user transform name",
			kf:      Keyframe{UserTransforms: map[string]Transform{"": IdentityTransform()}},
			section: "user_transforms",
		},
		{
			name:    "decomposed user transform name",
			kf:      Keyframe{UserTransforms: map[string]Transform{"cafe\u0301": IdentityTransform()}},
			section: "user_transforms",
		},
		{
			name:    "decomposed bone name",
			kf:      Keyframe{RigCreations: []RigCreation{{ID: 1, BoneNames: []string{"hip", "e\u0301"}}}},
			section: "rig_creations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.kf.CheckStructure()
			require.Error(t, err)
			var se *StructureError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.section, se.Section)
		})
	}
}

func TestTransformCompose(t *testing.T) {
	parent := Transform{
		Translation: mgl32.Vec3{10, 0, 0},
		Rotation:    mgl32.QuatIdent(),
	}
	child := translation(1, 2, 3)

	world := child.Compose(parent)
	assert.Equal(t, mgl32.Vec3{11, 2, 3}, world.Translation)
	assert.Equal(t, mgl32.QuatIdent(), world.Rotation)

	assert.Equal(t, child, child.Compose(IdentityTransform()))
}

func TestCreationFlags(t *testing.T) {
	f := FlagIsRGBD | FlagIsSemantic
	assert.True(t, f.Has(FlagIsRGBD))
	assert.True(t, f.Has(FlagIsRGBD|FlagIsSemantic))
	assert.False(t, f.Has(FlagIsStatic))
}

func TestCheckName(t *testing.T) {
	require.NoError(t, CheckName("cam"))
	require.NoError(t, CheckName("caf\u00e9"))
	assert.Error(t, CheckName(""))
	assert.Error(t, CheckName("cafe\u0301"))
}

func TestTransformIsFinite(t *testing.T) {
	assert.True(t, IdentityTransform().IsFinite())

	nan := IdentityTransform()
	nan.Translation[1] = float32(math.NaN())
	assert.False(t, nan.IsFinite())

	inf := IdentityTransform()
	inf.Rotation.W = float32(math.Inf(-1))
	assert.False(t, inf.IsFinite())
}
