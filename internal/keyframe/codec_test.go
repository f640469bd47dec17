package keyframe

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_RoundTripPreservesOrder(t *testing.T) {
	orig := sampleKeyframe()

	data, err := Marshal(orig)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, Equal(orig, got), "decoded keyframe differs:\n%s", data)

	require.Len(t, got.StateUpdates, 2)
	assert.Equal(t, Key(1), got.StateUpdates[0].Key)
	assert.Equal(t, Key(0), got.StateUpdates[1].Key)
}

func TestMarshal_OmitsEmptyCategories(t *testing.T) {
	data, err := Marshal(Keyframe{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	data, err = Marshal(Keyframe{Deletions: []Key{}, UserTransforms: map[string]Transform{}})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestMarshal_DropsLightsWhenUnchanged(t *testing.T) {
	kf := sampleKeyframe()
	kf.LightsChanged = false

	data, err := Marshal(kf)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"lights"`)
	assert.NotContains(t, string(data), `"lights_changed"`)
}

func TestMarshal_ClearedLightsSurvive(t *testing.T) {
	data, err := Marshal(Keyframe{LightsChanged: true})
	require.NoError(t, err)
	assert.Equal(t, `{"lights_changed":true}`, string(data))

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, got.LightsChanged)
	assert.Empty(t, got.Lights)
}

func TestUnmarshal_AbsentEqualsEmpty(t *testing.T) {
	a, err := Unmarshal([]byte(`{}`))
	require.NoError(t, err)
	b, err := Unmarshal([]byte(`{"loads":[],"creations":[],"deletions":[],"metadata":[],"state_updates":[],"rig_updates":[],"user_transforms":{}}`))
	require.NoError(t, err)
	assert.True(t, Equal(a, b))
	assert.True(t, b.IsEmpty())
}

func TestUnmarshal_RejectsUnknownFields(t *testing.T) {
	_, err := Unmarshal([]byte(`{"creations":[],"bogus":1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestUnmarshal_RejectsDuplicateCreation(t *testing.T) {
	_, err := Unmarshal([]byte(`{"creations":[
		{"key":1,"creation":{"filepath":"a.glb","rig_id":-1}},
		{"key":1,"creation":{"filepath":"b.glb","rig_id":-1}}]}`))
	require.Error(t, err)
	var se *StructureError
	assert.ErrorAs(t, err, &se)
}

func TestUnmarshal_TrailingData(t *testing.T) {
	_, err := Unmarshal([]byte(`{} {}`))
	assert.Error(t, err)
}

func TestEncoder_RoundsFloats(t *testing.T) {
	kf := Keyframe{StateUpdates: []StateUpdate{
		{Key: 0, State: InstanceState{AbsTransform: translation(1.23456, -0.5, 2)}},
	}}

	data, err := Encoder{MaxDecimalPlaces: 2}.Marshal(kf)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, float32(1.23), got.StateUpdates[0].State.AbsTransform.Translation[0])
	assert.Equal(t, float32(-0.5), got.StateUpdates[0].State.AbsTransform.Translation[1])

	exact, err := Encoder{MaxDecimalPlaces: -1}.Marshal(kf)
	require.NoError(t, err)
	got, err = Unmarshal(exact)
	require.NoError(t, err)
	assert.Equal(t, float32(1.23456), got.StateUpdates[0].State.AbsTransform.Translation[0])
}

func TestWrapped_RoundTrip(t *testing.T) {
	orig := sampleKeyframe()

	data, err := Encoder{}.MarshalWrapped(orig)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `{"keyframe":{`))

	got, err := UnmarshalWrapped(data)
	require.NoError(t, err)
	assert.True(t, Equal(orig, got))

	_, err = UnmarshalWrapped([]byte(`{}`))
	assert.Error(t, err)
}

func TestFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.json")
	kfs := []Keyframe{sampleKeyframe(), {}, {Deletions: []Key{0, 1}}}

	require.NoError(t, Encoder{Pretty: true}.WriteFile(path, kfs))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range kfs {
		assert.True(t, Equal(kfs[i], got[i]), "keyframe %d", i)
	}
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestUnmarshalFile_Invalid(t *testing.T) {
	_, err := UnmarshalFile([]byte(`{"keyframes": 3}`))
	assert.Error(t, err)
}

func TestMarshal_NamesRoundTripExactly(t *testing.T) {
	orig := Keyframe{
		RigCreations:   []RigCreation{{ID: 2, BoneNames: []string{"h\u00fcfte"}}},
		UserTransforms: map[string]Transform{"caf\u00e9": IdentityTransform()},
	}
	data, err := Marshal(orig)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, Equal(orig, got))
	_, ok := got.UserTransforms["caf\u00e9"]
	assert.True(t, ok)
}

func TestUnmarshal_RejectsDecomposedName(t *testing.T) {
	_, err := Unmarshal([]byte(`{"user_transforms":{"cafe\u0301":{"translation":[0,0,0],"rotation":[1,0,0,0]}}}`))
	require.Error(t, err)
	var se *StructureError
	assert.ErrorAs(t, err, &se)
}
