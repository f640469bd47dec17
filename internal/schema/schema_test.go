package schema

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kfreplay/internal/keyframe"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	return v
}

const validFile = `{
  "keyframes": [
    {
      "loads": [{"type": "mesh", "filepath": "box.glb", "virtual_unit_to_meters": 1, "force_flat_shading": true, "split_instance_mesh": true}],
      "creations": [{"key": 0, "creation": {"filepath": "box.glb", "rig_id": -1}}],
      "state_updates": [{"key": 0, "state": {"abs_transform": {"translation": [0, 1, 0], "rotation": [1, 0, 0, 0]}}}],
      "lights_changed": true,
      "lights": [{"vector": [0, -1, 0, 0], "color": [1, 1, 1], "model": "global"}]
    },
    {
      "deletions": [0]
    }
  ]
}`

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateFile_Valid(t *testing.T) {
	v := newValidator(t)
	assert.Empty(t, v.ValidateFile([]byte(validFile)))
}

func TestValidateFile_EncoderOutputIsValid(t *testing.T) {
	v := newValidator(t)
	scale := mgl32.Vec3{2, 2, 2}
	info := keyframe.NewCreationInfo("box.glb")
	info.Scale = &scale
	info.Flags = keyframe.FlagIsStatic | keyframe.FlagIsSemantic
	info.LightSetupKey = "default"

	kfs := []keyframe.Keyframe{
		{
			Loads:          []keyframe.AssetInfo{keyframe.NewAssetInfo("box.glb")},
			RigCreations:   []keyframe.RigCreation{{ID: 1, BoneNames: []string{"root"}}},
			Creations:      []keyframe.Creation{{Key: 3, Info: info}},
			Metadata:       []keyframe.MetadataUpdate{{Key: 3, Metadata: keyframe.UndefinedMetadata()}},
			RigUpdates:     []keyframe.RigUpdate{{ID: 1, Pose: []keyframe.Transform{keyframe.IdentityTransform()}}},
			UserTransforms: map[string]keyframe.Transform{"agent": keyframe.IdentityTransform()},
		},
	}
	data, err := keyframe.Encoder{}.MarshalFile(kfs)
	require.NoError(t, err)
	assert.Empty(t, v.ValidateFile(data))

	one, err := keyframe.Encoder{}.Marshal(kfs[0])
	require.NoError(t, err)
	assert.Empty(t, v.ValidateKeyframe(one))

	wrapped, err := keyframe.Encoder{}.MarshalWrapped(kfs[0])
	require.NoError(t, err)
	assert.Empty(t, v.ValidateWrapped(wrapped))
}

func TestValidateFile_MalformedJSON(t *testing.T) {
	v := newValidator(t)
	errs := v.ValidateFile([]byte(`{"keyframes": [`))
	require.Len(t, errs, 1)
	assert.Equal(t, ErrMalformedJSON, errs[0].Code)
}

func TestValidateFile_UnknownFieldRejected(t *testing.T) {
	v := newValidator(t)
	doc := strings.Replace(validFile, `"deletions": [0]`, `"deletions": [0], "bogus": 1`, 1)
	errs := v.ValidateFile([]byte(doc))
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrSchema, errs[0].Code)
	assert.Contains(t, errs[0].Field, "bogus")
}

func TestValidateFile_BadEnumValue(t *testing.T) {
	v := newValidator(t)
	doc := strings.Replace(validFile, `"model": "global"`, `"model": "sun"`, 1)
	errs := v.ValidateFile([]byte(doc))
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrSchema, errs[0].Code)
	assert.Contains(t, errs[0].Field, "model")
}

func TestValidateFile_StructureError(t *testing.T) {
	v := newValidator(t)
	doc := `{"keyframes": [{"creations": [
		{"key": 1, "creation": {"filepath": "a.glb", "rig_id": -1}},
		{"key": 1, "creation": {"filepath": "a.glb", "rig_id": -1}}
	]}]}`
	errs := v.ValidateFile([]byte(doc))
	require.Len(t, errs, 1)
	assert.Equal(t, ErrStructure, errs[0].Code)
	assert.Equal(t, "keyframes[0].creations[1]", errs[0].Field)
}

func TestValidateFile_LifecycleErrors(t *testing.T) {
	v := newValidator(t)
	doc := `{"keyframes": [
		{"state_updates": [{"key": 7, "state": {"abs_transform": {"translation": [0, 0, 0], "rotation": [1, 0, 0, 0]}}}]},
		{},
		{"deletions": [9]}
	]}`
	errs := v.ValidateFile([]byte(doc))
	require.Len(t, errs, 2)
	assert.Equal(t, []string{ErrLifecycle, ErrLifecycle}, codes(errs))
	assert.Equal(t, "keyframes[0].state_updates[0]", errs[0].Field)
	assert.Contains(t, errs[0].Message, "unknown key 7")
	assert.Equal(t, "keyframes[2].deletions[0]", errs[1].Field)
}

func TestValidateFile_LifecycleLintIsSilent(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	v := newValidator(t)
	errs := v.ValidateFile([]byte(`{"keyframes": [{"deletions": [3]}]}`))
	require.Len(t, errs, 1)
	assert.Equal(t, ErrLifecycle, errs[0].Code)
	assert.Empty(t, buf.String())
}

func TestValidateWrapped_MissingMember(t *testing.T) {
	v := newValidator(t)
	errs := v.ValidateWrapped([]byte(`{"frame": {}}`))
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrSchema, errs[0].Code)
}

func TestValidationError_Format(t *testing.T) {
	e := ValidationError{Field: "keyframes[0]", Message: "bad", Code: ErrSchema, Line: 3}
	assert.Equal(t, "[E201] line 3: keyframes[0]: bad", e.Error())
	e.Line = 0
	assert.Equal(t, "[E201] keyframes[0]: bad", e.Error())
}
