package scene

import (
	"io"
	"log/slog"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kfreplay/internal/keyframe"
	"github.com/roach88/kfreplay/internal/recorder"
)

func at(x, y, z float32) keyframe.Transform {
	t := keyframe.IdentityTransform()
	t.Translation = mgl32.Vec3{x, y, z}
	return t
}

func newRecordedScene(t *testing.T) (*Scene, *recorder.Recorder) {
	t.Helper()
	var s *Scene
	rec := recorder.New(
		recorder.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		recorder.WithAssetLookup(assetLookupFunc(func(p string) (keyframe.AssetInfo, bool) { return s.LookupAsset(p) })),
		recorder.WithLightSource(lightSourceFunc(func() []keyframe.LightInfo { return s.Lights() })),
	)
	s = New(rec)
	s.RegisterAsset(keyframe.NewAssetInfo("box.glb"))
	return s, rec
}

type assetLookupFunc func(string) (keyframe.AssetInfo, bool)

func (f assetLookupFunc) LookupAsset(p string) (keyframe.AssetInfo, bool) { return f(p) }

type lightSourceFunc func() []keyframe.LightInfo

func (f lightSourceFunc) Lights() []keyframe.LightInfo { return f() }

func TestNode_AbsoluteTransformComposesParents(t *testing.T) {
	s := New(nil)
	rot := keyframe.IdentityTransform()
	rot.Rotation = mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1})
	rot.Translation = mgl32.Vec3{10, 0, 0}

	_, err := s.AddNode("base", "", rot)
	require.NoError(t, err)
	child, err := s.AddNode("arm", "base", at(1, 0, 0))
	require.NoError(t, err)

	abs := child.AbsoluteTransform()
	assert.InDelta(t, 10, abs.Translation.X(), 1e-5)
	assert.InDelta(t, 1, abs.Translation.Y(), 1e-5)
	assert.InDelta(t, 0, abs.Translation.Z(), 1e-5)
}

func TestScene_NodeErrors(t *testing.T) {
	s := New(nil)
	_, err := s.AddNode("a", "", at(0, 0, 0))
	require.NoError(t, err)

	_, err = s.AddNode("a", "", at(0, 0, 0))
	assert.Error(t, err)
	_, err = s.AddNode("b", "missing", at(0, 0, 0))
	assert.Error(t, err)
	_, err = s.AddNode("", "", at(0, 0, 0))
	assert.Error(t, err)
	assert.Error(t, s.Move("missing", at(0, 0, 0)))
	assert.Error(t, s.Remove("missing"))
}

func TestScene_InstancesReportedToRecorder(t *testing.T) {
	s, rec := newRecordedScene(t)
	_, err := s.AddNode("table", "", at(0, 1, 0))
	require.NoError(t, err)
	cup, err := s.CreateInstance("cup", "table", keyframe.NewCreationInfo("box.glb"), at(0, 0.5, 0))
	require.NoError(t, err)

	key, ok := cup.Key()
	require.True(t, ok)

	kf, err := rec.SaveKeyframe()
	require.NoError(t, err)
	require.Len(t, kf.StateUpdates, 1)
	assert.Equal(t, key, kf.StateUpdates[0].Key)
	assert.Equal(t, mgl32.Vec3{0, 1.5, 0}, kf.StateUpdates[0].State.AbsTransform.Translation)

	// Moving a parent moves the instance.
	require.NoError(t, s.Move("table", at(0, 2, 0)))
	kf, err = rec.SaveKeyframe()
	require.NoError(t, err)
	require.Len(t, kf.StateUpdates, 1)
	assert.Equal(t, mgl32.Vec3{0, 2.5, 0}, kf.StateUpdates[0].State.AbsTransform.Translation)
}

func TestScene_RejectedInstanceIsNotAdded(t *testing.T) {
	s, _ := newRecordedScene(t)
	_, err := s.CreateInstance("ghost", "", keyframe.NewCreationInfo("missing.glb"), at(0, 0, 0))
	require.ErrorIs(t, err, recorder.ErrUnknownAsset)
	_, ok := s.Node("ghost")
	assert.False(t, ok)
}

func TestScene_RemoveSubtree(t *testing.T) {
	s, rec := newRecordedScene(t)
	_, err := s.CreateInstance("cart", "", keyframe.NewCreationInfo("box.glb"), at(0, 0, 0))
	require.NoError(t, err)
	_, err = s.CreateInstance("crate", "cart", keyframe.NewCreationInfo("box.glb"), at(0, 1, 0))
	require.NoError(t, err)
	_, err = rec.SaveKeyframe()
	require.NoError(t, err)

	require.NoError(t, s.Remove("cart"))
	assert.Empty(t, s.Instances())

	kf, err := rec.SaveKeyframe()
	require.NoError(t, err)
	assert.Equal(t, []keyframe.Key{0, 1}, kf.Deletions)
}

func TestScene_RigPose(t *testing.T) {
	s, rec := newRecordedScene(t)
	_, err := s.AddNode("body", "", at(0, 1, 0))
	require.NoError(t, err)
	require.NoError(t, s.CreateRig(2, []string{"hip", "knee"}, "body"))

	_, ok := s.Node(BoneName(2, "knee"))
	assert.True(t, ok)
	assert.Error(t, s.CreateRig(2, []string{"x"}, ""))

	require.NoError(t, s.Pose(2, []keyframe.Transform{at(0, 0, 0), at(0, -0.5, 0)}))
	pose, ok := s.RigPose(2)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{0, 0.5, 0}, pose[1].Translation)
	assert.Error(t, s.Pose(2, []keyframe.Transform{at(0, 0, 0)}))

	kf, err := rec.SaveKeyframe()
	require.NoError(t, err)
	require.Len(t, kf.RigCreations, 1)
	require.Len(t, kf.RigUpdates, 1)
	assert.Equal(t, pose, kf.RigUpdates[0].Pose)
	assert.Equal(t, []int{2}, s.RigIDs())
}

func TestScene_LightsPolled(t *testing.T) {
	s, rec := newRecordedScene(t)
	s.SetLights([]keyframe.LightInfo{{Vector: mgl32.Vec4{0, 1, 0, 1}, Color: mgl32.Vec3{1, 1, 1}, Model: keyframe.LightGlobal}})

	kf, err := rec.SaveKeyframe()
	require.NoError(t, err)
	assert.True(t, kf.LightsChanged)
	assert.Len(t, kf.Lights, 1)
}

func TestScene_LoadAssetAnnounces(t *testing.T) {
	s, rec := newRecordedScene(t)
	require.NoError(t, s.LoadAsset(keyframe.NewAssetInfo("sphere.glb")))

	kf, err := rec.SaveKeyframe()
	require.NoError(t, err)
	require.Len(t, kf.Loads, 1)
	assert.Equal(t, "sphere.glb", kf.Loads[0].Filepath)
}

func TestScene_RemoveOwnerDropsRig(t *testing.T) {
	s, _ := newRecordedScene(t)
	creation := keyframe.NewCreationInfo("box.glb")
	creation.RigID = 4
	_, err := s.CreateInstance("body", "", creation, at(0, 0, 0))
	require.NoError(t, err)
	require.NoError(t, s.CreateRig(4, []string{"hip"}, ""))
	require.Equal(t, []int{4}, s.RigIDs())

	require.NoError(t, s.Remove("body"))
	assert.Empty(t, s.RigIDs())
}
