package player

import (
	"github.com/roach88/kfreplay/internal/keyframe"
)

// Asset is whatever the renderer's resolver returns for a loaded asset.
type Asset any

// NodeHandle is the renderer's handle for a created instance.
type NodeHandle any

// AssetResolver loads assets on behalf of the player. Results are cached by
// filepath, so each asset is resolved at most once per player.
type AssetResolver interface {
	ResolveAsset(info keyframe.AssetInfo) (Asset, error)
}

// Backend receives every externally visible effect of replay.
type Backend interface {
	CreateInstance(asset Asset, info keyframe.CreationInfo) (NodeHandle, error)
	DeleteInstance(node NodeHandle)
	ClearInstances(nodes map[keyframe.Key]NodeHandle)
	SetTransform(node NodeHandle, t keyframe.Transform)
	SetMetadata(node NodeHandle, md keyframe.InstanceMetadata)
	ChangeLights(lights []keyframe.LightInfo)
	CreateRig(id int, boneNames []string)
	DeleteRig(id int)
	SetRigPose(id int, pose []keyframe.Transform)
}

// NopBackend ignores every call. Embed it to implement only part of
// Backend.
type NopBackend struct{}

var _ Backend = NopBackend{}

func (NopBackend) CreateInstance(Asset, keyframe.CreationInfo) (NodeHandle, error) {
	return nil, nil
}
func (NopBackend) DeleteInstance(NodeHandle) {}
func (NopBackend) ClearInstances(map[keyframe.Key]NodeHandle) {}
func (NopBackend) SetTransform(NodeHandle, keyframe.Transform) {}
func (NopBackend) SetMetadata(NodeHandle, keyframe.InstanceMetadata) {}
func (NopBackend) ChangeLights([]keyframe.LightInfo) {}
func (NopBackend) CreateRig(int, []string) {}
func (NopBackend) DeleteRig(int) {}
func (NopBackend) SetRigPose(int, []keyframe.Transform) {}

// PassthroughResolver resolves every asset to its own AssetInfo.
type PassthroughResolver struct{}

// ResolveAsset implements AssetResolver.
func (PassthroughResolver) ResolveAsset(info keyframe.AssetInfo) (Asset, error) {
	return info, nil
}
