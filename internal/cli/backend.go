package cli

import (
	"log/slog"

	"github.com/roach88/kfreplay/internal/keyframe"
	"github.com/roach88/kfreplay/internal/player"
)

// logBackend is the renderer used by play and watch: it draws nothing and
// logs every call at debug level. Handles are sequential ints.
type logBackend struct {
	logger *slog.Logger
	next   int
}

var _ player.Backend = (*logBackend)(nil)

func newLogBackend(logger *slog.Logger) *logBackend {
	return &logBackend{logger: logger}
}

func (b *logBackend) CreateInstance(_ player.Asset, info keyframe.CreationInfo) (player.NodeHandle, error) {
	b.next++
	b.logger.Debug("create instance", "handle", b.next, "filepath", info.Filepath, "rig_id", info.RigID)
	return b.next, nil
}

func (b *logBackend) DeleteInstance(node player.NodeHandle) {
	b.logger.Debug("delete instance", "handle", node)
}

func (b *logBackend) ClearInstances(nodes map[keyframe.Key]player.NodeHandle) {
	b.logger.Debug("clear instances", "count", len(nodes))
}

func (b *logBackend) SetTransform(node player.NodeHandle, t keyframe.Transform) {
	b.logger.Debug("set transform", "handle", node, "translation", t.Translation)
}

func (b *logBackend) SetMetadata(node player.NodeHandle, md keyframe.InstanceMetadata) {
	b.logger.Debug("set metadata", "handle", node, "object_id", md.ObjectID, "semantic_id", md.SemanticID)
}

func (b *logBackend) ChangeLights(lights []keyframe.LightInfo) {
	b.logger.Debug("change lights", "count", len(lights))
}

func (b *logBackend) CreateRig(id int, boneNames []string) {
	b.logger.Debug("create rig", "rig_id", id, "bones", len(boneNames))
}

func (b *logBackend) DeleteRig(id int) {
	b.logger.Debug("delete rig", "rig_id", id)
}

func (b *logBackend) SetRigPose(id int, pose []keyframe.Transform) {
	b.logger.Debug("set rig pose", "rig_id", id, "bones", len(pose))
}
