package testutil

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/kfreplay/internal/keyframe"
	"github.com/roach88/kfreplay/internal/player"
)

// RecordingBackend is a player.Backend that logs every call as a line of
// text, in call order. Handles are sequential ints starting at 1.
//
// Tests assert on Calls() to check exactly which effects reached the
// renderer.
type RecordingBackend struct {
	mu    sync.Mutex
	calls []string
	next  int

	// FailCreate makes CreateInstance fail for the given asset filepaths.
	FailCreate map[string]error
}

var _ player.Backend = (*RecordingBackend)(nil)

// NewRecordingBackend creates an empty RecordingBackend.
func NewRecordingBackend() *RecordingBackend {
	return &RecordingBackend{}
}

func (b *RecordingBackend) record(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the call log.
func (b *RecordingBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// Reset empties the call log.
func (b *RecordingBackend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

func (b *RecordingBackend) CreateInstance(asset player.Asset, info keyframe.CreationInfo) (player.NodeHandle, error) {
	if err := b.FailCreate[info.Filepath]; err != nil {
		b.record("create %s failed", info.Filepath)
		return nil, err
	}
	b.mu.Lock()
	b.next++
	h := b.next
	b.mu.Unlock()
	b.record("create %s -> %d", info.Filepath, h)
	return h, nil
}

func (b *RecordingBackend) DeleteInstance(node player.NodeHandle) {
	b.record("delete %v", node)
}

func (b *RecordingBackend) ClearInstances(nodes map[keyframe.Key]player.NodeHandle) {
	keys := make([]int, 0, len(nodes))
	for k := range nodes {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	b.record("clear %v", keys)
}

func (b *RecordingBackend) SetTransform(node player.NodeHandle, t keyframe.Transform) {
	b.record("transform %v %v", node, t.Translation)
}

func (b *RecordingBackend) SetMetadata(node player.NodeHandle, md keyframe.InstanceMetadata) {
	b.record("metadata %v %d/%d", node, md.ObjectID, md.SemanticID)
}

func (b *RecordingBackend) ChangeLights(lights []keyframe.LightInfo) {
	b.record("lights %d", len(lights))
}

func (b *RecordingBackend) CreateRig(id int, boneNames []string) {
	b.record("rig create %d %v", id, boneNames)
}

func (b *RecordingBackend) DeleteRig(id int) {
	b.record("rig delete %d", id)
}

func (b *RecordingBackend) SetRigPose(id int, pose []keyframe.Transform) {
	b.record("rig pose %d %d", id, len(pose))
}

// CountingResolver is a player.AssetResolver that counts resolutions per
// filepath and fails for paths listed in Fail.
type CountingResolver struct {
	mu     sync.Mutex
	counts map[string]int
	Fail   map[string]error
}

// NewCountingResolver creates an empty CountingResolver.
func NewCountingResolver() *CountingResolver {
	return &CountingResolver{counts: make(map[string]int)}
}

// ResolveAsset implements player.AssetResolver.
func (r *CountingResolver) ResolveAsset(info keyframe.AssetInfo) (player.Asset, error) {
	if err := r.Fail[info.Filepath]; err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[info.Filepath]++
	return info.Filepath, nil
}

// Count returns how many times path was resolved.
func (r *CountingResolver) Count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[path]
}
