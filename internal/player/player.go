package player

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/kfreplay/internal/keyframe"
)

// InstanceRecord is the reconstructed state of one live instance.
type InstanceRecord struct {
	Key         keyframe.Key
	Creation    keyframe.CreationInfo
	State       keyframe.InstanceState
	HasState    bool
	Metadata    keyframe.InstanceMetadata
	HasMetadata bool
	Handle      NodeHandle
}

type rigRecord struct {
	boneNames []string
	pose      []keyframe.Transform
}

// Player applies keyframes to a reconstructed state table.
//
// Not safe for concurrent use; keyframes must be applied strictly in order
// from a single goroutine.
type Player struct {
	backend  Backend
	resolver AssetResolver
	logger   *slog.Logger

	assets map[string]Asset // resolved, by filepath; survives Clear

	instances      map[keyframe.Key]*InstanceRecord
	retired        map[keyframe.Key]bool
	rigs           map[int]*rigRecord
	userTransforms map[string]keyframe.Transform
	lights         []keyframe.LightInfo
	lightsSet      bool

	keyframes []keyframe.Keyframe
	index     int
}

// New creates a Player. A nil backend means NopBackend; a nil resolver
// means PassthroughResolver.
func New(backend Backend, resolver AssetResolver, opts ...Option) *Player {
	if backend == nil {
		backend = NopBackend{}
	}
	if resolver == nil {
		resolver = PassthroughResolver{}
	}
	p := &Player{
		backend:  backend,
		resolver: resolver,
		logger:   slog.Default(),
		assets:   make(map[string]Asset),
		index:    -1,
	}
	p.reset()
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Player) reset() {
	p.instances = make(map[keyframe.Key]*InstanceRecord)
	p.retired = make(map[keyframe.Key]bool)
	p.rigs = make(map[int]*rigRecord)
	p.userTransforms = make(map[string]keyframe.Transform)
	p.lights = nil
	p.lightsSet = false
}

// Apply applies one keyframe. On error the remaining entries of the
// keyframe are skipped and the entries already applied stay applied.
func (p *Player) Apply(kf keyframe.Keyframe) error {
	err := p.apply(kf)
	instancesGauge.Set(float64(len(p.instances)))
	if err != nil {
		code := string(Code(err))
		if code == "" {
			code = "BACKEND"
		}
		violationsTotal.WithLabelValues(code).Inc()
		p.logger.Warn("keyframe aborted", "error", err)
		return err
	}
	keyframesApplied.Inc()
	return nil
}

func (p *Player) apply(kf keyframe.Keyframe) error {
	for i, info := range kf.Loads {
		if err := p.load(info); err != nil {
			return fmt.Errorf("loads[%d]: %w", i, err)
		}
	}
	for i, rc := range kf.RigCreations {
		if err := p.createRig(i, rc); err != nil {
			return err
		}
	}
	for i, c := range kf.Creations {
		if err := p.create(i, c); err != nil {
			return err
		}
	}
	for i, key := range kf.Deletions {
		if err := p.delete(i, key); err != nil {
			return err
		}
	}
	for i, m := range kf.Metadata {
		rec, ok := p.instances[m.Key]
		if !ok {
			return unknownKey("metadata", i, m.Key)
		}
		rec.Metadata = m.Metadata
		rec.HasMetadata = true
		p.backend.SetMetadata(rec.Handle, m.Metadata)
	}
	for i, u := range kf.StateUpdates {
		rec, ok := p.instances[u.Key]
		if !ok {
			return unknownKey("state_updates", i, u.Key)
		}
		rec.State = u.State
		rec.HasState = true
		p.backend.SetTransform(rec.Handle, u.State.AbsTransform)
	}
	for i, ru := range kf.RigUpdates {
		rig, ok := p.rigs[ru.ID]
		if !ok {
			return rigViolation(CodeUnknownRig, "rig_updates", i, ru.ID,
				fmt.Sprintf("unknown rig %d", ru.ID))
		}
		if len(ru.Pose) != len(rig.boneNames) {
			return rigViolation(CodePoseLengthMismatch, "rig_updates", i, ru.ID,
				fmt.Sprintf("pose has %d transforms, rig %d has %d bones", len(ru.Pose), ru.ID, len(rig.boneNames)))
		}
		rig.pose = slices.Clone(ru.Pose)
		p.backend.SetRigPose(ru.ID, slices.Clone(ru.Pose))
	}
	for name, t := range kf.UserTransforms {
		p.userTransforms[name] = t
	}
	if kf.LightsChanged {
		p.lights = slices.Clone(kf.Lights)
		p.lightsSet = true
		p.backend.ChangeLights(slices.Clone(kf.Lights))
	}
	return nil
}

func unknownKey(section string, index int, key keyframe.Key) *ProtocolViolation {
	return keyViolation(CodeUnknownKey, section, index, key, fmt.Sprintf("unknown key %d", key))
}

func (p *Player) load(info keyframe.AssetInfo) error {
	if _, ok := p.assets[info.Filepath]; ok {
		return nil
	}
	asset, err := p.resolver.ResolveAsset(info)
	if err != nil {
		return &BackendError{Op: "resolve asset " + info.Filepath, Err: err}
	}
	p.assets[info.Filepath] = asset
	p.logger.Debug("asset resolved", "filepath", info.Filepath)
	return nil
}

func (p *Player) createRig(i int, rc keyframe.RigCreation) error {
	if _, ok := p.rigs[rc.ID]; ok {
		return rigViolation(CodeDuplicateRig, "rig_creations", i, rc.ID,
			fmt.Sprintf("duplicate rig %d", rc.ID))
	}
	p.rigs[rc.ID] = &rigRecord{boneNames: slices.Clone(rc.BoneNames)}
	p.backend.CreateRig(rc.ID, slices.Clone(rc.BoneNames))
	return nil
}

func (p *Player) create(i int, c keyframe.Creation) error {
	if _, ok := p.instances[c.Key]; ok {
		return keyViolation(CodeDuplicateKey, "creations", i, c.Key,
			fmt.Sprintf("duplicate key %d", c.Key))
	}
	if p.retired[c.Key] {
		return keyViolation(CodeRetiredKey, "creations", i, c.Key,
			fmt.Sprintf("key %d was deleted earlier in the session", c.Key))
	}
	asset, ok := p.assets[c.Info.Filepath]
	if !ok {
		return keyViolation(CodeUnknownAsset, "creations", i, c.Key,
			fmt.Sprintf("asset %q was never loaded", c.Info.Filepath))
	}
	handle, err := p.backend.CreateInstance(asset, c.Info.Clone())
	if err != nil {
		return &BackendError{Op: fmt.Sprintf("create instance %d", c.Key), Err: err}
	}
	p.instances[c.Key] = &InstanceRecord{
		Key:      c.Key,
		Creation: c.Info.Clone(),
		Handle:   handle,
	}
	return nil
}

func (p *Player) delete(i int, key keyframe.Key) error {
	rec, ok := p.instances[key]
	if !ok {
		return unknownKey("deletions", i, key)
	}
	p.backend.DeleteInstance(rec.Handle)
	delete(p.instances, key)
	p.retired[key] = true
	if id := rec.Creation.RigID; id != keyframe.IDUndefined {
		if _, ok := p.rigs[id]; ok {
			delete(p.rigs, id)
			p.backend.DeleteRig(id)
		}
	}
	return nil
}

// Append adds keyframes to the end of the player's keyframe list without
// applying them.
func (p *Player) Append(kfs ...keyframe.Keyframe) {
	for _, kf := range kfs {
		p.keyframes = append(p.keyframes, kf.Clone())
	}
}

// NumKeyframes returns the length of the keyframe list.
func (p *Player) NumKeyframes() int {
	return len(p.keyframes)
}

// KeyframeIndex returns the index of the last applied keyframe in the list,
// or -1 if none has been applied.
func (p *Player) KeyframeIndex() int {
	return p.index
}

// SetKeyframeIndex moves playback to keyframe i. Moving forward applies the
// keyframes in between; moving backward clears the reconstructed state and
// replays from the first keyframe. -1 clears.
//
// Errors from individual keyframes are joined; every keyframe up to i is
// still attempted.
func (p *Player) SetKeyframeIndex(i int) error {
	if i < -1 || i >= len(p.keyframes) {
		return fmt.Errorf("keyframe index %d out of range [-1, %d)", i, len(p.keyframes))
	}
	if i < p.index {
		p.Clear()
	}
	var errs []error
	for j := p.index + 1; j <= i; j++ {
		if err := p.Apply(p.keyframes[j]); err != nil {
			errs = append(errs, fmt.Errorf("keyframe %d: %w", j, err))
		}
		p.index = j
	}
	return errors.Join(errs...)
}

// SetSingleKeyframe clears the player, replaces the keyframe list with kf
// and applies it.
func (p *Player) SetSingleKeyframe(kf keyframe.Keyframe) error {
	p.Clear()
	p.keyframes = []keyframe.Keyframe{kf.Clone()}
	return p.SetKeyframeIndex(0)
}

// Clear drops all reconstructed state. Resolved assets stay cached and the
// keyframe list is kept.
func (p *Player) Clear() {
	handles := make(map[keyframe.Key]NodeHandle, len(p.instances))
	for key, rec := range p.instances {
		handles[key] = rec.Handle
	}
	p.backend.ClearInstances(handles)
	for _, id := range sortedRigIDs(p.rigs) {
		p.backend.DeleteRig(id)
	}
	p.reset()
	p.index = -1
	instancesGauge.Set(0)
}

// Close clears the player and forgets its keyframe list.
func (p *Player) Close() {
	p.Clear()
	p.keyframes = nil
}

// Instance returns a copy of the record for key.
func (p *Player) Instance(key keyframe.Key) (InstanceRecord, bool) {
	rec, ok := p.instances[key]
	if !ok {
		return InstanceRecord{}, false
	}
	out := *rec
	out.Creation = rec.Creation.Clone()
	return out, true
}

// Keys returns the keys of all live instances in ascending order.
func (p *Player) Keys() []keyframe.Key {
	keys := make([]keyframe.Key, 0, len(p.instances))
	for k := range p.instances {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// UserTransform returns the latest value of a named user transform.
func (p *Player) UserTransform(name string) (keyframe.Transform, bool) {
	t, ok := p.userTransforms[name]
	return t, ok
}

// Lights returns the current light set. The boolean is false until a
// keyframe has set lights.
func (p *Player) Lights() ([]keyframe.LightInfo, bool) {
	return slices.Clone(p.lights), p.lightsSet
}

// RigPose returns the latest pose of a rig. The pose is nil if the rig
// exists but was never posed.
func (p *Player) RigPose(id int) ([]keyframe.Transform, bool) {
	rig, ok := p.rigs[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(rig.pose), true
}

func sortedRigIDs(rigs map[int]*rigRecord) []int {
	ids := make([]int, 0, len(rigs))
	for id := range rigs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
