package recorder

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/kfreplay/internal/keyframe"
)

// Node is a live scene object the recorder can observe.
//
// Implementations must be comparable (typically pointers): the recorder
// indexes tracked nodes by identity.
type Node interface {
	AbsoluteTransform() keyframe.Transform
	Metadata() keyframe.InstanceMetadata
}

// Rig describes a skeleton. BoneNames and Bones are parallel.
type Rig struct {
	BoneNames []string
	Bones     []Node
}

// AssetLookup resolves an asset filepath to its load description.
type AssetLookup interface {
	LookupAsset(filepath string) (keyframe.AssetInfo, bool)
}

// LightSource reports the scene's current light set.
type LightSource interface {
	Lights() []keyframe.LightInfo
}

type instanceRecord struct {
	key      keyframe.Key
	node     Node
	creation keyframe.CreationInfo
	state    *keyframe.InstanceState    // last emitted, nil if never
	metadata *keyframe.InstanceMetadata // last emitted, nil if never
}

type rigRecord struct {
	id        int
	boneNames []string
	bones     []Node
	pose  []keyframe.Transform // last emitted, nil if never
}

// Recorder builds keyframes by diffing the live scene against a shadow of
// what it has already emitted.
//
// Not safe for concurrent use. See the package documentation.
type Recorder struct {
	logger      *slog.Logger
	lookup      AssetLookup
	lightSource LightSource
	keys        *keyAllocator

	// open keyframe
	curr        keyframe.Keyframe
	currCreated map[keyframe.Key]bool

	// shadow table
	order    []keyframe.Key
	byKey    map[keyframe.Key]*instanceRecord
	byNode   map[Node]keyframe.Key
	rigOrder []int
	rigs     map[int]*rigRecord
	rigIDs   map[int]bool // every rig id ever announced
	assetSet map[string]bool
	assets   []keyframe.AssetInfo // announced, in order

	lights        []keyframe.LightInfo // current explicit set
	lastLights    []keyframe.LightInfo // last emitted set
	userTransform map[string]keyframe.Transform // latest value per name, for consolidation

	saved []keyframe.Keyframe
	err   error
}

// New creates a Recorder with an empty scene and an open, empty keyframe.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		logger:        slog.Default(),
		keys:          newKeyAllocatorAt(0),
		currCreated:   make(map[keyframe.Key]bool),
		byKey:         make(map[keyframe.Key]*instanceRecord),
		byNode:        make(map[Node]keyframe.Key),
		rigs:          make(map[int]*rigRecord),
		rigIDs:        make(map[int]bool),
		assetSet:      make(map[string]bool),
		userTransform: make(map[string]keyframe.Transform),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Err returns the fatal error that poisoned the recorder, if any.
func (r *Recorder) Err() error {
	return r.err
}

// fail poisons the recorder. The first error wins.
func (r *Recorder) fail(err *InvariantError) error {
	if r.err == nil {
		r.err = err
		invariantErrorsTotal.Inc()
		r.logger.Error("recording aborted",
			"op", err.Op,
			"key", int32(err.Key),
			"rig_id", err.RigID,
			"error", err.Message)
	}
	return r.err
}

// OnLoadAsset announces an asset. Repeat announcements of the same filepath
// are ignored for the rest of the session.
func (r *Recorder) OnLoadAsset(info keyframe.AssetInfo) error {
	if r.err != nil {
		return r.err
	}
	r.announce(info)
	return nil
}

func (r *Recorder) announce(info keyframe.AssetInfo) {
	if r.assetSet[info.Filepath] {
		return
	}
	r.assetSet[info.Filepath] = true
	r.assets = append(r.assets, info)
	r.curr.Loads = append(r.curr.Loads, info)
}

// OnCreateInstance starts tracking node and returns its new key.
//
// If the asset was never announced it is looked up and announced in the
// same keyframe. Without a lookup, or when the lookup misses, the call
// fails with ErrUnknownAsset and nothing is recorded.
func (r *Recorder) OnCreateInstance(node Node, creation keyframe.CreationInfo) (keyframe.Key, error) {
	if r.err != nil {
		return 0, r.err
	}
	if key, ok := r.byNode[node]; ok {
		return 0, r.fail(newInstanceError("create_instance", key, "node is already tracked"))
	}
	if err := checkTransform(node.AbsoluteTransform()); err != nil {
		return 0, fmt.Errorf("create instance of %q: %w", creation.Filepath, err)
	}

	if !r.assetSet[creation.Filepath] {
		var info keyframe.AssetInfo
		var found bool
		if r.lookup != nil {
			info, found = r.lookup.LookupAsset(creation.Filepath)
		}
		if !found {
			return 0, fmt.Errorf("create instance of %q: %w", creation.Filepath, ErrUnknownAsset)
		}
		info.Filepath = creation.Filepath
		r.announce(info)
	}

	key, ok := r.keys.Next()
	if !ok {
		return 0, r.fail(newInstanceError("create_instance", r.keys.Peek(), "instance key space exhausted"))
	}

	r.byKey[key] = &instanceRecord{key: key, node: node, creation: creation.Clone()}
	r.byNode[node] = key
	r.order = append(r.order, key)
	r.curr.Creations = append(r.curr.Creations, keyframe.Creation{Key: key, Info: creation.Clone()})
	r.currCreated[key] = true

	r.logger.Debug("instance created", "key", int32(key), "filepath", creation.Filepath)
	return key, nil
}

// OnRemoveInstance stops tracking node and queues its deletion. An instance
// created in the still-open keyframe was never observable, so its creation
// is withdrawn instead.
func (r *Recorder) OnRemoveInstance(node Node) error {
	if r.err != nil {
		return r.err
	}
	key, ok := r.byNode[node]
	if !ok {
		return r.fail(newInstanceError("remove_instance", -1, "node is not tracked"))
	}
	return r.remove(key)
}

// OnHideScene removes every tracked node in nodes. Untracked nodes are
// skipped.
func (r *Recorder) OnHideScene(nodes ...Node) error {
	if r.err != nil {
		return r.err
	}
	for _, n := range nodes {
		key, ok := r.byNode[n]
		if !ok {
			continue
		}
		if err := r.remove(key); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) remove(key keyframe.Key) error {
	rec, ok := r.byKey[key]
	if !ok {
		return r.fail(newInstanceError("remove_instance", key, "instance missing from shadow table"))
	}
	idx := slices.Index(r.order, key)
	if idx < 0 {
		return r.fail(newInstanceError("remove_instance", key, "instance missing from creation order"))
	}
	r.order = slices.Delete(r.order, idx, idx+1)
	delete(r.byKey, key)
	delete(r.byNode, rec.node)

	rigID := rec.creation.RigID
	if rigID != keyframe.IDUndefined {
		r.dropRig(rigID)
	}

	if r.currCreated[key] {
		delete(r.currCreated, key)
		r.curr.Creations = slices.DeleteFunc(r.curr.Creations, func(c keyframe.Creation) bool {
			return c.Key == key
		})
		// A rig announced in the same keyframe has no owner left.
		if rigID != keyframe.IDUndefined {
			r.curr.RigCreations = slices.DeleteFunc(r.curr.RigCreations, func(rc keyframe.RigCreation) bool {
				return rc.ID == rigID
			})
		}
		r.logger.Debug("instance creation withdrawn", "key", int32(key))
		return nil
	}
	r.curr.Deletions = append(r.curr.Deletions, key)
	r.logger.Debug("instance removed", "key", int32(key))
	return nil
}

func (r *Recorder) dropRig(id int) {
	if _, ok := r.rigs[id]; !ok {
		return
	}
	delete(r.rigs, id)
	r.rigOrder = slices.DeleteFunc(r.rigOrder, func(v int) bool { return v == id })
}

// OnCreateRig announces a rig. Its creation is emitted once; its pose is
// diffed at every frame boundary while it is tracked.
func (r *Recorder) OnCreateRig(id int, rig Rig) error {
	if r.err != nil {
		return r.err
	}
	if r.rigIDs[id] {
		return r.fail(newRigError("create_rig", id, "rig id already announced"))
	}
	if len(rig.BoneNames) != len(rig.Bones) {
		return r.fail(newRigError("create_rig", id,
			fmt.Sprintf("%d bone names for %d bones", len(rig.BoneNames), len(rig.Bones))))
	}
	if err := checkNames(rig.BoneNames); err != nil {
		return fmt.Errorf("create rig %d: %w", id, err)
	}
	r.rigIDs[id] = true
	r.rigs[id] = &rigRecord{id: id, boneNames: slices.Clone(rig.BoneNames), bones: slices.Clone(rig.Bones)}
	r.rigOrder = append(r.rigOrder, id)
	r.curr.RigCreations = append(r.curr.RigCreations, keyframe.RigCreation{
		ID:        id,
		BoneNames: slices.Clone(rig.BoneNames),
	})
	return nil
}

// AddUserTransform records a named transform in the open keyframe,
// overwriting any earlier value with the same name.
func (r *Recorder) AddUserTransform(name string, t keyframe.Transform) error {
	if r.err != nil {
		return r.err
	}
	if err := checkNames([]string{name}); err != nil {
		return fmt.Errorf("add user transform: %w", err)
	}
	if err := checkTransform(t); err != nil {
		return fmt.Errorf("add user transform %q: %w", name, err)
	}
	if r.curr.UserTransforms == nil {
		r.curr.UserTransforms = make(map[string]keyframe.Transform)
	}
	r.curr.UserTransforms[name] = t
	r.userTransform[name] = t
	return nil
}

// SetLights replaces the scene's light set. The set is emitted at the next
// frame boundary only if it differs from the last emitted one.
func (r *Recorder) SetLights(lights []keyframe.LightInfo) error {
	if r.err != nil {
		return r.err
	}
	r.lights = slices.Clone(lights)
	return nil
}

// SaveKeyframe closes the open keyframe, appends it to the saved list and
// returns a copy. A new empty keyframe is opened.
func (r *Recorder) SaveKeyframe() (keyframe.Keyframe, error) {
	kf, err := r.closeKeyframe()
	if err != nil {
		return keyframe.Keyframe{}, err
	}
	r.saved = append(r.saved, kf)
	observeKeyframe(kf)
	r.logger.Debug("keyframe saved",
		"index", len(r.saved)-1,
		"entries", kf.EntryCount())
	return kf.Clone(), nil
}

// ExtractKeyframe closes the open keyframe and returns it without saving.
func (r *Recorder) ExtractKeyframe() (keyframe.Keyframe, error) {
	kf, err := r.closeKeyframe()
	if err != nil {
		return keyframe.Keyframe{}, err
	}
	observeKeyframe(kf)
	return kf, nil
}

func (r *Recorder) closeKeyframe() (keyframe.Keyframe, error) {
	if r.err != nil {
		return keyframe.Keyframe{}, r.err
	}
	if err := r.diff(); err != nil {
		return keyframe.Keyframe{}, err
	}
	kf := r.curr
	r.curr = keyframe.Keyframe{}
	clear(r.currCreated)
	return kf, nil
}

// diff appends state, metadata, pose and light entries for everything that
// changed since it was last emitted.
func (r *Recorder) diff() error {
	for _, key := range r.order {
		rec, ok := r.byKey[key]
		if !ok {
			return r.fail(newInstanceError("state_update", key, "instance missing from shadow table"))
		}
		state := keyframe.InstanceState{AbsTransform: rec.node.AbsoluteTransform()}
		if err := checkTransform(state.AbsTransform); err != nil {
			return r.fail(newInstanceError("state_update", key, err.Error()))
		}
		if rec.state == nil || *rec.state != state {
			r.curr.StateUpdates = append(r.curr.StateUpdates, keyframe.StateUpdate{Key: key, State: state})
			rec.state = &state
		}
		md := rec.node.Metadata()
		if rec.metadata == nil || *rec.metadata != md {
			r.curr.Metadata = append(r.curr.Metadata, keyframe.MetadataUpdate{Key: key, Metadata: md})
			rec.metadata = &md
		}
	}

	for _, id := range r.rigOrder {
		rig, ok := r.rigs[id]
		if !ok {
			return r.fail(newRigError("rig_update", id, "rig missing from shadow table"))
		}
		pose := make([]keyframe.Transform, len(rig.bones))
		for i, b := range rig.bones {
			pose[i] = b.AbsoluteTransform()
			if err := checkTransform(pose[i]); err != nil {
				return r.fail(newRigError("rig_update", id, fmt.Sprintf("bone %d: %v", i, err)))
			}
		}
		if rig.pose != nil && len(rig.pose) != len(pose) {
			return r.fail(newRigError("rig_update", id, "pose length changed"))
		}
		if rig.pose == nil || !keyframe.PosesEqual(rig.pose, pose) {
			r.curr.RigUpdates = append(r.curr.RigUpdates, keyframe.RigUpdate{ID: id, Pose: pose})
			rig.pose = pose
		}
	}

	lights := r.lights
	if r.lightSource != nil {
		lights = r.lightSource.Lights()
	}
	changed := !keyframe.LightsEqual(lights, r.lastLights)
	if changed {
		r.curr.LightsChanged = true
		r.curr.Lights = slices.Clone(lights)
		r.lastLights = slices.Clone(lights)
	}
	return nil
}

// LatestKeyframe returns a copy of the most recently saved keyframe.
func (r *Recorder) LatestKeyframe() (keyframe.Keyframe, bool) {
	if len(r.saved) == 0 {
		return keyframe.Keyframe{}, false
	}
	return r.saved[len(r.saved)-1].Clone(), true
}

// SavedKeyframes returns copies of every saved keyframe, oldest first.
func (r *Recorder) SavedKeyframes() []keyframe.Keyframe {
	out := make([]keyframe.Keyframe, len(r.saved))
	for i, kf := range r.saved {
		out[i] = kf.Clone()
	}
	return out
}

// TakeIncremental hands out the saved keyframes and clears the list.
func (r *Recorder) TakeIncremental() []keyframe.Keyframe {
	out := r.saved
	r.saved = nil
	return out
}

// Consolidate hands out the saved keyframes and rebuilds the open keyframe
// from the live scene, so the next saved keyframe recreates everything on a
// fresh (or cleared) player.
//
// The rebuilt keyframe loads every announced asset, creates every live rig
// and instance in creation order, and carries user transforms at their
// latest value. It holds no deletions: removed instances are simply absent.
// State, metadata, pose and light shadows are reset, so the next keyframe
// also carries the full current state. Keyframes handed out earlier by
// ExtractKeyframe or TakeIncremental do not need to be saved for this to
// hold.
func (r *Recorder) Consolidate() []keyframe.Keyframe {
	out := r.saved
	r.saved = nil
	if r.err != nil {
		return out
	}

	var rebuilt keyframe.Keyframe
	for _, info := range r.assets {
		rebuilt.Loads = append(rebuilt.Loads, info)
	}
	for _, id := range r.rigOrder {
		rig := r.rigs[id]
		rebuilt.RigCreations = append(rebuilt.RigCreations, keyframe.RigCreation{
			ID:        id,
			BoneNames: slices.Clone(rig.boneNames),
		})
	}
	clear(r.currCreated)
	for _, key := range r.order {
		rec := r.byKey[key]
		rebuilt.Creations = append(rebuilt.Creations, keyframe.Creation{Key: key, Info: rec.creation.Clone()})
		r.currCreated[key] = true
		rec.state = nil
		rec.metadata = nil
	}
	if len(r.userTransform) > 0 {
		rebuilt.UserTransforms = make(map[string]keyframe.Transform, len(r.userTransform))
		for name, t := range r.userTransform {
			rebuilt.UserTransforms[name] = t
		}
	}
	if n := len(r.curr.Deletions); n > 0 {
		r.logger.Debug("pending deletions folded into consolidation", "deletions", n)
	}

	r.curr = rebuilt
	for _, rig := range r.rigs {
		rig.pose = nil
	}
	// A fresh player has no lights yet.
	r.lastLights = nil

	r.logger.Debug("keyframes consolidated",
		"keyframes", len(out),
		"creations", len(r.curr.Creations))
	return out
}

// NumTracked returns the number of live instances.
func (r *Recorder) NumTracked() int {
	return len(r.order)
}

// KeyOf returns the key assigned to node.
func (r *Recorder) KeyOf(node Node) (keyframe.Key, bool) {
	key, ok := r.byNode[node]
	return key, ok
}
