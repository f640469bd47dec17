// Package scene is a small in-memory scene graph that drives a recorder.
//
// Nodes have a local transform and an optional parent; a node's absolute
// transform is its local transform composed with its parent's absolute
// transform. Instance nodes are bound to an asset and reported to an
// Observer, which is normally a *recorder.Recorder.
//
// The harness and the record command script scenes through this package.
package scene

import (
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/kfreplay/internal/keyframe"
	"github.com/roach88/kfreplay/internal/recorder"
)

// Observer is notified of structural scene changes.
type Observer interface {
	OnLoadAsset(info keyframe.AssetInfo) error
	OnCreateInstance(node recorder.Node, creation keyframe.CreationInfo) (keyframe.Key, error)
	OnRemoveInstance(node recorder.Node) error
	OnCreateRig(id int, rig recorder.Rig) error
}

var _ Observer = (*recorder.Recorder)(nil)

// Node is a scene graph node.
type Node struct {
	name     string
	local    keyframe.Transform
	parent   *Node
	children []*Node
	metadata keyframe.InstanceMetadata

	instance bool
	creation keyframe.CreationInfo
	key      keyframe.Key
}

var _ recorder.Node = (*Node)(nil)

// Name returns the node's unique name.
func (n *Node) Name() string { return n.name }

// Local returns the node's transform relative to its parent.
func (n *Node) Local() keyframe.Transform { return n.local }

// AbsoluteTransform returns the node's local-to-world transform.
func (n *Node) AbsoluteTransform() keyframe.Transform {
	t := n.local
	for p := n.parent; p != nil; p = p.parent {
		t = t.Compose(p.local)
	}
	return t
}

// Metadata returns the node's classification ids.
func (n *Node) Metadata() keyframe.InstanceMetadata { return n.metadata }

// Key returns the recorder key of an instance node.
func (n *Node) Key() (keyframe.Key, bool) {
	return n.key, n.instance
}

// Creation returns how the instance node was created.
func (n *Node) Creation() keyframe.CreationInfo { return n.creation.Clone() }

type rigDef struct {
	id    int
	names []string
	bones []*Node
}

// Scene is a mutable scene graph. Not safe for concurrent use.
type Scene struct {
	observer Observer
	assets   map[string]keyframe.AssetInfo
	nodes    map[string]*Node
	roots    []*Node
	rigs     map[int]*rigDef
	lights   []keyframe.LightInfo
}

// New creates an empty scene. observer may be nil.
func New(observer Observer) *Scene {
	return &Scene{
		observer: observer,
		assets:   make(map[string]keyframe.AssetInfo),
		nodes:    make(map[string]*Node),
		rigs:     make(map[int]*rigDef),
	}
}

// RegisterAsset adds an asset to the registry without announcing it.
func (s *Scene) RegisterAsset(info keyframe.AssetInfo) {
	s.assets[info.Filepath] = info
}

// LookupAsset implements recorder.AssetLookup.
func (s *Scene) LookupAsset(path string) (keyframe.AssetInfo, bool) {
	info, ok := s.assets[path]
	return info, ok
}

// LoadAsset registers an asset and announces it to the observer.
func (s *Scene) LoadAsset(info keyframe.AssetInfo) error {
	s.RegisterAsset(info)
	if s.observer == nil {
		return nil
	}
	return s.observer.OnLoadAsset(info)
}

// Node returns the node with the given name.
func (s *Scene) Node(name string) (*Node, bool) {
	n, ok := s.nodes[name]
	return n, ok
}

// Instances returns every instance node, ordered by key.
func (s *Scene) Instances() []*Node {
	var out []*Node
	for _, n := range s.nodes {
		if n.instance {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func (s *Scene) attach(name, parent string, local keyframe.Transform) (*Node, error) {
	if name == "" {
		return nil, fmt.Errorf("node name is empty")
	}
	if _, ok := s.nodes[name]; ok {
		return nil, fmt.Errorf("node %q already exists", name)
	}
	n := &Node{name: name, local: local, metadata: keyframe.UndefinedMetadata()}
	if parent != "" {
		p, ok := s.nodes[parent]
		if !ok {
			return nil, fmt.Errorf("parent %q not found", parent)
		}
		n.parent = p
		p.children = append(p.children, n)
	} else {
		s.roots = append(s.roots, n)
	}
	s.nodes[name] = n
	return n, nil
}

func (s *Scene) detach(n *Node) {
	if n.parent != nil {
		n.parent.children = slices.DeleteFunc(n.parent.children, func(c *Node) bool { return c == n })
	} else {
		s.roots = slices.DeleteFunc(s.roots, func(c *Node) bool { return c == n })
	}
	delete(s.nodes, n.name)
}

// AddNode adds a plain transform node. An empty parent makes it a root.
func (s *Scene) AddNode(name, parent string, local keyframe.Transform) (*Node, error) {
	return s.attach(name, parent, local)
}

// CreateInstance adds an instance node and reports it to the observer. If
// the observer rejects it the node is not added.
func (s *Scene) CreateInstance(name, parent string, creation keyframe.CreationInfo, local keyframe.Transform) (*Node, error) {
	n, err := s.attach(name, parent, local)
	if err != nil {
		return nil, err
	}
	n.instance = true
	n.creation = creation.Clone()
	if s.observer != nil {
		key, err := s.observer.OnCreateInstance(n, creation)
		if err != nil {
			s.detach(n)
			return nil, fmt.Errorf("create instance %q: %w", name, err)
		}
		n.key = key
	}
	return n, nil
}

// Move sets a node's local transform.
func (s *Scene) Move(name string, local keyframe.Transform) error {
	n, ok := s.nodes[name]
	if !ok {
		return fmt.Errorf("node %q not found", name)
	}
	n.local = local
	return nil
}

// SetMetadata sets a node's classification ids.
func (s *Scene) SetMetadata(name string, md keyframe.InstanceMetadata) error {
	n, ok := s.nodes[name]
	if !ok {
		return fmt.Errorf("node %q not found", name)
	}
	n.metadata = md
	return nil
}

// Remove deletes a node and its whole subtree. Instance nodes in the
// subtree are reported to the observer in depth-first order.
func (s *Scene) Remove(name string) error {
	n, ok := s.nodes[name]
	if !ok {
		return fmt.Errorf("node %q not found", name)
	}
	var subtree []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		subtree = append(subtree, n)
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(n)

	for _, c := range subtree {
		if c.instance && s.observer != nil {
			if err := s.observer.OnRemoveInstance(c); err != nil {
				return fmt.Errorf("remove instance %q: %w", c.name, err)
			}
		}
	}
	for _, c := range subtree {
		delete(s.nodes, c.name)
	}
	s.detach(n)
	// A rig goes with its owning instance or with any of its bones.
	for _, c := range subtree {
		if c.instance && c.creation.RigID != keyframe.IDUndefined {
			delete(s.rigs, c.creation.RigID)
		}
	}
	for id, rig := range s.rigs {
		if slices.ContainsFunc(rig.bones, func(b *Node) bool { _, live := s.nodes[b.name]; return !live }) {
			delete(s.rigs, id)
		}
	}
	return nil
}

// BoneName returns the node name used for a rig bone.
func BoneName(rigID int, bone string) string {
	return fmt.Sprintf("rig%d/%s", rigID, bone)
}

// CreateRig adds one node per bone under parent and reports the rig to the
// observer. Bone nodes are named with BoneName.
func (s *Scene) CreateRig(id int, boneNames []string, parent string) error {
	if _, ok := s.rigs[id]; ok {
		return fmt.Errorf("rig %d already exists", id)
	}
	rig := &rigDef{id: id, names: slices.Clone(boneNames)}
	for _, bone := range boneNames {
		n, err := s.attach(BoneName(id, bone), parent, keyframe.IdentityTransform())
		if err != nil {
			for _, b := range rig.bones {
				s.detach(b)
			}
			return fmt.Errorf("create rig %d: %w", id, err)
		}
		rig.bones = append(rig.bones, n)
	}
	s.rigs[id] = rig
	if s.observer == nil {
		return nil
	}
	bones := make([]recorder.Node, len(rig.bones))
	for i, b := range rig.bones {
		bones[i] = b
	}
	return s.observer.OnCreateRig(id, recorder.Rig{BoneNames: slices.Clone(boneNames), Bones: bones})
}

// Pose sets the local transform of every bone of a rig.
func (s *Scene) Pose(id int, pose []keyframe.Transform) error {
	rig, ok := s.rigs[id]
	if !ok {
		return fmt.Errorf("rig %d not found", id)
	}
	if len(pose) != len(rig.bones) {
		return fmt.Errorf("rig %d has %d bones, pose has %d transforms", id, len(rig.bones), len(pose))
	}
	for i, t := range pose {
		rig.bones[i].local = t
	}
	return nil
}

// RigPose returns the absolute transform of every bone of a rig.
func (s *Scene) RigPose(id int) ([]keyframe.Transform, bool) {
	rig, ok := s.rigs[id]
	if !ok {
		return nil, false
	}
	out := make([]keyframe.Transform, len(rig.bones))
	for i, b := range rig.bones {
		out[i] = b.AbsoluteTransform()
	}
	return out, true
}

// RigIDs returns the ids of all rigs, ascending.
func (s *Scene) RigIDs() []int {
	ids := make([]int, 0, len(s.rigs))
	for id := range s.rigs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// SetLights replaces the light set.
func (s *Scene) SetLights(lights []keyframe.LightInfo) {
	s.lights = slices.Clone(lights)
}

// Lights implements recorder.LightSource.
func (s *Scene) Lights() []keyframe.LightInfo {
	return slices.Clone(s.lights)
}
