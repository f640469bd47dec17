package harness

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/roach88/kfreplay/internal/keyframe"
)

// Scenario is a scripted recording session plus what it should produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Assets are registered with the scene before the first step. They are
	// announced to the recorder on first use unless Preload is set.
	Assets []AssetSpec `yaml:"assets,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Expect is checked after the last step.
	Expect Expect `yaml:"expect,omitempty"`
}

// AssetSpec declares an asset the scene can instantiate.
type AssetSpec struct {
	Path    string `yaml:"path"`
	Type    string `yaml:"type,omitempty"` // defaults to mesh
	Preload bool   `yaml:"preload,omitempty"`
}

// TransformSpec is a YAML transform. Rotation is [w, x, y, z].
type TransformSpec struct {
	Translation []float32 `yaml:"translation,omitempty"`
	Rotation    []float32 `yaml:"rotation,omitempty"`
}

// NodeStep adds a plain transform node.
type NodeStep struct {
	Name          string `yaml:"name"`
	Parent        string `yaml:"parent,omitempty"`
	TransformSpec `yaml:",inline"`
}

// CreateStep adds an instance node.
type CreateStep struct {
	Name          string    `yaml:"name"`
	Asset         string    `yaml:"asset"`
	Parent        string    `yaml:"parent,omitempty"`
	Scale         []float32 `yaml:"scale,omitempty"`
	Rig           *int      `yaml:"rig,omitempty"`
	Static        bool      `yaml:"static,omitempty"`
	TransformSpec `yaml:",inline"`
}

// MoveStep sets a node's local transform.
type MoveStep struct {
	Name          string `yaml:"name"`
	TransformSpec `yaml:",inline"`
}

// MetadataStep sets a node's classification ids. Omitted ids are undefined.
type MetadataStep struct {
	Name       string `yaml:"name"`
	ObjectID   *int   `yaml:"object_id,omitempty"`
	SemanticID *int   `yaml:"semantic_id,omitempty"`
}

// RigStep creates a rig whose bones hang under Parent.
type RigStep struct {
	ID     int      `yaml:"id"`
	Bones  []string `yaml:"bones"`
	Parent string   `yaml:"parent,omitempty"`
}

// PoseStep sets every bone's local transform.
type PoseStep struct {
	ID   int             `yaml:"id"`
	Pose []TransformSpec `yaml:"pose"`
}

// LightSpec is a YAML light.
type LightSpec struct {
	Vector []float32 `yaml:"vector"`
	Color  []float32 `yaml:"color"`
	Model  string    `yaml:"model,omitempty"` // defaults to global
}

// UserTransformStep records a named transform.
type UserTransformStep struct {
	Name          string `yaml:"name"`
	TransformSpec `yaml:",inline"`
}

// Step is one scenario action. Exactly one action field is set.
type Step struct {
	Node          *NodeStep          `yaml:"node,omitempty"`
	Create        *CreateStep        `yaml:"create,omitempty"`
	Move          *MoveStep          `yaml:"move,omitempty"`
	Metadata      *MetadataStep      `yaml:"metadata,omitempty"`
	Remove        string             `yaml:"remove,omitempty"`
	Rig           *RigStep           `yaml:"rig,omitempty"`
	Pose          *PoseStep          `yaml:"pose,omitempty"`
	Lights        *[]LightSpec       `yaml:"lights,omitempty"`
	UserTransform *UserTransformStep `yaml:"user_transform,omitempty"`
	Save          bool               `yaml:"save,omitempty"`
	Consolidate   bool               `yaml:"consolidate,omitempty"`
	// Reapply applies an already saved keyframe to the player again.
	Reapply *int `yaml:"reapply,omitempty"`

	// Error, when set, makes the step expected to fail with an error
	// containing this text.
	Error string `yaml:"error,omitempty"`
}

// Op names the action the step performs.
func (s Step) Op() string {
	ops := s.ops()
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

func (s Step) ops() []string {
	var ops []string
	add := func(set bool, op string) {
		if set {
			ops = append(ops, op)
		}
	}
	add(s.Node != nil, "node")
	add(s.Create != nil, "create")
	add(s.Move != nil, "move")
	add(s.Metadata != nil, "metadata")
	add(s.Remove != "", "remove")
	add(s.Rig != nil, "rig")
	add(s.Pose != nil, "pose")
	add(s.Lights != nil, "lights")
	add(s.UserTransform != nil, "user_transform")
	add(s.Save, "save")
	add(s.Consolidate, "consolidate")
	add(s.Reapply != nil, "reapply")
	return ops
}

// Expect lists what must hold once every step has run.
type Expect struct {
	// Keyframes is the number of saved keyframes, if set.
	Keyframes *int `yaml:"keyframes,omitempty"`

	// Instances lists node names whose instances must (or must not) be
	// live in the player.
	Instances InstanceExpect `yaml:"instances,omitempty"`

	// UserTransforms lists names the player must know.
	UserTransforms []string `yaml:"user_transforms,omitempty"`

	// Violations is the exact sequence of violation codes the player must
	// report. Empty means none.
	Violations []string `yaml:"violations,omitempty"`
}

// InstanceExpect names present and absent instances.
type InstanceExpect struct {
	Present []string `yaml:"present,omitempty"`
	Absent  []string `yaml:"absent,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, a := range s.Assets {
		if a.Path == "" {
			return fmt.Errorf("assets[%d]: path is required", i)
		}
		if _, err := assetType(a.Type); err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	ops := step.ops()
	switch len(ops) {
	case 0:
		return fmt.Errorf("no action set")
	case 1:
	default:
		return fmt.Errorf("exactly one action allowed, got %v", ops)
	}

	check := func(ts TransformSpec) error {
		_, err := ts.transform()
		return err
	}

	switch {
	case step.Node != nil:
		if step.Node.Name == "" {
			return fmt.Errorf("node: name is required")
		}
		return check(step.Node.TransformSpec)
	case step.Create != nil:
		if step.Create.Name == "" || step.Create.Asset == "" {
			return fmt.Errorf("create: name and asset are required")
		}
		if step.Create.Scale != nil && len(step.Create.Scale) != 3 {
			return fmt.Errorf("create: scale needs 3 values, got %d", len(step.Create.Scale))
		}
		return check(step.Create.TransformSpec)
	case step.Move != nil:
		if step.Move.Name == "" {
			return fmt.Errorf("move: name is required")
		}
		return check(step.Move.TransformSpec)
	case step.Metadata != nil:
		if step.Metadata.Name == "" {
			return fmt.Errorf("metadata: name is required")
		}
	case step.Rig != nil:
		if len(step.Rig.Bones) == 0 {
			return fmt.Errorf("rig: bones list is required")
		}
	case step.Pose != nil:
		for i, ts := range step.Pose.Pose {
			if err := check(ts); err != nil {
				return fmt.Errorf("pose[%d]: %w", i, err)
			}
		}
	case step.Lights != nil:
		for i, l := range *step.Lights {
			if _, err := l.light(); err != nil {
				return fmt.Errorf("lights[%d]: %w", i, err)
			}
		}
	case step.UserTransform != nil:
		if step.UserTransform.Name == "" {
			return fmt.Errorf("user_transform: name is required")
		}
		return check(step.UserTransform.TransformSpec)
	case step.Reapply != nil:
		if *step.Reapply < 0 {
			return fmt.Errorf("reapply: index must be non-negative")
		}
	}
	return nil
}

func (ts TransformSpec) transform() (keyframe.Transform, error) {
	t := keyframe.IdentityTransform()
	switch len(ts.Translation) {
	case 0:
	case 3:
		t.Translation = mgl32.Vec3{ts.Translation[0], ts.Translation[1], ts.Translation[2]}
	default:
		return t, fmt.Errorf("translation needs 3 values, got %d", len(ts.Translation))
	}
	switch len(ts.Rotation) {
	case 0:
	case 4:
		t.Rotation = mgl32.Quat{W: ts.Rotation[0], V: mgl32.Vec3{ts.Rotation[1], ts.Rotation[2], ts.Rotation[3]}}
	default:
		return t, fmt.Errorf("rotation needs 4 values, got %d", len(ts.Rotation))
	}
	return t, nil
}

func (l LightSpec) light() (keyframe.LightInfo, error) {
	if len(l.Vector) != 4 {
		return keyframe.LightInfo{}, fmt.Errorf("vector needs 4 values, got %d", len(l.Vector))
	}
	if len(l.Color) != 3 {
		return keyframe.LightInfo{}, fmt.Errorf("color needs 3 values, got %d", len(l.Color))
	}
	model := keyframe.LightPositionModel(l.Model)
	switch model {
	case "":
		model = keyframe.LightGlobal
	case keyframe.LightGlobal, keyframe.LightCamera, keyframe.LightObject:
	default:
		return keyframe.LightInfo{}, fmt.Errorf("unknown light model %q", l.Model)
	}
	return keyframe.LightInfo{
		Vector: mgl32.Vec4{l.Vector[0], l.Vector[1], l.Vector[2], l.Vector[3]},
		Color:  mgl32.Vec3{l.Color[0], l.Color[1], l.Color[2]},
		Model:  model,
	}, nil
}

func assetType(s string) (keyframe.AssetType, error) {
	switch t := keyframe.AssetType(s); t {
	case "":
		return keyframe.AssetMesh, nil
	case keyframe.AssetUnknown, keyframe.AssetMesh, keyframe.AssetInstanceMesh, keyframe.AssetPrimitive:
		return t, nil
	default:
		return "", fmt.Errorf("unknown asset type %q", s)
	}
}
