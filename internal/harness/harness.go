package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/kfreplay/internal/keyframe"
	"github.com/roach88/kfreplay/internal/player"
	"github.com/roach88/kfreplay/internal/recorder"
	"github.com/roach88/kfreplay/internal/scene"
)

// Harness executes one scenario. It is created fresh for every Run.
type Harness struct {
	scene    *scene.Scene
	recorder *recorder.Recorder
	player   *player.Player
	logger   *slog.Logger

	keys           map[string]keyframe.Key // instance name -> key, kept after removal
	userTransforms map[string]keyframe.Transform
}

// sceneProxy lets the recorder read assets and lights from a scene that
// is created after it.
type sceneProxy struct {
	scene *scene.Scene
}

func (p *sceneProxy) LookupAsset(path string) (keyframe.AssetInfo, bool) {
	return p.scene.LookupAsset(path)
}

func (p *sceneProxy) Lights() []keyframe.LightInfo {
	return p.scene.Lights()
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	backend player.Backend
}

// WithLogger sets the logger for the recorder, player and harness.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBackend replays into backend instead of a no-op renderer.
func WithBackend(backend player.Backend) Option {
	return func(o *options) {
		o.backend = backend
	}
}

// Run executes a scenario and returns the result.
//
// Every run starts from an empty scene, a fresh recorder and a fresh
// player, so results are reproducible. An error is returned only when the
// scenario cannot be executed at all; failed checks are reported in the
// Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))} // Suppress logs by default
	for _, opt := range opts {
		opt(&o)
	}

	proxy := &sceneProxy{}
	rec := recorder.New(
		recorder.WithLogger(o.logger),
		recorder.WithAssetLookup(proxy),
		recorder.WithLightSource(proxy),
	)
	sc := scene.New(rec)
	proxy.scene = sc

	h := &Harness{
		scene:          sc,
		recorder:       rec,
		player:         player.New(o.backend, nil, player.WithLogger(o.logger)),
		logger:         o.logger,
		keys:           make(map[string]keyframe.Key),
		userTransforms: make(map[string]keyframe.Transform),
	}
	defer h.player.Close()

	result := NewResult()

	for _, a := range scenario.Assets {
		typ, err := assetType(a.Type)
		if err != nil {
			return nil, fmt.Errorf("asset %q: %w", a.Path, err)
		}
		info := keyframe.NewAssetInfo(a.Path)
		info.Type = typ
		if a.Preload {
			if err := sc.LoadAsset(info); err != nil {
				return nil, fmt.Errorf("preload asset %q: %w", a.Path, err)
			}
		} else {
			sc.RegisterAsset(info)
		}
	}

	for i, step := range scenario.Steps {
		if !h.runStep(i, step, result) {
			break
		}
	}

	if result.Pass {
		for _, msg := range evaluateExpect(h, result, scenario.Expect) {
			result.AddError(msg)
		}
	}

	hash, err := h.player.Snapshot().Hash()
	if err != nil {
		return nil, fmt.Errorf("hash final state: %w", err)
	}
	result.StateHash = hash
	return result, nil
}

// runStep executes one step. It returns false when the scenario must stop.
func (h *Harness) runStep(i int, step Step, result *Result) bool {
	op := step.Op()
	kfIndex := -1
	var err error

	switch {
	case step.Save:
		kfIndex, err = h.save(result)
	default:
		err = h.execute(step, result)
	}

	if step.Error != "" {
		if err == nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q, got none", i, op, step.Error))
			return false
		}
		if !strings.Contains(err.Error(), step.Error) {
			result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q, got %q", i, op, step.Error, err))
			return false
		}
		result.addTrace(i, op, kfIndex, err.Error())
		return true
	}
	if err != nil {
		result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, op, err))
		return false
	}

	result.addTrace(i, op, kfIndex, "")
	h.logger.Debug("step completed", "step", i, "op", op)
	return true
}

func (h *Harness) execute(step Step, result *Result) error {
	switch {
	case step.Node != nil:
		t, _ := step.Node.transform()
		_, err := h.scene.AddNode(step.Node.Name, step.Node.Parent, t)
		return err

	case step.Create != nil:
		c := step.Create
		t, _ := c.transform()
		info := keyframe.NewCreationInfo(c.Asset)
		if c.Scale != nil {
			info.Scale = &mgl32.Vec3{c.Scale[0], c.Scale[1], c.Scale[2]}
		}
		if c.Rig != nil {
			info.RigID = *c.Rig
		}
		if c.Static {
			info.Flags |= keyframe.FlagIsStatic
		}
		n, err := h.scene.CreateInstance(c.Name, c.Parent, info, t)
		if err != nil {
			return err
		}
		key, _ := n.Key()
		h.keys[c.Name] = key
		return nil

	case step.Move != nil:
		t, _ := step.Move.transform()
		return h.scene.Move(step.Move.Name, t)

	case step.Metadata != nil:
		md := keyframe.UndefinedMetadata()
		if step.Metadata.ObjectID != nil {
			md.ObjectID = *step.Metadata.ObjectID
		}
		if step.Metadata.SemanticID != nil {
			md.SemanticID = *step.Metadata.SemanticID
		}
		return h.scene.SetMetadata(step.Metadata.Name, md)

	case step.Remove != "":
		return h.scene.Remove(step.Remove)

	case step.Rig != nil:
		return h.scene.CreateRig(step.Rig.ID, step.Rig.Bones, step.Rig.Parent)

	case step.Pose != nil:
		pose := make([]keyframe.Transform, len(step.Pose.Pose))
		for i, ts := range step.Pose.Pose {
			pose[i], _ = ts.transform()
		}
		return h.scene.Pose(step.Pose.ID, pose)

	case step.Lights != nil:
		lights := make([]keyframe.LightInfo, 0, len(*step.Lights))
		for _, l := range *step.Lights {
			info, _ := l.light()
			lights = append(lights, info)
		}
		h.scene.SetLights(lights)
		return nil

	case step.UserTransform != nil:
		t, _ := step.UserTransform.transform()
		if err := h.recorder.AddUserTransform(step.UserTransform.Name, t); err != nil {
			return err
		}
		h.userTransforms[step.UserTransform.Name] = t
		return nil

	case step.Consolidate:
		h.recorder.Consolidate()
		// The next keyframe recreates everything, so replay restarts.
		h.player.Clear()
		return nil

	case step.Reapply != nil:
		idx := *step.Reapply
		if idx >= len(result.Keyframes) {
			return fmt.Errorf("keyframe %d not saved yet", idx)
		}
		h.apply(result.Keyframes[idx], result)
		return nil
	}
	return fmt.Errorf("no action set")
}

// save closes the open keyframe, replays it and checks fidelity.
func (h *Harness) save(result *Result) (int, error) {
	kf, err := h.recorder.SaveKeyframe()
	if err != nil {
		return -1, err
	}
	result.Keyframes = append(result.Keyframes, kf)
	idx := len(result.Keyframes) - 1

	if h.apply(kf, result) {
		for _, msg := range h.checkFidelity() {
			result.AddError(fmt.Sprintf("keyframe %d: %s", idx, msg))
		}
	}
	return idx, nil
}

// apply feeds kf to the player and records any violation. It returns
// false if the keyframe was aborted.
func (h *Harness) apply(kf keyframe.Keyframe, result *Result) bool {
	err := h.player.Apply(kf)
	if err == nil {
		return true
	}
	var v *player.ProtocolViolation
	if errors.As(err, &v) {
		result.Violations = append(result.Violations, string(v.Code))
		return false
	}
	result.Violations = append(result.Violations, err.Error())
	return false
}

// checkFidelity compares the player's reconstruction with the live scene.
func (h *Harness) checkFidelity() []string {
	var errs []string

	instances := h.scene.Instances()
	if got := len(h.player.Keys()); got != len(instances) {
		errs = append(errs, fmt.Sprintf("player has %d instances, scene has %d", got, len(instances)))
	}
	for _, n := range instances {
		key, _ := n.Key()
		rec, ok := h.player.Instance(key)
		if !ok {
			errs = append(errs, fmt.Sprintf("instance %q (key %d) missing from player", n.Name(), key))
			continue
		}
		if want := n.AbsoluteTransform(); !rec.HasState || rec.State.AbsTransform != want {
			errs = append(errs, fmt.Sprintf("instance %q: transform %v, want %v", n.Name(), rec.State.AbsTransform, want))
		}
		if want := n.Metadata(); !rec.HasMetadata || rec.Metadata != want {
			errs = append(errs, fmt.Sprintf("instance %q: metadata %+v, want %+v", n.Name(), rec.Metadata, want))
		}
	}

	sceneRigs := h.scene.RigIDs()
	if got := len(h.player.Snapshot().Rigs); got != len(sceneRigs) {
		errs = append(errs, fmt.Sprintf("player has %d rigs, scene has %d", got, len(sceneRigs)))
	}
	for _, id := range sceneRigs {
		want, _ := h.scene.RigPose(id)
		got, ok := h.player.RigPose(id)
		if !ok {
			errs = append(errs, fmt.Sprintf("rig %d missing from player", id))
			continue
		}
		if !keyframe.PosesEqual(got, want) {
			errs = append(errs, fmt.Sprintf("rig %d: pose %v, want %v", id, got, want))
		}
	}

	if lights, set := h.player.Lights(); set || len(h.scene.Lights()) > 0 {
		if !keyframe.LightsEqual(lights, h.scene.Lights()) {
			errs = append(errs, fmt.Sprintf("lights %v, want %v", lights, h.scene.Lights()))
		}
	}

	for name, want := range h.userTransforms {
		got, ok := h.player.UserTransform(name)
		if !ok || got != want {
			errs = append(errs, fmt.Sprintf("user transform %q: %v, want %v", name, got, want))
		}
	}
	return errs
}
