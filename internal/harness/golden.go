package harness

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/kfreplay/internal/keyframe"
)

// RunWithGolden executes a scenario and compares its rendered keyframe
// stream against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario could not be executed. A mismatch fails
// t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result's keyframes against a golden
// file without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Render(scenarioName, result.Keyframes))
}

// Render writes a keyframe stream as stable, line-oriented text. Sections
// appear in application order and user transforms are sorted by name.
func Render(name string, kfs []keyframe.Keyframe) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", name)
	for i, kf := range kfs {
		fmt.Fprintf(&b, "keyframe %d\n", i)
		if kf.IsEmpty() {
			b.WriteString("  (empty)\n")
			continue
		}
		for _, a := range kf.Loads {
			fmt.Fprintf(&b, "  load %s %s\n", a.Type, a.Filepath)
		}
		for _, rc := range kf.RigCreations {
			fmt.Fprintf(&b, "  rig %d [%s]\n", rc.ID, strings.Join(rc.BoneNames, " "))
		}
		for _, c := range kf.Creations {
			fmt.Fprintf(&b, "  create %d %s", c.Key, c.Info.Filepath)
			if c.Info.Scale != nil {
				fmt.Fprintf(&b, " scale=%s", floats(c.Info.Scale[:]...))
			}
			if c.Info.Flags != 0 {
				fmt.Fprintf(&b, " flags=%d", c.Info.Flags)
			}
			if c.Info.RigID != keyframe.IDUndefined {
				fmt.Fprintf(&b, " rig=%d", c.Info.RigID)
			}
			b.WriteString("\n")
		}
		for _, key := range kf.Deletions {
			fmt.Fprintf(&b, "  delete %d\n", key)
		}
		for _, m := range kf.Metadata {
			fmt.Fprintf(&b, "  metadata %d object=%d semantic=%d\n", m.Key, m.Metadata.ObjectID, m.Metadata.SemanticID)
		}
		for _, s := range kf.StateUpdates {
			fmt.Fprintf(&b, "  state %d %s\n", s.Key, transform(s.State.AbsTransform))
		}
		for _, ru := range kf.RigUpdates {
			fmt.Fprintf(&b, "  pose %d\n", ru.ID)
			for _, t := range ru.Pose {
				fmt.Fprintf(&b, "    %s\n", transform(t))
			}
		}
		names := make([]string, 0, len(kf.UserTransforms))
		for name := range kf.UserTransforms {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  user %s %s\n", name, transform(kf.UserTransforms[name]))
		}
		if kf.LightsChanged {
			fmt.Fprintf(&b, "  lights %d\n", len(kf.Lights))
			for _, l := range kf.Lights {
				fmt.Fprintf(&b, "    vector=%s color=%s model=%s\n", floats(l.Vector[:]...), floats(l.Color[:]...), l.Model)
			}
		}
	}
	return []byte(b.String())
}

func transform(t keyframe.Transform) string {
	return fmt.Sprintf("t=%s r=%s",
		floats(t.Translation[:]...),
		floats(t.Rotation.W, t.Rotation.V[0], t.Rotation.V[1], t.Rotation.V[2]))
}

func floats(vs ...float32) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		if v == 0 {
			v = 0 // print -0 as 0
		}
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "(" + strings.Join(parts, " ") + ")"
}
