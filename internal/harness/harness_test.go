package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kfreplay/internal/testutil"
)

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return scenario
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := mustParse(t, `
name: minimal
description: "One instance, one keyframe"
assets:
  - path: cube.glb
steps:
  - create: { name: a, asset: cube.glb }
  - save: true
expect:
  keyframes: 1
  instances:
    present: [a]
`)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Keyframes, 1)
	assert.Len(t, result.Keyframes[0].Creations, 1)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "create", result.Trace[0].Op)
	assert.Equal(t, -1, result.Trace[0].Keyframe)
	assert.Equal(t, "save", result.Trace[1].Op)
	assert.Equal(t, 0, result.Trace[1].Keyframe)
	assert.NotEmpty(t, result.StateHash)
}

func TestRun_ParentedMoveReplaysWorldTransform(t *testing.T) {
	scenario := mustParse(t, `
name: parented
description: "Moving a plain parent node moves its instance child"
assets:
  - path: cube.glb
steps:
  - node: { name: root, translation: [10, 0, 0] }
  - create: { name: a, asset: cube.glb, parent: root, translation: [1, 0, 0] }
  - save: true
  - move: { name: root, translation: [20, 0, 0] }
  - save: true
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Keyframes, 2)
	require.Len(t, result.Keyframes[1].StateUpdates, 1)
	assert.Equal(t, float32(21), result.Keyframes[1].StateUpdates[0].State.AbsTransform.Translation[0])
}

func TestRun_ExpectedStepError(t *testing.T) {
	scenario := mustParse(t, `
name: unknown_asset
description: "Creating an instance of an unregistered asset fails"
steps:
  - create: { name: a, asset: missing.glb }
    error: "asset not announced"
  - save: true
expect:
  keyframes: 1
  instances:
    absent: [a]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Contains(t, result.Trace[0].Error, "asset not announced")
	assert.True(t, result.Keyframes[0].IsEmpty())
}

func TestRun_UnexpectedStepErrorStops(t *testing.T) {
	scenario := mustParse(t, `
name: bad_move
description: "Moving an unknown node fails the scenario"
steps:
  - move: { name: ghost, translation: [1, 0, 0] }
  - save: true
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `node "ghost" not found`)
	assert.Empty(t, result.Keyframes, "steps after the failure must not run")
}

func TestRun_MissingExpectedError(t *testing.T) {
	scenario := mustParse(t, `
name: no_error
description: "A step that should fail but does not"
assets:
  - path: cube.glb
steps:
  - create: { name: a, asset: cube.glb }
    error: "boom"
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "got none")
}

func TestRun_ExpectationFailures(t *testing.T) {
	scenario := mustParse(t, `
name: wrong_expectations
description: "Every expectation is wrong"
assets:
  - path: cube.glb
steps:
  - create: { name: a, asset: cube.glb }
  - save: true
expect:
  keyframes: 2
  instances:
    present: [b]
    absent: [a]
  user_transforms: [cam]
  violations: [UNKNOWN_KEY]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 5)
}

func TestRun_ReapplyRecordsViolation(t *testing.T) {
	scenario := mustParse(t, `
name: reapply
description: "Applying a creation keyframe twice is a duplicate key"
assets:
  - path: cube.glb
steps:
  - create: { name: a, asset: cube.glb }
  - save: true
  - reapply: 0
  - move: { name: a, translation: [0, 3, 0] }
  - save: true
expect:
  violations: [DUPLICATE_KEY]
  instances:
    present: [a]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"DUPLICATE_KEY"}, result.Violations)
}

func TestRun_ReapplyUnsavedKeyframe(t *testing.T) {
	scenario := mustParse(t, `
name: reapply_early
description: "Reapplying a keyframe that does not exist fails"
steps:
  - reapply: 3
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "keyframe 3 not saved yet")
}

func TestRun_WithBackend(t *testing.T) {
	scenario := mustParse(t, `
name: backend
description: "The player drives the supplied backend"
assets:
  - path: cube.glb
steps:
  - create: { name: a, asset: cube.glb }
  - save: true
  - remove: a
  - save: true
`)

	backend := testutil.NewRecordingBackend()
	result, err := Run(scenario, WithBackend(backend))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	calls := backend.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "create cube.glb -> 1", calls[0])
	assert.Contains(t, calls, "delete 1")
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/rig_and_lights.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.StateHash, second.StateHash)
	assert.Equal(t, Render(scenario.Name, first.Keyframes), Render(scenario.Name, second.Keyframes))
}

func TestRun_RigOwnerRemovedBeforeSave(t *testing.T) {
	scenario := mustParse(t, `
name: rig_owner_removed
description: "A rig whose owner never reaches a keyframe is not replayed"
assets:
  - path: body.glb
steps:
  - create: { name: body, asset: body.glb, rig: 7 }
  - rig: { id: 7, bones: [hip] }
  - remove: body
  - save: true
  - create: { name: other, asset: body.glb, rig: 8 }
  - rig: { id: 8, bones: [hip] }
  - save: true
  - remove: other
  - save: true
expect:
  keyframes: 3
  instances:
    absent: [body, other]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Keyframes, 3)
	assert.Empty(t, result.Keyframes[0].RigCreations)
	assert.Empty(t, result.Keyframes[0].Creations)
	require.Len(t, result.Keyframes[1].RigCreations, 1)
	assert.Equal(t, 8, result.Keyframes[1].RigCreations[0].ID)
}
