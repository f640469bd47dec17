// Package harness runs scripted recording scenarios end to end.
//
// A scenario drives a scene graph, which feeds a Recorder. Every saved
// keyframe is applied to a Player, and the Player's reconstruction is then
// compared against the live scene. A scenario passes when replay is
// faithful and its expectations hold.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: basic_lifecycle
//	description: "Create, move and remove an instance"
//	assets:
//	  - path: cube.glb
//	steps:
//	  - create: { name: a, asset: cube.glb, translation: [1, 0, 0] }
//	  - save: true
//	  - move: { name: a, translation: [2, 0, 0] }
//	  - metadata: { name: a, object_id: 7, semantic_id: 3 }
//	  - save: true
//	  - remove: a
//	  - save: true
//	expect:
//	  keyframes: 3
//	  instances:
//	    absent: [a]
//
// Each step sets exactly one of node, create, move, metadata, remove, rig,
// pose, lights, user_transform, save, consolidate or reapply. A step may
// name an error substring it expects to fail with.
//
// Rotations are written as [w, x, y, z] and default to identity.
//
// # Golden Files
//
// RunWithGolden renders the saved keyframe stream as text and compares it
// with testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
