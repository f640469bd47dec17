// Package recorder turns a live scene into a stream of minimal keyframes.
//
// The simulator notifies the Recorder about asset loads, instance creation
// and removal, and rig creation. Transforms, metadata, rig poses and lights
// are polled at each frame boundary (SaveKeyframe / ExtractKeyframe) and
// diffed against a shadow of what was last emitted, so a keyframe only
// carries what actually changed.
//
// ARCHITECTURE:
//
// Single-threaded by contract. A Recorder runs on the frame-producing
// goroutine; exactly one keyframe is open at a time and there is never more
// than one diff pass in flight. Emitted keyframes are cloned on the way out,
// so callers may hand them to other goroutines freely.
//
// Shadow table:
//   - instance records in creation order, keyed by Key and by Node
//   - last emitted InstanceState and InstanceMetadata per key
//   - announced asset filepaths and rig ids for the whole session
//   - last emitted pose per rig and last emitted light set
//
// Failure model:
// A desynchronized shadow table is an InvariantError. It is fatal: the
// Recorder stays poisoned and every later call returns the same error,
// because keyframes built on a broken shadow could no longer be replayed
// faithfully.
package recorder
