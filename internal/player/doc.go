// Package player reconstructs scene state from a keyframe stream.
//
// Each keyframe is applied in a fixed order:
//
//	loads → rig_creations → creations → deletions → metadata →
//	state_updates → rig_updates → user_transforms → lights
//
// A creation is therefore visible to same-keyframe updates, and a deletion
// takes effect before later entries of the keyframe are checked.
//
// Instance lifecycle, per key:
//
//	NonExistent → Created → Updated* → Deleted (terminal)
//
// Any reference that does not follow this graph is a ProtocolViolation.
// A violation aborts the remaining entries of that keyframe only. Entries
// already applied stay applied; there is no rollback.
//
// A Player is driven by a single goroutine. It forwards visible effects to
// a Backend and resolves assets through an AssetResolver, both owned by the
// renderer.
package player
