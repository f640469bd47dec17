// Package keyframe defines the render keyframe delta protocol shared by the
// recorder and the player.
//
// This package contains value types, the Keyframe aggregate and the codec
// helpers every transport or storage layer must go through. All other
// internal packages import keyframe; keyframe imports nothing internal.
//
// Key design constraints:
//   - Instances are referenced by Key, never by pointer. Always re-resolve
//     by key across keyframes.
//   - Patch lists (creations, deletions, metadata, state updates) are ordered
//     slices, not maps. Order is part of the protocol.
//   - An empty category is the same as an absent one. Equal, the codec and
//     the canonical form all treat nil and empty identically.
//   - Lights are a full replacement set, only meaningful when LightsChanged.
//   - All JSON tags use snake_case.
package keyframe
