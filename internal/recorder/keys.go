package recorder

import (
	"math"

	"github.com/roach88/kfreplay/internal/keyframe"
)

// keyAllocator hands out instance keys from a monotonic counter.
//
// Keys are session-scoped and never reused, even after the instance they
// named has been deleted.
type keyAllocator struct {
	next int64
}

// newKeyAllocatorAt creates an allocator whose first key is start.
// Used to resume a session from its last known key.
func newKeyAllocatorAt(start keyframe.Key) *keyAllocator {
	return &keyAllocator{next: int64(start)}
}

// Next returns the next unused key, or false once the key space is exhausted.
func (a *keyAllocator) Next() (keyframe.Key, bool) {
	if a.next > math.MaxInt32 {
		return 0, false
	}
	k := keyframe.Key(a.next)
	a.next++
	return k, true
}

// Peek returns the key the next call to Next would hand out.
func (a *keyAllocator) Peek() keyframe.Key {
	return keyframe.Key(a.next)
}
