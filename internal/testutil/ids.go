package testutil

import (
	"fmt"
	"sync"
)

// SequentialSessionIDs generates predictable session ids for tests.
//
// The first call to Generate returns "<prefix>-0001", the next
// "<prefix>-0002" and so on. Golden files that embed session ids stay
// byte-identical between runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialSessionIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewSequentialSessionIDs creates a generator. An empty prefix means
// "test-session".
func NewSequentialSessionIDs(prefix string) *SequentialSessionIDs {
	if prefix == "" {
		prefix = "test-session"
	}
	return &SequentialSessionIDs{prefix: prefix}
}

// Generate returns the next id.
//
// Implements store.IDGenerator.
func (g *SequentialSessionIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%04d", g.prefix, g.seq)
}

// Reset restarts the sequence. After Reset, Generate returns "<prefix>-0001".
func (g *SequentialSessionIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
