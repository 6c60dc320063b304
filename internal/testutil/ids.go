package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs issues "0001", "0002", ... so client row ids are predictable:
// the first temp row is "temp-0001".
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu  sync.Mutex
	seq int
}

// NewSequenceIDs returns a generator whose first id is "0001".
func NewSequenceIDs() *SequenceIDs {
	return &SequenceIDs{}
}

// Generate implements row.IDGenerator.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%04d", g.seq)
}

// Reset restarts the sequence at "0001".
func (g *SequenceIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
