package testutil

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// SequentialIDs hands out predictable version 7 UUIDs:
// 00000000-0000-7000-8000-000000000001, ...-000000000002 and so on.
//
// Scenario runs assign these to nodes so golden traces do not depend on the
// wall clock.
//
// Thread-safety: Next is safe for concurrent use.
type SequentialIDs struct {
	seq atomic.Uint64
}

// NewSequentialIDs creates a generator whose first id ends in 1.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// Next returns the next id.
func (g *SequentialIDs) Next() uuid.UUID {
	n := g.seq.Add(1)
	return uuid.MustParse(fmt.Sprintf("00000000-0000-7000-8000-%012x", n))
}

// Reset restarts the sequence at 1.
func (g *SequentialIDs) Reset() {
	g.seq.Store(0)
}
