// Package refcount provides the atomic reference count embedded in objects
// handed between the game and render goroutines.
package refcount

import (
	"fmt"
	"sync/atomic"

	"github.com/roach88/proxysync/internal/dispatch"
)

// Counted is an embeddable atomic reference count.
//
// A Counted starts at 1 when initialized with Init. Retain on a count that
// already reached zero, or Release below zero, is misuse and panics: the
// object may already have been destroyed, so continuing is unsafe.
type Counted struct {
	count   atomic.Int32
	destroy func()
}

// Init sets the count to 1 and records the destructor run when the count
// drops to zero.
func (c *Counted) Init(destroy func()) {
	c.count.Store(1)
	c.destroy = destroy
}

// Retain increments the count.
func (c *Counted) Retain() {
	if n := c.count.Add(1); n <= 1 {
		panic(dispatch.NewMisuseError(dispatch.ErrCodeOverRelease, dispatch.RoleNone,
			"retain on released object (count=%d)", n-1))
	}
}

// TryRetain increments the count only if the object is still alive.
// Used to upgrade a published pointer that the owner may be releasing
// concurrently.
func (c *Counted) TryRetain() bool {
	for {
		n := c.count.Load()
		if n <= 0 {
			return false
		}
		if c.count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release decrements the count and runs the destructor when it reaches zero.
// Returns true if this call destroyed the object.
func (c *Counted) Release() bool {
	n := c.count.Add(-1)
	switch {
	case n > 0:
		return false
	case n == 0:
		if c.destroy != nil {
			c.destroy()
		}
		return true
	default:
		panic(dispatch.NewMisuseError(dispatch.ErrCodeOverRelease, dispatch.RoleNone,
			"release below zero (count=%d)", n))
	}
}

// Drop decrements the count without running the destructor. It is for
// owners that must let go of an object from a goroutine where the
// destructor may not run. Returns true if the count reached zero.
func (c *Counted) Drop() bool {
	n := c.count.Add(-1)
	if n < 0 {
		panic(dispatch.NewMisuseError(dispatch.ErrCodeOverRelease, dispatch.RoleNone,
			"drop below zero (count=%d)", n))
	}
	return n == 0
}

// Count returns the current count. Only meaningful for diagnostics and tests.
func (c *Counted) Count() int32 {
	return c.count.Load()
}

// Alive reports whether the count is still positive.
func (c *Counted) Alive() bool {
	return c.count.Load() > 0
}

func (c *Counted) String() string {
	return fmt.Sprintf("refcount(%d)", c.count.Load())
}
