package dispatch

import (
	"fmt"

	"github.com/petermattis/goid"
)

// Role is a named logical executor.
type Role int

const (
	// RoleNone is the zero Role; it never has a thread or a submitter.
	RoleNone Role = iota

	// RoleMain pumps the platform/CLI loop and receives user-facing reports.
	RoleMain

	// RoleGame runs the simulation loop and owns the node tree.
	RoleGame

	// RoleRender owns every proxy and the packed proxy array.
	RoleRender

	roleCount
)

// Roles lists the addressable roles in a stable order.
var Roles = []Role{RoleMain, RoleGame, RoleRender}

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleMain:
		return "main"
	case RoleGame:
		return "game"
	case RoleRender:
		return "render"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

func (r Role) valid() bool {
	return r > RoleNone && r < roleCount
}

// ThreadID identifies the goroutine acting as a role. Zero means unbound.
//
// Go does not expose OS thread identity; the goroutine id is the stable unit
// of execution here, and role goroutines lock their OS thread while bound.
type ThreadID int64

// CurrentThread returns the ThreadID of the calling goroutine.
func CurrentThread() ThreadID {
	return ThreadID(goid.Get())
}

// Task is a unit of work addressed to a role. It has no result; it is
// invoked at most once and owns whatever it captured.
type Task func()

// Submitter enqueues a task for asynchronous execution on a role.
type Submitter func(Task) error
