// Package dispatch implements the role-addressed task model shared by the
// game and render goroutines.
//
// ARCHITECTURE:
//
// Roles:
// Main, Game and Render are logical executors. Each is backed by exactly one
// goroutine per session, recorded in a Registry alongside the delegate that
// accepts tasks for it. Any goroutine may Submit to any role.
//
// Ordering:
// Tasks submitted by one goroutine to one role run in submission order.
// Nothing is promised across roles; code that needs a cross-role happens-before
// waits on a Fence.
//
// Misuse:
// Broken threading invariants surface as *MisuseError. A strict Registry
// panics, a lenient one logs and returns the error.
package dispatch
