// Package game implements the Game role: the simulation loop that mutates
// the node tree and feeds the render goroutine.
//
// ARCHITECTURE:
//
// Frame:
// Each frame drains the Game mailbox, paces to the frame rate cap, takes a
// frames-in-flight slot, runs behaviors, ticks nodes, pushes dirty proxy
// state, applies tree changes to the scene and finally submits one render
// task. The render task folds the scene, renders, and gives the slot back.
//
// Startup:
// The render queue starts first. Renderer initialization runs on the render
// goroutine and the game waits for it on a fence before touching the scene.
//
// Shutdown:
// The scene is cleared on the render goroutine, the game waits for that,
// and then runs its cleanup stack in reverse registration order. Stopping
// the render queue is the first entry on that stack, so it runs last.
//
// Inline mode:
// With an inline render queue the Game goroutine is also the Render role.
// Fences become pumps, and every frame's render task runs before the next
// frame starts. Scenario runs use this for reproducible traces.
package game
