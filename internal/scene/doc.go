// Package scene mirrors game-side nodes into render-side proxies.
//
// ARCHITECTURE:
//
// Two trees, two owners:
// The game role owns the Node tree. The render role owns every Proxy and the
// Scene's packed array. They never share mutable state; the game talks to a
// proxy only by pushing a Snapshot through the render queue.
//
// Lifecycle:
//  1. AddNode (game) creates the proxy, wraps it in a ProxyInfo and submits
//     an add task.
//  2. The add task (render) creates render resources and parks the info in
//     the "added" list, or gives up and releases everything.
//  3. UpdateSceneProxies (render, once per frame) applies removals, then
//     additions, to the packed array.
//  4. RemoveNode (game) cancels a pending add, finalizes an entry still in
//     "added", or queues a packed entry for the next fold.
//
// Reference counts:
// A proxy holds one "alive" reference from creation until it leaves the
// scene, plus one per in-flight task that touches it. Every release happens
// on the render role, so a proxy is always destroyed there. When the render
// queue has stopped, a game-side submit failure drops its references
// without running the destructor.
package scene
