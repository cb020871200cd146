package scene

// EventKind names a proxy lifecycle transition.
type EventKind string

const (
	EventAddQueued      EventKind = "add_queued"      // game: AddNode submitted
	EventAdded          EventKind = "added"           // render: resources created, pending fold
	EventCreateFailed   EventKind = "create_failed"   // render: CreateRenderResources returned false
	EventAddCancelled   EventKind = "add_cancelled"   // render: removed before the add task ran
	EventRemoveQueued   EventKind = "remove_queued"   // game: RemoveNode submitted
	EventRemovedPending EventKind = "removed_pending" // render: finalized before reaching the packed array
	EventRemoveDeferred EventKind = "remove_deferred" // render: packed entry queued for the next fold
	EventUnpacked       EventKind = "unpacked"        // fold: entry compacted out of the packed array
	EventPacked         EventKind = "packed"          // fold: entry appended to the packed array
	EventCleared        EventKind = "cleared"         // ClearNodes finalized the entry
	EventDestroyed      EventKind = "destroyed"       // proxy reference count reached zero
)

// Event describes one lifecycle transition.
type Event struct {
	Kind EventKind

	// Node is the node name.
	Node string

	// Index is the packed index for packed/unpacked events, -1 otherwise.
	Index int

	// Size is the packed array length after the transition, -1 when unknown.
	Size int
}

// Observer receives lifecycle events. It is called from both the game and
// the render role and must be safe for concurrent use.
type Observer func(Event)
