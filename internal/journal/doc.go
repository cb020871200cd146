// Package journal records proxy lifecycle events to SQLite for post-mortem
// inspection.
//
// The journal is a scene observer. Events are buffered in memory as they
// happen, on whichever goroutine raised them, and written once per frame in
// a single transaction together with the frame's summary row. Sequence
// numbers continue across runs stored in the same file.
package journal
