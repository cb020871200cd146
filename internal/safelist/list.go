// Package safelist provides an intrusive doubly-linked list and a
// double-buffered bucket set that tolerates registration and removal while
// it is being iterated.
package safelist

// Node is the intrusive link embedded in (or owned by) a list member.
// A Node belongs to at most one List at a time.
type Node[T any] struct {
	prev, next *Node[T]
	list       *List[T]
	bucket     int

	// Value is the member this node links.
	Value T
}

// NewNode returns a detached node carrying v.
func NewNode[T any](v T) *Node[T] {
	return &Node[T]{Value: v}
}

// Next returns the following node or nil.
func (n *Node[T]) Next() *Node[T] {
	return n.next
}

// List returns the list the node is linked into, or nil.
func (n *Node[T]) List() *List[T] {
	return n.list
}

// Linked reports whether the node is in any list.
func (n *Node[T]) Linked() bool {
	return n.list != nil
}

// Unlink removes the node from whatever list holds it. No-op when detached.
func (n *Node[T]) Unlink() {
	if n.list != nil {
		n.list.Remove(n)
	}
}

// List is an intrusive doubly-linked list. The zero List is empty and ready
// to use. Not safe for concurrent use.
type List[T any] struct {
	head, tail *Node[T]
	len        int

	// cursor is the next node Each visits; Remove advances it past the
	// node being unlinked.
	cursor    *Node[T]
	iterating bool
}

// Len returns the number of linked nodes.
func (l *List[T]) Len() int {
	return l.len
}

// Front returns the first node or nil.
func (l *List[T]) Front() *Node[T] {
	return l.head
}

// Contains reports whether n is linked into l.
func (l *List[T]) Contains(n *Node[T]) bool {
	return n != nil && n.list == l
}

// PushBack links n at the tail, unlinking it from any previous list first.
func (l *List[T]) PushBack(n *Node[T]) {
	n.Unlink()
	n.list = l
	n.prev = l.tail
	n.next = nil
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.len++
	if l.iterating && l.cursor == nil {
		l.cursor = n
	}
}

// Remove unlinks n in O(1). Nodes of other lists are ignored.
func (l *List[T]) Remove(n *Node[T]) {
	if n.list != l {
		return
	}
	if l.cursor == n {
		l.cursor = n.next
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next, n.list = nil, nil, nil
	l.len--
}

// Append splices every node of other onto the tail of l, leaving other
// empty. O(len(other)) to rewrite ownership, no allocation.
func (l *List[T]) Append(other *List[T]) {
	if other == l || other.head == nil {
		return
	}
	for n := other.head; n != nil; n = n.next {
		n.list = l
	}
	if l.tail != nil {
		l.tail.next = other.head
		other.head.prev = l.tail
	} else {
		l.head = other.head
	}
	if l.iterating && l.cursor == nil {
		l.cursor = other.head
	}
	l.tail = other.tail
	l.len += other.len
	other.head, other.tail, other.len = nil, nil, 0
}

// Clear unlinks every node.
func (l *List[T]) Clear() {
	for n := l.head; n != nil; {
		next := n.next
		n.prev, n.next, n.list = nil, nil, nil
		n = next
	}
	l.head, l.tail, l.len = nil, nil, 0
	l.cursor = nil
}

// Each calls fn for every node in order. fn may unlink any node of l,
// visited or not; an unlinked node that was not yet visited is skipped.
// Nodes linked onto l while Each runs are visited. Each must not be nested
// on the same list.
func (l *List[T]) Each(fn func(*Node[T])) {
	l.iterating = true
	defer func() {
		l.cursor, l.iterating = nil, false
	}()
	for n := l.head; n != nil; n = l.cursor {
		l.cursor = n.next
		fn(n)
	}
}

// Values returns the linked values in order.
func (l *List[T]) Values() []T {
	out := make([]T, 0, l.len)
	for n := l.head; n != nil; n = n.next {
		out = append(out, n.Value)
	}
	return out
}
