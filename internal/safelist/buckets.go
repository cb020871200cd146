package safelist

import "slices"

type bucket[T any] struct {
	active  List[T]
	pending List[T]
}

// Buckets is a set of priority buckets, each holding an active list that is
// iterated and a pending list that collects registrations.
//
// Registration always lands in pending; Integrate splices pending into
// active. A registration made while Update is running is therefore not
// visited until the next Update. Buckets are iterated in ascending key order.
//
// Not safe for concurrent use: Buckets belong to a single role.
type Buckets[T any] struct {
	buckets map[int]*bucket[T]
	keys    []int // sorted ascending
}

// NewBuckets creates an empty bucket set.
func NewBuckets[T any]() *Buckets[T] {
	return &Buckets[T]{buckets: make(map[int]*bucket[T])}
}

func (b *Buckets[T]) get(key int) *bucket[T] {
	bk, ok := b.buckets[key]
	if !ok {
		bk = &bucket[T]{}
		b.buckets[key] = bk
		i, _ := slices.BinarySearch(b.keys, key)
		b.keys = slices.Insert(b.keys, i, key)
	}
	return bk
}

// Register queues n into the pending list of the given bucket, moving it
// out of any list it was in.
func (b *Buckets[T]) Register(n *Node[T], key int) {
	n.bucket = key
	b.get(key).pending.PushBack(n)
}

// Unregister unlinks n from whichever list holds it.
func (b *Buckets[T]) Unregister(n *Node[T]) {
	n.Unlink()
}

// Bucket returns the bucket key n was last registered under.
func (b *Buckets[T]) Bucket(n *Node[T]) int {
	return n.bucket
}

// Integrate moves every pending registration into its active list.
func (b *Buckets[T]) Integrate() {
	for _, k := range b.keys {
		bk := b.buckets[k]
		bk.active.Append(&bk.pending)
	}
}

// Update integrates pending registrations and then calls fn for every active
// node, buckets in ascending order. fn may unregister any node, including
// ones later in the same bucket, and may register new ones.
func (b *Buckets[T]) Update(fn func(T)) {
	b.Integrate()
	for _, k := range b.keys {
		b.buckets[k].active.Each(func(n *Node[T]) {
			fn(n.Value)
		})
	}
}

// Active reports whether n is in an active list.
func (b *Buckets[T]) Active(n *Node[T]) bool {
	bk, ok := b.buckets[n.bucket]
	return ok && bk.active.Contains(n)
}

// Pending reports whether n is waiting for the next Integrate.
func (b *Buckets[T]) Pending(n *Node[T]) bool {
	bk, ok := b.buckets[n.bucket]
	return ok && bk.pending.Contains(n)
}

// Len returns the number of active and pending nodes.
func (b *Buckets[T]) Len() (active, pending int) {
	for _, bk := range b.buckets {
		active += bk.active.Len()
		pending += bk.pending.Len()
	}
	return active, pending
}

// Clear unlinks everything.
func (b *Buckets[T]) Clear() {
	for _, bk := range b.buckets {
		bk.active.Clear()
		bk.pending.Clear()
	}
}
