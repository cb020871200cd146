package refcount

// Object is anything carrying a reference count.
type Object interface {
	Retain()
	Release() bool
}

// Ref is a strong handle that owns one reference to T.
//
// The zero Ref is empty. A Ref must be Released exactly once by its owner;
// Clone produces an independent Ref owning a further reference, and Take
// moves ownership out leaving the source empty.
type Ref[T Object] struct {
	obj   T
	valid bool
}

// Adopt wraps obj taking over a reference the caller already owns.
func Adopt[T Object](obj T) Ref[T] {
	return Ref[T]{obj: obj, valid: true}
}

// Acquire retains obj and returns a Ref owning the new reference.
func Acquire[T Object](obj T) Ref[T] {
	obj.Retain()
	return Ref[T]{obj: obj, valid: true}
}

// Get returns the referenced object. Panics when empty.
func (r Ref[T]) Get() T {
	if !r.valid {
		panic("refcount: Get on empty Ref")
	}
	return r.obj
}

// Valid reports whether the Ref owns a reference.
func (r Ref[T]) Valid() bool {
	return r.valid
}

// Clone returns a new Ref owning an additional reference.
func (r Ref[T]) Clone() Ref[T] {
	if !r.valid {
		return Ref[T]{}
	}
	return Acquire(r.obj)
}

// Take moves ownership out of r.
func (r *Ref[T]) Take() Ref[T] {
	out := *r
	*r = Ref[T]{}
	return out
}

// Release drops the owned reference and empties r. Releasing an empty Ref
// is a no-op. Returns true if the object was destroyed.
func (r *Ref[T]) Release() bool {
	if !r.valid {
		return false
	}
	obj := r.obj
	*r = Ref[T]{}
	return obj.Release()
}
