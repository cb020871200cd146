package refcount

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/proxysync/internal/dispatch"
)

type thing struct {
	Counted
	destroyed int
}

func newThing() *thing {
	t := &thing{}
	t.Init(func() { t.destroyed++ })
	return t
}

func TestCounted_DestroyAtZero(t *testing.T) {
	obj := newThing()
	assert.Equal(t, int32(1), obj.Count())

	obj.Retain()
	assert.False(t, obj.Release())
	assert.Equal(t, 0, obj.destroyed)

	assert.True(t, obj.Release())
	assert.Equal(t, 1, obj.destroyed)
	assert.False(t, obj.Alive())
}

func TestCounted_OverReleasePanics(t *testing.T) {
	obj := newThing()
	obj.Release()

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, dispatch.IsMisuse(err, dispatch.ErrCodeOverRelease))
		assert.Equal(t, 1, obj.destroyed, "destructor runs exactly once")
	}()
	obj.Release()
}

func TestCounted_RetainAfterDestroyPanics(t *testing.T) {
	obj := newThing()
	obj.Release()

	assert.Panics(t, func() { obj.Retain() })
}

func TestCounted_DropSkipsDestructor(t *testing.T) {
	obj := newThing()
	obj.Retain()

	assert.False(t, obj.Drop())
	assert.True(t, obj.Drop())
	assert.Equal(t, 0, obj.destroyed)
	assert.False(t, obj.Alive())
	assert.False(t, obj.TryRetain())

	assert.Panics(t, func() { obj.Drop() })
}

func TestCounted_TryRetain(t *testing.T) {
	obj := newThing()

	require.True(t, obj.TryRetain())
	assert.Equal(t, int32(2), obj.Count())
	obj.Release()
	obj.Release()

	assert.False(t, obj.TryRetain(), "destroyed object cannot be revived")
	assert.Equal(t, int32(0), obj.Count())
}

func TestCounted_ConcurrentRetainRelease(t *testing.T) {
	obj := newThing()

	const workers = 8
	const rounds = 1000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				obj.Retain()
				obj.Release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), obj.Count())
	assert.Equal(t, 0, obj.destroyed)
	obj.Release()
	assert.Equal(t, 1, obj.destroyed)
}

func TestRef_CloneTakeRelease(t *testing.T) {
	obj := newThing()

	r := Adopt(obj)
	c := r.Clone()
	assert.Equal(t, int32(2), obj.Count())

	moved := c.Take()
	assert.False(t, c.Valid())
	assert.True(t, moved.Valid())
	assert.False(t, c.Release(), "empty ref release is a no-op")

	assert.False(t, moved.Release())
	assert.True(t, r.Release())
	assert.Equal(t, 1, obj.destroyed)
	assert.False(t, r.Valid())
}

func TestRef_GetEmptyPanics(t *testing.T) {
	var r Ref[*thing]
	assert.Panics(t, func() { r.Get() })
}
