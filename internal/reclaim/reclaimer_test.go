package reclaim

import (
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/proxysync/internal/backend"
)

func TestReclaimer_FreesAfterNGenerations(t *testing.T) {
	var freed []int
	r := New(2, func(h int) { freed = append(freed, h) })

	r.Retire(1) // gen 0
	r.Advance() // 1
	r.Retire(2) // gen 1

	r.Advance() // 2: 2-0 = 2, not > 2
	assert.Equal(t, 0, r.Collect())

	r.Advance() // 3: 3-0 > 2
	assert.Equal(t, 1, r.Collect())
	assert.Equal(t, []int{1}, freed)

	r.Advance() // 4: 4-1 > 2
	assert.Equal(t, 1, r.Collect())
	assert.Equal(t, []int{1, 2}, freed)
	assert.Equal(t, 0, r.Pending())
}

// Property: a handle retired at G is never freed while current-G <= N and is
// freed by the first Collect once current-G > N.
func TestReclaimer_BoundsRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, inFlight := range []int{0, 1, 2, 3} {
		retiredAt := map[int]uint64{}
		freedAt := map[int]uint64{}

		var r *Reclaimer[int]
		r = New(inFlight, func(h int) { freedAt[h] = r.Generation() })

		next := 0
		for step := 0; step < 500; step++ {
			switch rng.Intn(3) {
			case 0:
				retiredAt[next] = r.Generation()
				r.Retire(next)
				next++
			case 1:
				r.Advance()
			case 2:
				r.Collect()
			}

			// Nothing still pending may be overdue after a Collect.
			r.Collect()
			for h, g := range retiredAt {
				_, gone := freedAt[h]
				age := r.Generation() - g
				if age > uint64(inFlight) {
					require.True(t, gone, "handle %d age %d not freed (N=%d)", h, age, inFlight)
				}
			}
		}

		for h, at := range freedAt {
			assert.Greater(t, at-retiredAt[h], uint64(inFlight), "handle %d freed early", h)
		}
	}
}

func TestReclaimer_AcquireOnlyCollectable(t *testing.T) {
	r := New(1, func(int) {})

	r.Retire(10)
	_, ok := r.Acquire(nil)
	assert.False(t, ok, "fresh retirement is not reusable")

	r.Advance()
	r.Advance()
	r.Retire(20)

	h, ok := r.Acquire(func(h int) bool { return h >= 10 })
	require.True(t, ok)
	assert.Equal(t, 10, h)
	assert.Equal(t, 1, r.Pending())

	_, ok = r.Acquire(nil)
	assert.False(t, ok, "20 was retired this generation")
}

func TestReclaimer_Flush(t *testing.T) {
	var freed int
	r := New(3, func(int) { freed++ })
	r.Retire(1)
	r.Retire(2)

	assert.Equal(t, 2, r.Flush())
	assert.Equal(t, 2, freed)
	assert.Equal(t, 0, r.Pending())
}

func newDevice() *backend.Headless {
	return backend.NewHeadless(backend.WithHeadlessLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestDynamicBuffer_WriteNeverReusesInFlight(t *testing.T) {
	dev := newDevice()
	rec := New(2, dev.DestroyBuffer)
	d := NewDynamicBuffer(dev, rec)

	var used []backend.Buffer
	for frame := 0; frame < 10; frame++ {
		rec.Advance()
		require.NoError(t, d.Write([]byte{byte(frame)}))
		buf, ok := d.Current()
		require.True(t, ok)

		// The new buffer must not be one written in the last N frames.
		for back := 1; back <= 2 && back <= len(used); back++ {
			assert.NotEqual(t, used[len(used)-back].ID, buf.ID, "frame %d reused buffer of frame %d", frame, frame-back)
		}
		used = append(used, buf)

		rec.Collect()
	}

	// Recycling bounds allocations to N+1 retired buffers plus the current one.
	created, _ := dev.Stats()
	assert.LessOrEqual(t, created, 4)
}

func TestDynamicBuffer_Grows(t *testing.T) {
	dev := newDevice()
	rec := New(1, dev.DestroyBuffer)
	d := NewDynamicBuffer(dev, rec)

	require.NoError(t, d.Write(make([]byte, 10)))
	small, _ := d.Current()
	assert.Equal(t, minBufferSize, small.Size)

	require.NoError(t, d.Write(make([]byte, 200)))
	big, _ := d.Current()
	assert.Equal(t, 256, big.Size)
	assert.Equal(t, 200, d.Len())
	assert.True(t, dev.IsLive(small), "old buffer kept until collected")

	d.Release()
	rec.Flush()
	assert.Equal(t, 0, dev.Live())
}

func TestDynamicBuffer_CreateFailure(t *testing.T) {
	dev := newDevice()
	rec := New(1, dev.DestroyBuffer)
	d := NewDynamicBuffer(dev, rec)
	dev.FailNextCreates(1)

	err := d.Write([]byte("x"))
	assert.ErrorIs(t, err, backend.ErrInjectedFailure)
	_, ok := d.Current()
	assert.False(t, ok)
}
