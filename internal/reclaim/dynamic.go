package reclaim

import (
	"fmt"

	"github.com/roach88/proxysync/internal/backend"
)

// minBufferSize is the smallest backing allocation a DynamicBuffer creates.
const minBufferSize = 64

// DynamicBuffer is a GPU buffer rewritten from the render role every frame.
//
// A write never touches storage an in-flight frame may still read: the
// current backing buffer is retired into the reclaimer and the data goes to a
// recycled buffer (collectable, large enough) or a freshly created one.
type DynamicBuffer struct {
	dev     backend.Device
	rec     *Reclaimer[backend.Buffer]
	current backend.Buffer
	hasBuf  bool
	length  int
}

// NewDynamicBuffer creates an empty dynamic buffer backed by dev, retiring
// through rec.
func NewDynamicBuffer(dev backend.Device, rec *Reclaimer[backend.Buffer]) *DynamicBuffer {
	return &DynamicBuffer{dev: dev, rec: rec}
}

// Write replaces the buffer contents with data.
func (d *DynamicBuffer) Write(data []byte) error {
	capacity := minBufferSize
	if d.hasBuf {
		capacity = d.current.Size
		d.rec.Retire(d.current)
		d.hasBuf = false
	}
	for capacity < len(data) {
		capacity *= 2
	}

	buf, ok := d.rec.Acquire(func(b backend.Buffer) bool {
		return b.Size >= len(data)
	})
	if !ok {
		var err error
		buf, err = d.dev.CreateBuffer(capacity)
		if err != nil {
			return fmt.Errorf("dynamic buffer: %w", err)
		}
	}

	if err := d.dev.WriteBuffer(buf, data); err != nil {
		d.rec.Retire(buf)
		return fmt.Errorf("dynamic buffer upload: %w", err)
	}
	d.current = buf
	d.hasBuf = true
	d.length = len(data)
	return nil
}

// Current returns the buffer holding the latest write.
func (d *DynamicBuffer) Current() (backend.Buffer, bool) {
	return d.current, d.hasBuf
}

// Len returns the byte length of the latest write.
func (d *DynamicBuffer) Len() int {
	return d.length
}

// Release retires the current buffer. The reclaimer frees it once no frame
// can reference it.
func (d *DynamicBuffer) Release() {
	if d.hasBuf {
		d.rec.Retire(d.current)
		d.hasBuf = false
		d.length = 0
	}
}
