// Package ring provides a fixed-size ring buffer, used to keep the most
// recent N samples of a measurement.
package ring

import (
	"sync"

	"github.com/easyctf/openctf-judge/go/skerr"
)

// Int64Ring stores the last N int64 values passed to Put(). It is thread-safe.
type Int64Ring struct {
	mtx  sync.Mutex
	buf  []int64 // grows to capacity, then values wrap
	next int     // index of the oldest value once buf is full
}

// NewInt64Ring returns an Int64Ring with the given capacity.
func NewInt64Ring(capacity int) (*Int64Ring, error) {
	if capacity < 1 {
		return nil, skerr.Fmt("ring capacity must be at least 1, not %d", capacity)
	}
	return &Int64Ring{
		buf: make([]int64, 0, capacity),
	}, nil
}

// Put appends v to the ring, overwriting the oldest value once the ring is
// full.
func (r *Int64Ring) Put(v int64) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, v)
		return
	}
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
}

// GetAll returns the stored values, oldest first.
func (r *Int64Ring) GetAll() []int64 {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make([]int64, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}
