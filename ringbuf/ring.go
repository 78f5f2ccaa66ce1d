// Package ringbuf implements a power-of-two byte ring buffer with vectored
// read/write against an arbitrary byte source or sink.
//
// See spec.md §4.3 and DESIGN.md's "ringbuf" entry; ported from
// original_source/src/buffer.rs, replacing its fixed non-power-of-two
// capacity and index-mod-len addressing with unbounded write/read counters
// masked by capacity-1, per spec.md §3's "Ring buffer" data model entry.
package ringbuf

import (
	"io"
	"net"

	"github.com/bytedance/gopkg/lang/mcache"
)

// Ring is a fixed-capacity byte ring. Capacity is always a power of two;
// New rounds up if given a non-power-of-two value.
type Ring struct {
	data  []byte
	mask  uint64
	write uint64
	read  uint64
}

// New creates a Ring able to hold at least capacity bytes (rounded up to
// the next power of two, minimum 2).
func New(capacity int) *Ring {
	cap := nextPowerOfTwo(capacity)
	return &Ring{
		data: mcache.Malloc(cap),
		mask: uint64(cap - 1),
	}
}

func nextPowerOfTwo(n int) int {
	if n < 2 {
		return 2
	}
	p := 2
	for p < n {
		p <<= 1
	}
	return p
}

// Len returns the number of bytes currently buffered.
func (r *Ring) Len() int {
	return int(r.write - r.read)
}

// Cap returns the ring's total capacity in bytes.
func (r *Ring) Cap() int {
	return len(r.data)
}

// IsEmpty reports whether the ring holds no bytes.
func (r *Ring) IsEmpty() bool {
	return r.write == r.read
}

// IsFull reports whether the ring is at capacity.
func (r *Ring) IsFull() bool {
	return r.Len() == r.Cap()
}

func (r *Ring) slot(counter uint64) int {
	return int(counter & r.mask)
}

// PushByte appends a single byte; it returns false if the ring is full.
func (r *Ring) PushByte(b byte) bool {
	if r.IsFull() {
		return false
	}
	r.data[r.slot(r.write)] = b
	r.write++
	return true
}

// PopByte removes and returns the front byte; ok is false if empty.
func (r *Ring) PopByte() (b byte, ok bool) {
	if r.IsEmpty() {
		return 0, false
	}
	b = r.data[r.slot(r.read)]
	r.read++
	return b, true
}

// Extend appends as many bytes from elements as fit, returning the count
// actually copied.
func (r *Ring) Extend(elements []byte) int {
	room := r.Cap() - r.Len()
	n := len(elements)
	if n > room {
		n = room
	}
	if n == 0 {
		return 0
	}
	start := r.slot(r.write)
	end := start + n
	if end <= r.Cap() {
		copy(r.data[start:end], elements[:n])
	} else {
		firstLeg := r.Cap() - start
		copy(r.data[start:], elements[:firstLeg])
		copy(r.data[:end-r.Cap()], elements[firstLeg:n])
	}
	r.write += uint64(n)
	return n
}

// DropFront discards up to count bytes from the front without returning
// them.
func (r *Ring) DropFront(count int) {
	n := r.Len()
	if count > n {
		count = n
	}
	r.read += uint64(count)
}

// At returns the byte at logical offset index from the front of the ring
// (0 is the next byte PopByte would return). ok is false if index is out
// of range.
func (r *Ring) At(index int) (b byte, ok bool) {
	if index < 0 || index >= r.Len() {
		return 0, false
	}
	return r.data[r.slot(r.read+uint64(index))], true
}

// Grow reallocates the ring's backing storage to at least capacity bytes,
// preserving buffered contents, if it is not already large enough. Used by
// callers accumulating an unbounded stream (e.g. httpaio's response
// buffer) past a ring's initial size.
func (r *Ring) Grow(capacity int) {
	if capacity <= r.Cap() {
		return
	}
	contents := r.Drain()
	newCap := nextPowerOfTwo(capacity)
	mcache.Free(r.data)
	r.data = mcache.Malloc(newCap)
	r.mask = uint64(newCap - 1)
	r.write = 0
	r.read = 0
	r.Extend(contents)
}

// Drain removes and returns all buffered bytes as a new slice.
func (r *Ring) Drain() []byte {
	n := r.Len()
	out := make([]byte, n)
	start := r.slot(r.read)
	end := start + n
	if end <= r.Cap() {
		copy(out, r.data[start:end])
	} else {
		firstLeg := r.Cap() - start
		copy(out, r.data[start:])
		copy(out[firstLeg:], r.data[:end-r.Cap()])
	}
	r.read = r.write
	return out
}

// WriteTo drains as much of the ring as w accepts in one vectored write,
// splitting across the wrap point into at most two segments, and advances
// the read cursor by the number of bytes actually written.
func (r *Ring) WriteTo(w io.Writer) (int64, error) {
	if r.IsEmpty() {
		return 0, nil
	}
	start := r.slot(r.read)
	n := r.Len()
	end := start + n

	var bufs net.Buffers
	if end <= r.Cap() {
		bufs = net.Buffers{append([]byte(nil), r.data[start:end]...)}
	} else {
		bufs = net.Buffers{
			append([]byte(nil), r.data[start:]...),
			append([]byte(nil), r.data[:end-r.Cap()]...),
		}
	}

	before := bufsLen(bufs)
	_, err := bufs.WriteTo(w)
	written := before - bufsLen(bufs)
	r.read += uint64(written)
	return int64(written), err
}

func bufsLen(bufs net.Buffers) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}

// ReadFrom reads from r into the ring until r returns an error (including
// io.EOF) or the ring fills, whichever comes first; io.EOF ends the read
// without being returned as an error. It never blocks beyond what the
// underlying Reader does.
func (r *Ring) ReadFrom(src io.Reader) (int64, error) {
	var total int64
	for {
		room := r.Cap() - r.Len()
		if room == 0 {
			return total, nil
		}
		start := r.slot(r.write)
		end := start + room
		var n int
		var err error
		if end <= r.Cap() {
			n, err = src.Read(r.data[start:end])
		} else {
			n, err = src.Read(r.data[start:r.Cap()])
		}
		if n > 0 {
			r.write += uint64(n)
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

// Release returns the ring's backing storage to the shared pool. The Ring
// must not be used afterward.
func (r *Ring) Release() {
	mcache.Free(r.data)
	r.data = nil
}
