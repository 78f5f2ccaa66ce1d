// Package bufpool provides a small power-of-two-bucketed sync.Pool of byte
// slices, used to avoid allocating a fresh scratch buffer on every
// edge-triggered drain iteration.
//
// It is a narrowed adaptation of cache/mempool from the pack: that package
// self-describes each allocation with a magic footer so Free can work
// without the caller remembering which bucket it came from. Every caller
// here already knows the size it asked for, so the footer/magic bookkeeping
// is dropped in favor of a plain Put(buf) that re-derives the bucket from
// cap(buf).
package bufpool

import (
	"math/bits"
	"sync"
)

const (
	minSize = 4 << 10  // 4KiB
	maxSize = 4 << 20   // 4MiB, callers needing more should allocate directly
)

type bucket struct {
	sync.Pool
	size int
}

var buckets []*bucket

func init() {
	for size := minSize; size <= maxSize; size <<= 1 {
		size := size
		buckets = append(buckets, &bucket{
			size: size,
			Pool: sync.Pool{
				New: func() interface{} {
					b := make([]byte, size)
					return &b
				},
			},
		})
	}
}

func bucketIndex(size int) int {
	if size <= minSize {
		return 0
	}
	n := bits.Len(uint(size - 1))
	return n - bits.Len(uint(minSize-1))
}

// Get returns a []byte with length == size. Its capacity may exceed size
// if it was rounded up to the next pooled bucket.
func Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	if size > maxSize {
		return make([]byte, size)
	}
	idx := bucketIndex(size)
	buf := buckets[idx].Get().(*[]byte)
	return (*buf)[:size]
}

// Put returns buf to its bucket for reuse. buf must have been obtained from
// Get (or have a capacity that is a supported bucket size); otherwise Put
// is a silent no-op.
func Put(buf []byte) {
	c := cap(buf)
	if c < minSize || c > maxSize {
		return
	}
	if c&(c-1) != 0 {
		return
	}
	idx := bucketIndex(c)
	buf = buf[:c]
	buckets[idx].Put(&buf)
}
