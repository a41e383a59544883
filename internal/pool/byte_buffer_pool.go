// Package pool provides a pooled byte buffer used to hold one segment's
// raw file bytes at a time during multi-segment reads.
package pool

import "sync"

// SegmentBufferDefaultSize is the initial capacity of pooled buffers.
// Larger segment files grow the buffer once on first use; the grown
// allocation is then retained by the pool.
const SegmentBufferDefaultSize = 1024 * 1024

// ByteBuffer is a reusable byte slice wrapper.
type ByteBuffer struct {
	// B is the underlying byte slice.
	B []byte
}

var byteBufferPool = sync.Pool{
	New: func() any {
		return &ByteBuffer{B: make([]byte, 0, SegmentBufferDefaultSize)}
	},
}

// GetByteBuffer retrieves a buffer from the pool.
func GetByteBuffer() *ByteBuffer {
	bb, _ := byteBufferPool.Get().(*ByteBuffer)
	return bb
}

// PutByteBuffer returns a buffer to the pool.
func PutByteBuffer(bb *ByteBuffer) {
	bb.Reset()
	byteBufferPool.Put(bb)
}

// Reset empties the buffer while retaining its allocation.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// Resize returns the buffer's storage with length n, reallocating only
// when the current capacity is insufficient. Contents are unspecified.
func (bb *ByteBuffer) Resize(n int) []byte {
	if cap(bb.B) < n {
		bb.B = make([]byte, n)
	} else {
		bb.B = bb.B[:n]
	}

	return bb.B
}
