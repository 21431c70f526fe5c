// Package buffer implements the fixed capacity session output buffer.
package buffer

import (
	"fmt"

	"firestige.xyz/nfcsniff/internal/core"
)

// Buffer is an append-only byte buffer with a fixed capacity. Once the write
// cursor reaches capacity further bytes are dropped; nothing is overwritten,
// wrapped or reallocated.
type Buffer struct {
	buf     []byte
	dropped uint64
}

func New(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity)}
}

// Write copies as much of p as fits. When p is truncated it returns the
// number of bytes kept and core.ErrBufferFull.
func (b *Buffer) Write(p []byte) (int, error) {
	free := cap(b.buf) - len(b.buf)
	if len(p) <= free {
		b.buf = append(b.buf, p...)
		return len(p), nil
	}
	b.buf = append(b.buf, p[:free]...)
	b.dropped += uint64(len(p) - free)
	return free, fmt.Errorf("%w: dropped %d of %d bytes", core.ErrBufferFull, len(p)-free, len(p))
}

// WriteByte appends one byte, dropping it when full.
func (b *Buffer) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

// Bytes returns the buffered bytes. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

func (b *Buffer) Len() int {
	return len(b.buf)
}

func (b *Buffer) Cap() int {
	return cap(b.buf)
}

// Full reports whether the cursor reached capacity.
func (b *Buffer) Full() bool {
	return len(b.buf) == cap(b.buf)
}

// Dropped returns how many bytes were refused since the last Reset.
func (b *Buffer) Dropped() uint64 {
	return b.dropped
}

// Reset rewinds the cursor, keeping the capacity.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.dropped = 0
}
