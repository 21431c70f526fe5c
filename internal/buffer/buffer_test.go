package buffer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"firestige.xyz/nfcsniff/internal/core"
)

func TestWriteWithinCapacity(t *testing.T) {
	b := New(8)
	n, err := b.Write([]byte("RDR\t"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "RDR\t", string(b.Bytes()))
	assert.False(t, b.Full())
}

func TestWriteClampsAtCapacity(t *testing.T) {
	b := New(6)
	_, err := b.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)

	n, err := b.Write([]byte{5, 6, 7, 8})
	assert.Equal(t, 2, n)
	assert.True(t, errors.Is(err, core.ErrBufferFull))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, b.Bytes())
	assert.True(t, b.Full())

	// further writes change nothing
	n, err = b.Write([]byte{9})
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, core.ErrBufferFull)
	assert.ErrorIs(t, b.WriteByte(10), core.ErrBufferFull)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, b.Bytes())
	assert.Equal(t, uint64(4), b.Dropped())

	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 6, b.Cap())
	assert.Zero(t, b.Dropped())
}

// Whatever the write pattern, the buffer holds exactly the first Cap bytes
// offered to it.
func TestClampingKeepsPrefix(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(0, 64).Draw(t, "capacity")
		chunks := rapid.SliceOf(rapid.SliceOf(rapid.Byte())).Draw(t, "chunks")

		b := New(capacity)
		var all []byte
		for _, c := range chunks {
			_, _ = b.Write(c)
			all = append(all, c...)
		}
		want := all
		if len(want) > capacity {
			want = want[:capacity]
		}
		if !bytes.Equal(want, b.Bytes()) {
			t.Fatalf("buffer %x, want %x", b.Bytes(), want)
		}
		if uint64(len(all)-len(want)) != b.Dropped() {
			t.Fatalf("dropped %d, want %d", b.Dropped(), len(all)-len(want))
		}
	})
}
