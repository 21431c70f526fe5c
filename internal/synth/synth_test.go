package synth

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/nfcsniff/internal/core"
)

func TestMillerSymbols(t *testing.T) {
	// SOF Z, then 1 (X), 0 after 1 (Y), 0 after 0 (Z), EOF Z, trailing Y
	windows := NewBuilder().ReaderBits([]uint8{1, 0, 0}).Windows()
	assert.Equal(t, []core.SampleWindow{
		0x007FFFFF, // SOF
		0xFFFF007F, // X
		0xFFFFFFFF, // Y
		0x007FFFFF, // Z
		0x007FFFFF, // EOF logic 0 after 0
		0xFFFFFFFF,
	}, windows)
}

func TestManchesterSymbols(t *testing.T) {
	windows := NewBuilder().TagBits([]uint8{0, 1}).Windows()
	assert.Equal(t, []core.SampleWindow{0xFFFF0000, 0x0000FFFF, 0xFFFF0000, 0x00000000}, windows)
}

func TestWindowsPadWithLastLevel(t *testing.T) {
	windows := NewBuilder().Level(1, 8).Level(0, 4).Windows()
	require.Len(t, windows, 1)
	assert.Equal(t, core.SampleWindow(0xFF000000), windows[0])

	assert.Empty(t, NewBuilder().Windows())
}

func TestRawRoundTrip(t *testing.T) {
	windows := NewBuilder().Raw(0xDEADBEEF, 0x01234567).Windows()
	assert.Equal(t, []core.SampleWindow{0xDEADBEEF, 0x01234567}, windows)
}

func TestWriteToBigEndian(t *testing.T) {
	var buf bytes.Buffer
	n, err := NewBuilder().Raw(0x11223344).WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, uint32(0x11223344), binary.BigEndian.Uint32(buf.Bytes()))
}

func TestFrameBits(t *testing.T) {
	assert.Equal(t, []uint8{0, 1, 1, 0, 0, 1, 0}, FrameBits([]byte{0x26}, 7, false))
	assert.Equal(t, []uint8{1, 0, 0, 0, 0, 0, 0, 0, 0}, FrameBits([]byte{0x01}, 0, true))
	assert.Equal(t, uint8(1), OddParity(0x00))
	assert.Equal(t, uint8(0), OddParity(0x01))
}
