package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleWindowIdle(t *testing.T) {
	tests := []struct {
		w    SampleWindow
		idle bool
	}{
		{0x00000000, true},
		{0xFFFFFFFF, true},
		{0x007FFFFF, false},
		{0xFFFFFFFE, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.idle, tt.w.Idle(), "window %08x", uint32(tt.w))
	}
}

func TestParseLink(t *testing.T) {
	for _, s := range []string{"a", "A", "iso14443a"} {
		l, err := ParseLink(s)
		require.NoError(t, err)
		assert.Equal(t, LinkISO14443A, l)
	}
	l, err := ParseLink("b")
	require.NoError(t, err)
	assert.Equal(t, LinkISO14443B, l)

	_, err = ParseLink("felica")
	assert.True(t, errors.Is(err, ErrConfigInvalid))
}

func TestFrameHelpers(t *testing.T) {
	f := &Frame{
		Bytes:       []DecodedByte{{Value: 0x93, Bits: 8}, {Value: 0x05, Bits: 5}},
		StartCycles: 0xFFFFFFF0,
		EndCycles:   0x00000010,
	}
	assert.Equal(t, []byte{0x93, 0x05}, f.Data())
	assert.Equal(t, uint32(0x20), f.Duration(), "duration survives counter wrap")
	assert.False(t, f.Bytes[0].Partial())
	assert.True(t, f.Bytes[1].Partial())
	assert.Equal(t, "manchester", ModulationManchester.String())
}
