package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeAdvances(t *testing.T) {
	c := NewFake(100, 10)
	assert.Equal(t, uint32(100), c.Cycles())
	assert.Equal(t, uint32(110), c.Cycles())
	c.Set(5)
	assert.Equal(t, uint32(5), c.Cycles())
}

func TestSplit(t *testing.T) {
	tests := []struct {
		cycles    uint32
		sec, nsec uint32
	}{
		{0, 0, 0},
		{168_000_000, 1, 0},
		{168, 0, 1000},
		{168_000_000 + 84_000_000, 1, 500_000_000},
		{167, 0, 0},
	}
	for _, tt := range tests {
		sec, nsec := Split(tt.cycles)
		assert.Equal(t, tt.sec, sec, "cycles %d", tt.cycles)
		assert.Equal(t, tt.nsec, nsec, "cycles %d", tt.cycles)
	}
}

func TestHostMonotonic(t *testing.T) {
	h := NewHost()
	a := h.Cycles()
	time.Sleep(time.Millisecond)
	assert.Greater(t, h.Cycles(), a)
}

func TestWindowsClock(t *testing.T) {
	var n uint64
	c := Windows(func() uint64 { return n })
	assert.Equal(t, uint32(0), c.Cycles())
	n = 2
	assert.Equal(t, uint32(2*1585), c.Cycles())
}
