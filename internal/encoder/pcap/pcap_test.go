package pcap

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/encoder"
)

func open(t *testing.T, options map[string]interface{}, flags encoder.Flags) (encoder.Encoder, *bytes.Buffer) {
	t.Helper()
	e, err := New(options)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, e.Open(encoder.Target{W: &out, Flags: flags}))
	return e, &out
}

func TestGlobalHeader(t *testing.T) {
	_, out := open(t, nil, encoder.Flags{})

	p := out.Bytes()
	require.Len(t, p, 24)
	assert.Equal(t, uint32(0xa1b23c4d), binary.LittleEndian.Uint32(p[0:4]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(p[4:6]))
	assert.Equal(t, uint16(4), binary.LittleEndian.Uint16(p[6:8]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(p[8:12]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(p[12:16]))
	assert.Equal(t, uint32(0xffff), binary.LittleEndian.Uint32(p[16:20]))
	assert.Equal(t, uint32(147), binary.LittleEndian.Uint32(p[20:24]))
}

func TestRecordReadsBack(t *testing.T) {
	e, out := open(t, nil, encoder.Flags{Parity: true})
	require.NoError(t, e.HandleFrame(&core.Frame{
		Modulation:  core.ModulationMiller,
		StartCycles: 168_000_000,
		EndCycles:   0x0A0B0C0D,
		Bytes:       []core.DecodedByte{{Value: 0x93, Bits: 8}, {Value: 0x20, Bits: 8}},
	}))
	require.NoError(t, e.HandleFrame(&core.Frame{
		Modulation:  core.ModulationManchester,
		StartCycles: 168_000_000 + 168*1500,
		Bytes:       []core.DecodedByte{{Value: 0x04, Bits: 8}},
	}))

	r, err := pcapgo.NewReader(out)
	require.NoError(t, err)
	assert.Equal(t, LinkTypeUser0, r.LinkType())
	assert.Equal(t, uint32(0xffff), r.Snaplen())

	data, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, int64(1), ci.Timestamp.Unix())
	assert.Equal(t, 0, ci.Timestamp.Nanosecond())
	assert.Equal(t, []byte{0x7F, 0xB0, 0xC0, 0x0A, 0x0B, 0x0C, 0x0D, 0xD1, 0x93, 0x20}, data)
	assert.Equal(t, len(data), ci.Length)

	data, ci, err = r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, int64(1), ci.Timestamp.Unix())
	assert.Equal(t, 1500*int(time.Microsecond), ci.Timestamp.Nanosecond())
	assert.Equal(t, byte(0xB1), data[1])
	assert.Equal(t, []byte{0x04}, data[pseudoHeaderLen:])
}

func TestEmptyFrameCarriesPadByte(t *testing.T) {
	got := AppendRecordData(nil, &core.Frame{Modulation: core.ModulationUnknown}, false)
	assert.Equal(t, []byte{0x7F, 0xB2, 0xC0, 0, 0, 0, 0, 0xD0, 0x00}, got)
	assert.Len(t, got, pseudoHeaderLen+1)
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		cycles uint32
		epoch  int64
		sec    int64
		nsec   int
	}{
		{cycles: 0, sec: 0, nsec: 0},
		{cycles: 168_000_000, sec: 1, nsec: 0},
		{cycles: 168_000_000 + 84_000_000, sec: 1, nsec: 500_000_000},
		{cycles: 167, sec: 0, nsec: 0},
		{cycles: 168, sec: 0, nsec: 1000},
		{cycles: 168_000_000, epoch: 0x555d03e0, sec: 0x555d03e1, nsec: 0},
	}
	for _, tt := range tests {
		ts := Timestamp(tt.cycles, tt.epoch)
		assert.Equal(t, tt.sec, ts.Unix(), "cycles %d", tt.cycles)
		assert.Equal(t, tt.nsec, ts.Nanosecond(), "cycles %d", tt.cycles)
	}
}

func TestRecordHeaderSubSecondField(t *testing.T) {
	e, out := open(t, nil, encoder.Flags{})
	require.NoError(t, e.HandleFrame(&core.Frame{
		Modulation:  core.ModulationMiller,
		StartCycles: 168_000_000 + 840,
		Bytes:       []core.DecodedByte{{Value: 0x26, Bits: 8}},
	}))

	rec := out.Bytes()[24:]
	require.GreaterOrEqual(t, len(rec), 16)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(rec[0:4]))
	assert.Equal(t, uint32(5000), binary.LittleEndian.Uint32(rec[4:8]))
	assert.Equal(t, uint32(pseudoHeaderLen+1), binary.LittleEndian.Uint32(rec[8:12]))
	assert.Equal(t, uint32(pseudoHeaderLen+1), binary.LittleEndian.Uint32(rec[12:16]))
}

func TestMicrosecondOption(t *testing.T) {
	e, out := open(t, map[string]interface{}{"nanosecond": false, "snaplen": 512}, encoder.Flags{})
	assert.Equal(t, uint32(0xa1b2c3d4), binary.LittleEndian.Uint32(out.Bytes()[0:4]))
	assert.Equal(t, uint32(512), binary.LittleEndian.Uint32(out.Bytes()[16:20]))

	require.NoError(t, e.HandleFrame(&core.Frame{
		Modulation:  core.ModulationMiller,
		StartCycles: 168_000_000 + 840,
		Bytes:       []core.DecodedByte{{Value: 0x26, Bits: 7}},
	}))
	rec := out.Bytes()[24:]
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(rec[4:8]), "microseconds")

	r, err := pcapgo.NewReader(out)
	require.NoError(t, err)
	_, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, 5000, ci.Timestamp.Nanosecond())
}

func TestClosedEncoder(t *testing.T) {
	e, _ := open(t, nil, encoder.Flags{})
	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.HandleFrame(&core.Frame{}), core.ErrEncoderClosed)
}
