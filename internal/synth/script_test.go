package synth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"firestige.xyz/nfcsniff/internal/assembler"
	"firestige.xyz/nfcsniff/internal/clock"
	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/synth"
)

func TestParseStep(t *testing.T) {
	tests := []struct {
		in      string
		want    synth.Step
		wantErr bool
	}{
		{in: "rdr:26/7", want: synth.Step{Data: []byte{0x26}, LastBits: 7}},
		{in: "reader:9320", want: synth.Step{Data: []byte{0x93, 0x20}}},
		{in: "TAG:0400", want: synth.Step{Tag: true, Data: []byte{0x04, 0x00}}},
		{in: "tag:04/4", wantErr: true},
		{in: "rdr:26/8", wantErr: true},
		{in: "rdr:26/x", wantErr: true},
		{in: "rdr:2", wantErr: true},
		{in: "rdr:", wantErr: true},
		{in: "pcd:26", wantErr: true},
		{in: "26", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := synth.ParseStep(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type frames []*core.Frame

func (fs *frames) HandleFrame(f *core.Frame) error {
	*fs = append(*fs, f)
	return nil
}

func decode(windows []core.SampleWindow) frames {
	var fs frames
	a := assembler.New(clock.NewFake(0, 1), &fs, assembler.Options{Parity: true})
	for _, w := range windows {
		a.Push(w)
	}
	a.Finish()
	return fs
}

func TestScriptAnticollision(t *testing.T) {
	steps := []synth.Step{
		{Data: []byte{0x26}, LastBits: 7},
		{Tag: true, Data: []byte{0x44, 0x00}},
		{Data: []byte{0x93, 0x20}},
		{Tag: true, Data: []byte{0x88, 0x04, 0xB6, 0xDD, 0xE7}},
		{Data: []byte{0x93, 0x70, 0x88, 0x04, 0xB6, 0xDD, 0xE7}},
		{Tag: true, Data: []byte{0x08}},
	}
	fs := decode(synth.NewBuilder().Script(steps...).Windows())
	require.Len(t, fs, len(steps))

	for i, st := range steps {
		want := core.ModulationMiller
		if st.Tag {
			want = core.ModulationManchester
		}
		assert.Equal(t, want, fs[i].Modulation, "frame %d", i)
		assert.Equal(t, st.Data, fs[i].Data(), "frame %d", i)
	}
	// full-byte reader frames carry parity
	assert.True(t, fs[2].Bytes[0].HasParity)
	assert.Equal(t, synth.OddParity(0x93), fs[2].Bytes[0].Parity)
}

func TestScriptRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "frames")
		steps := make([]synth.Step, n)
		for i := range steps {
			steps[i] = synth.Step{
				Tag:  rapid.Bool().Draw(t, "tag"),
				Data: rapid.SliceOfN(rapid.Byte(), 1, 8).Draw(t, "data"),
			}
		}
		fs := decode(synth.NewBuilder().Script(steps...).Windows())
		if len(fs) != n {
			t.Fatalf("got %d frames, want %d", len(fs), n)
		}
		for i, st := range steps {
			if got := fs[i].Data(); string(got) != string(st.Data) {
				t.Fatalf("frame %d decoded %x, want %x", i, got, st.Data)
			}
		}
	})
}
