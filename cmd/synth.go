package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"firestige.xyz/nfcsniff/internal/synth"
)

var synthFlags struct {
	output string
	pause  int
}

var synthCmd = &cobra.Command{
	Use:   "synth FRAME...",
	Short: "Synthesize a recorded window stream",
	Long: `Synthesize the oversampled subcarrier of a reader/tag exchange and write
it as a window stream that "sniff" and "decode" can replay.

A frame is rdr:HEX[/BITS] for a reader command, BITS being the bit count of
a short last byte, or tag:HEX for a tag answer. Frames made of full bytes
carry odd parity.

Examples:
  nfcsniff synth -o reqa.bin rdr:26/7
  nfcsniff synth rdr:26/7 tag:4400 rdr:9320 tag:8804B6DDE7 > anticoll.bin`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := createOutput(synthFlags.output, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return multierr.Append(runSynth(args, synthFlags.pause, out), out.Close())
	},
}

func init() {
	synthCmd.Flags().StringVarP(&synthFlags.output, "output", "o", "-", "output file, - for stdout")
	synthCmd.Flags().IntVar(&synthFlags.pause, "pause", synth.DefaultPause, "reader pause width in samples")
}

func runSynth(frames []string, pause int, out io.Writer) error {
	steps := make([]synth.Step, 0, len(frames))
	for _, s := range frames {
		st, err := synth.ParseStep(s)
		if err != nil {
			return err
		}
		steps = append(steps, st)
	}
	if pause <= 0 || pause >= synth.SamplesPerBit/2 {
		return fmt.Errorf("pause must be 1..%d samples", synth.SamplesPerBit/2-1)
	}
	_, err := synth.NewBuilder().Pause(pause).Script(steps...).WriteTo(out)
	return err
}
