package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"firestige.xyz/nfcsniff/internal/assembler"
	"firestige.xyz/nfcsniff/internal/capture"
	"firestige.xyz/nfcsniff/internal/clock"
	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/encoder"
	"firestige.xyz/nfcsniff/internal/pipeline"
)

type decodeOptions struct {
	Link    core.Link
	Encoder string
	Flags   encoder.Flags
}

var decodeFlags struct {
	link       string
	encoder    string
	output     string
	parity     bool
	timestamps bool
}

var decodeCmd = &cobra.Command{
	Use:   "decode [FILE]",
	Short: "Decode a recorded window stream",
	Long: `Decode a recorded window stream (big-endian 32-bit windows) straight to an
encoder, without a session buffer or storage. Reads stdin when FILE is
omitted or "-". Timestamps count the windows of the recording.

Examples:
  nfcsniff decode capture.bin
  nfcsniff synth rdr:26/7 tag:4400 | nfcsniff decode --parity
  nfcsniff decode -e pcap -o capture.pcap capture.bin`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		link, err := core.ParseLink(decodeFlags.link)
		if err != nil {
			return err
		}
		name := "-"
		if len(args) == 1 {
			name = args[0]
		}
		in, err := openInput(name, cmd.InOrStdin())
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := createOutput(decodeFlags.output, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		opts := decodeOptions{
			Link:    link,
			Encoder: decodeFlags.encoder,
			Flags: encoder.Flags{
				StartTimestamp: decodeFlags.timestamps,
				EndTimestamp:   decodeFlags.timestamps,
				Parity:         decodeFlags.parity,
			},
		}
		st, err := decodeTo(cmd.Context(), in, out, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "\n%d windows, %d frames, %d bytes\n", st.Windows, st.Frames, st.Bytes)
		return nil
	},
}

func init() {
	f := decodeCmd.Flags()
	f.StringVarP(&decodeFlags.link, "link", "l", "a", "RF link: a or b (b relays raw class codes)")
	f.StringVarP(&decodeFlags.encoder, "encoder", "e", "text", "output encoder")
	f.StringVarP(&decodeFlags.output, "output", "o", "-", "output file, - for stdout")
	f.BoolVar(&decodeFlags.parity, "parity", false, "report parity bits")
	f.BoolVarP(&decodeFlags.timestamps, "timestamps", "t", false, "add start and end timestamps")
}

// createOutput creates the named output file, "-" or "" being stdout.
func createOutput(name string, stdout io.Writer) (io.WriteCloser, error) {
	if name == "" || name == "-" {
		return nopWriteCloser{stdout}, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// decodeTo runs runDecode and closes out, reporting a failed close.
func decodeTo(ctx context.Context, in io.Reader, out io.WriteCloser, opts decodeOptions) (pipeline.Stats, error) {
	st, err := runDecode(ctx, in, out, opts)
	if cerr := out.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("close output: %w", cerr))
	}
	return st, err
}

// runDecode replays in through the pipeline into a fresh encoder writing to
// out. The end of the stream stops the capture.
func runDecode(ctx context.Context, in io.Reader, out io.Writer, opts decodeOptions) (pipeline.Stats, error) {
	if opts.Link == core.LinkISO14443B && opts.Encoder != "relay" {
		return pipeline.Stats{}, fmt.Errorf("%w: %s is only relayed", core.ErrConfigInvalid, opts.Link)
	}
	enc, err := encoder.Create(opts.Encoder, nil)
	if err != nil {
		return pipeline.Stats{}, err
	}
	if err := enc.Open(encoder.Target{W: out, Flags: opts.Flags}); err != nil {
		return pipeline.Stats{}, fmt.Errorf("open encoder %s: %w", enc.Name(), err)
	}

	replay := capture.NewReplayPeripheral(in)
	p := pipeline.New(pipeline.Config{
		Peripheral: replay,
		Abort:      replay,
		Clock:      clock.Windows(replay.Windows),
		Handler:    enc,
		Options: assembler.Options{
			Parity: opts.Flags.Parity,
			Raw:    opts.Link == core.LinkISO14443B,
		},
	})
	runErr := p.Run(ctx)
	err = multierr.Combine(runErr, enc.Close(), replay.Err())
	return p.Stats(), err
}
