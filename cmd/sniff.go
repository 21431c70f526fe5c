package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/nfcsniff/internal/capture"
	"firestige.xyz/nfcsniff/internal/clock"
	"firestige.xyz/nfcsniff/internal/config"
	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/encoder"
	"firestige.xyz/nfcsniff/internal/hw"
	"firestige.xyz/nfcsniff/internal/log"
	"firestige.xyz/nfcsniff/internal/metrics"
	"firestige.xyz/nfcsniff/internal/session"
	"firestige.xyz/nfcsniff/internal/storage"
)

// metricsPublishInterval is how often live pipeline counters reach Prometheus.
const metricsPublishInterval = time.Second

var sniffFlags struct {
	input   string
	link    string
	encoder string
	dir     string
	parity  bool
	serial  bool
}

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Run one sniff session",
	Long: `Run one capture session until the abort button, a byte on the relay link,
the end of the replayed stream or Ctrl-C stops it.

The text and pcap traces are buffered and persisted under storage.dir when the
session ends. The relay stream goes to the serial link or to stdout.

Examples:
  nfcsniff sniff -i capture.bin                    # replay a recording, text trace
  nfcsniff sniff -i capture.bin -e pcap -d ./out   # persist a pcap file
  nfcsniff sniff -c nfcsniff.yml --serial          # relay over the serial link`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applySniffFlags(cmd, cfg); err != nil {
			return err
		}
		if err := log.Init(cfg.Log); err != nil {
			return fmt.Errorf("init log: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSniff(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	f := sniffCmd.Flags()
	f.StringVarP(&sniffFlags.input, "input", "i", "", "recorded window stream to replay, - for stdin")
	f.StringVarP(&sniffFlags.link, "link", "l", "", "RF link: a or b")
	f.StringVarP(&sniffFlags.encoder, "encoder", "e", "", "output encoder: "+fmt.Sprint(encoder.Names()))
	f.StringVarP(&sniffFlags.dir, "dir", "d", "", "directory traces are persisted to")
	f.BoolVar(&sniffFlags.parity, "parity", false, "report parity bits")
	f.BoolVar(&sniffFlags.serial, "serial", false, "relay over the serial link")
}

// applySniffFlags overrides the loaded config with the flags set on the
// command line, then validates the result again.
func applySniffFlags(cmd *cobra.Command, cfg *config.GlobalConfig) error {
	f := cmd.Flags()
	if f.Changed("input") {
		cfg.Replay.Input = sniffFlags.input
	}
	if f.Changed("link") {
		cfg.Session.Link = sniffFlags.link
	}
	if f.Changed("encoder") {
		cfg.Session.Encoder = sniffFlags.encoder
	}
	if f.Changed("dir") {
		cfg.Storage.Dir = sniffFlags.dir
	}
	if f.Changed("parity") {
		cfg.Session.Parity = sniffFlags.parity
	}
	if f.Changed("serial") {
		cfg.Session.RelayOverSerial = sniffFlags.serial
	}
	return cfg.ValidateAndApplyDefaults()
}

// runSniff wires the configured peripherals into one session and runs it.
// Traces that are not persisted go to stdout, the summary to stderr.
func runSniff(ctx context.Context, cfg *config.GlobalConfig, stdin io.Reader, stdout, stderr io.Writer) error {
	logger := log.GetLogger().WithField("component", "sniff")

	link, err := core.ParseLink(cfg.Session.Link)
	if err != nil {
		return err
	}
	if cfg.Replay.Input == "" {
		return fmt.Errorf("%w: no capture peripheral, set replay.input", core.ErrConfigInvalid)
	}
	in, err := openInput(cfg.Replay.Input, stdin)
	if err != nil {
		return err
	}
	defer in.Close()
	replay := capture.NewReplayPeripheral(in)

	aborts := capture.Any{replay}
	deps := session.Deps{
		Peripheral: replay,
		Clock:      clock.Windows(replay.Windows),
		Storage:    storage.NewDir(cfg.Storage.Dir, cfg.Storage.MaxFiles),
		Console:    stdout,
	}

	if cfg.Hardware.Enabled {
		g, err := hw.OpenGPIO(cfg.Hardware.AbortPin, cfg.Hardware.SuccessLED, cfg.Hardware.FailureLED)
		if err != nil {
			return err
		}
		aborts = append(aborts, g.Button)
		deps.Indicator = g.Indicator
	}

	if cfg.Session.RelayOverSerial {
		port, err := hw.OpenSerial(cfg.Relay.Port, cfg.Relay.Baud)
		if err != nil {
			return err
		}
		defer port.Close()

		var remote capture.Flag
		done := make(chan struct{})
		defer close(done)
		go hw.WatchInput(port, &remote, done)
		aborts = append(aborts, &remote)
		deps.Relay = port
	}
	deps.Abort = aborts

	sess, err := session.New(session.Config{
		Link:           link,
		Encoder:        cfg.Session.Encoder,
		EncoderOptions: cfg.Session.EncoderOptions,
		Flags: encoder.Flags{
			StartTimestamp: cfg.Session.StartTimestamp,
			EndTimestamp:   cfg.Session.EndTimestamp,
			Parity:         cfg.Session.Parity,
		},
		RelayOverSerial: cfg.Session.RelayOverSerial,
		BufferSize:      cfg.Session.BufferSize,
		FilePattern:     cfg.Storage.Pattern,
	}, deps)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.WithError(err).Warn("metrics server shutdown failed")
			}
		}()
		publishCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go publishMetrics(publishCtx, sess)
	}

	res, err := sess.Run(ctx)
	if rerr := replay.Err(); rerr != nil {
		logger.WithError(rerr).Warn("replay input truncated")
	}
	if err != nil {
		return err
	}
	printSummary(stderr, res)
	return nil
}

func publishMetrics(ctx context.Context, sess *session.Session) {
	ticker := time.NewTicker(metricsPublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m := sess.Metrics(); m != nil {
				m.Publish()
			}
		}
	}
}

func printSummary(w io.Writer, res *session.Result) {
	st := res.Stats
	fmt.Fprintf(w, "encoder:  %s\n", res.Encoder)
	fmt.Fprintf(w, "windows:  %d\n", st.Windows)
	fmt.Fprintf(w, "frames:   %d (reader %d, tag %d, unknown %d, raw %d)\n",
		st.Frames, st.MillerFrames, st.ManchesterFrames, st.UnknownFrames, st.RawFrames)
	fmt.Fprintf(w, "bytes:    %d\n", st.Bytes)
	if res.DroppedBytes > 0 {
		fmt.Fprintf(w, "dropped:  %d bytes (buffer full)\n", res.DroppedBytes)
	}
	switch {
	case res.Persisted:
		fmt.Fprintf(w, "saved:    %s\n", res.File)
	case res.PersistErr != nil:
		fmt.Fprintf(w, "not saved: %v\n", res.PersistErr)
	}
	fmt.Fprintf(w, "duration: %s\n", res.Duration.Round(time.Millisecond))
}
