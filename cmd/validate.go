package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/nfcsniff/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without running a session.

Defaults are applied first, so a partial file is valid as long as the values it
sets are. The NFCSNIFF_ environment overrides apply as they would for "sniff".

Examples:
  nfcsniff validate -f nfcsniff.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(validateConfigFile, cmd.OutOrStdout()); err != nil {
			exitWithError("INVALID", err)
		}
	},
}

var validateConfigFile string

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "file", "f", "",
		"configuration file to validate (required)")
	validateCmd.MarkFlagRequired("file")
}

func runValidate(path string, out io.Writer) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	persisted := "persisted to " + cfg.Storage.Dir
	if cfg.Session.Encoder == "relay" || cfg.Session.RelayOverSerial {
		persisted = "relayed"
	}
	fmt.Fprintf(out, "VALID: %s capture, %s encoder, %s\n",
		cfg.Session.Link, cfg.Session.Encoder, persisted)
	return nil
}
