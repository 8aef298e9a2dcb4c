package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"livecaption-go/pkg/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "captiond",
	Short:   "Real-time multi-language live captioning daemon",
	Version: version.GetVersionInfo(),
	Long: `captiond captures microphone audio, recognizes speech in one or more
languages concurrently, detects which language is being spoken, and
produces filtered, confidence-scored captions.

Examples:
  captiond run --config config.yaml          # run the captioning pipeline
  captiond devices                           # list capture devices
  captiond status --config config.yaml       # print a one-shot status snapshot`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to YAML configuration file")
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newDevicesCmd())
	rootCmd.AddCommand(newStatusCmd())
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
