// Package cmd implements the extractforms CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Guillaume-Lombardo/extractforms/internal/config"
	"github.com/Guillaume-Lombardo/extractforms/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	settings *config.Settings
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "extractforms",
	Short: "Extract structured form fields from PDF documents",
	Long: `extractforms renders PDF pages to images, infers a field schema with a
multimodal model (or parses OCR output), extracts the field values and
writes them as JSON. Inferred schemas are cached by document fingerprint
so repeat documents skip the inference pass.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			settings.LogLevel = logLevel
		}
		logger = logging.Setup(os.Stderr, settings.LogLevel, settings.LogJSON)
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./extractforms.{yaml,toml,json})")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug|info|warn|error)")
}
