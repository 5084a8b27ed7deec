// Package cmd implements the tokengate command line.
package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/flownity-dev/flownity-backend-sub000/config"
)

var BuildVersion = "dev"

// global flags
var (
	verbose   bool
	logFormat string
)

// cfg is loaded from the environment before any subcommand runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "tokengate",
	Short: "Bearer token verification gateway",
	Long: `tokengate verifies opaque GitHub and Google bearer credentials by asking
the issuing provider, and caches the resulting identity.

Settings are read from AUTH_* environment variables; run 'tokengate config'
to see the effective values.`,
	Version: BuildVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		initLogging(verbose || loaded.VerboseLogging)
		if err != nil {
			return err
		}
		cfg = loaded
		log.Debug().Msg("configuration loaded")
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("execution failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging (also enabled by AUTH_VERBOSE_LOGGING=true)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console, json)")

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

func initLogging(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var logger zerolog.Logger
	if logFormat == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = logger.Level(level).With().Timestamp().Logger()
}
