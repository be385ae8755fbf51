package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"biosecure/internal/gateway/config"
	"biosecure/internal/logging"
)

type rootFlags struct {
	logLevel  string
	logFormat string
	offline   bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:   "biosecure",
		Short: "Biosecurity insect investigation service",
		Long: `biosecure identifies an insect from an image, checks it against the
biosecurity threat register, assesses weather-driven spread risk around
where it was found and publishes an HTML report.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error); default $LOG_LEVEL")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format (text, json); default $LOG_FORMAT")
	pf.BoolVar(&flags.offline, "offline", false, "Use canned model, weather, geocoding and storage backends")

	root.AddCommand(newServeCmd(&flags))
	root.AddCommand(newInvestigateCmd(&flags))
	root.AddCommand(newClassifyCmd())
	return root
}

// loadConfig reads the environment and applies the global flags on top.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.LogFormat = flags.logFormat
	}
	if flags.offline {
		cfg.Offline = true
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), strings.ToLower(cfg.LogFormat), os.Stderr)
	return cfg, nil
}
