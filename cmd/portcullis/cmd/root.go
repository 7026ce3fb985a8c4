package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/portcullis/internal/config"
	"github.com/jmcleod/portcullis/internal/logging"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "portcullis",
	Short: "Portcullis guards a site's admin panel with signed session cookies",
	Long: `Portcullis serves a marketing site and its admin panel, authenticating
administrators with HMAC-signed session cookies and no server-side session
store. It can also run as an edge gate in front of another server.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("PORTCULLIS_CONFIG"),
		"Path to the YAML configuration file (env PORTCULLIS_CONFIG)")
}

// loadConfig loads the configuration, applies override before validation and
// installs the configured logger as the slog default.
func loadConfig(override func(*config.Config)) (*config.Config, *slog.Logger, error) {
	var overrides []func(*config.Config)
	if override != nil {
		overrides = append(overrides, override)
	}
	cfg, err := config.Load(configPath, overrides...)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
