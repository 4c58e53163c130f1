package main

import (
	"github.com/go-logr/logr"
	"github.com/jordigilh/rtx/internal/config"
	"github.com/jordigilh/rtx/internal/logging"
	"github.com/spf13/cobra"
)

// exitUsageError is reserved for CLI usage and configuration failures, so
// it is never confused with a policy-violation exit code (0, 1, or 2).
const exitUsageError = 3

type rootFlags struct {
	configPath string
	debug      bool
	jsonLogs   bool
}

var flags rootFlags

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rtx",
		Short:         "Dependency trust evaluation pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to rtx TOML config")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&flags.jsonLogs, "json-logs", true, "emit structured JSON logs")

	cmd.AddCommand(
		newScanCommand(),
		newPreUpgradeCommand(),
		newReportCommand(),
		newListManagersCommand(),
		newDiagnosticsCommand(),
	)
	return cmd
}

func loadConfig() (config.Config, error) {
	return config.Load(flags.configPath)
}

func newLogger() (logr.Logger, error) {
	return logging.New(logging.Options{Debug: flags.debug, JSON: flags.jsonLogs})
}
