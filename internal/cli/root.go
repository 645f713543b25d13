// Package cli implements portalctl, the operator tool for the ticket portal.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/config"
	"github.com/spec-kit/ticket-portal/internal/observability"
)

var (
	cfg     *config.Config
	logger  *zap.Logger
	verbose bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "Operate the ticket portal",
	Long: `portalctl runs maintenance tasks against the ticket portal's stores
and lets operators replay backend notifications through the normalizer.

Configuration is read from the same environment variables as the API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		level := cfg.Logger.Level
		if verbose {
			level = "debug"
		}
		logger, err = observability.NewLogger(config.LoggerConfig{Level: level})
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "portalctl %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(quarantineCmd)
	rootCmd.AddCommand(versionCmd)
}

func SetVersion(v string) {
	version = v
}

func Execute() error {
	return rootCmd.Execute()
}

func Root() *cobra.Command {
	return rootCmd
}
