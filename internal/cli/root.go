// Package cli implements the finsync command line.
package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rshade/finsync/internal/config"
	"github.com/rshade/finsync/internal/logging"
)

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // Required for zerolog context integration

// NewRootCmd creates the root Cobra command for the finsync CLI.
// It resolves configuration and logging before any subcommand runs.
func NewRootCmd(ver string) *cobra.Command {
	var logResult *logging.LogPathResult

	cmd := &cobra.Command{
		Use:           "finsync",
		Short:         "Personal finance and reminders client",
		Long:          "finsync: track transactions and reminders against a finsync backend, with a local cache",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}
			result := setupLogging(cmd)
			logResult = &result
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return cleanupLogging(logResult)
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("config", "", "config file (default ~/.finsync/config.yaml)")
	cmd.PersistentFlags().String("project-dir", "", "project directory holding .finsync/config.yaml")
	cmd.PersistentFlags().
		Int("cache-ttl", 0, "cache TTL in seconds (0 = use config default, overrides config file and env var)")

	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newSettingsCmd(),
		newTxCmd(),
		newSummaryCmd(),
		newRemindersCmd(),
		newStatusCmd(),
		newConfigCmd(),
		NewSetupCmd(),
		newVersionCmd(ver),
	)

	return cmd
}

const rootCmdExample = `  # Sign in with email and password
  finsync login --email ana@example.com

  # Sign in with a configured OAuth provider
  finsync login --provider google

  # List the last 7 days of expenses
  finsync tx list --days 7 --type expense

  # Record an expense (category is inferred from the description)
  finsync tx add --amount 23.40 --description "Uber to airport"

  # Show reminders due in the next 24 hours
  finsync reminders due

  # Initialize configuration
  finsync config init`

// loadConfig builds the global configuration: the global file, the project
// overlay, the environment, then --config and --cache-ttl.
func loadConfig(cmd *cobra.Command) error {
	cacheTTL, _ := cmd.Flags().GetInt("cache-ttl")
	if cacheTTL < 0 {
		return fmt.Errorf("cache-ttl must be >= 0, got %d", cacheTTL)
	}

	flagDir, _ := cmd.Flags().GetString("project-dir")
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	projectDir := config.ResolveProjectDir(cmd.Context(), flagDir, cwd)
	config.SetResolvedProjectDir(projectDir)
	config.InitGlobalConfigWithProject(cmd.Context(), projectDir)
	cfg := config.GetGlobalConfig()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if loadErr := cfg.Load(path); loadErr != nil {
			return loadErr
		}
		cfg.SetConfigPath(path)
		cfg.ApplyEnv()
	}
	if cacheTTL > 0 {
		cfg.Cache.TTL = strconv.Itoa(cacheTTL)
	}
	return nil
}

func newVersionCmd(ver string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the finsync version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("finsync %s\n", ver)
			return nil
		},
	}
}
