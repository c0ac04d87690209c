package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rshade/finsync/internal/config"
)

const redacted = "********"

// NewConfigShowCmd prints the effective configuration with secrets redacted.
func NewConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Prints the configuration after merging the global file, the project
overlay, environment variables and flags. Secrets are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *config.GetGlobalConfig()
			if cfg.API.APIKey != "" {
				cfg.API.APIKey = redacted
			}
			providers := make([]any, 0, len(cfg.Auth.Providers))
			for _, p := range cfg.Auth.Providers {
				if p.ClientSecret != "" {
					p.ClientSecret = redacted
				}
				providers = append(providers, p)
			}
			out := map[string]any{
				"api":           cfg.API,
				"cache":         cfg.Cache,
				"auth":          map[string]any{"refresh_skew_seconds": cfg.Auth.RefreshSkewSeconds, "providers": providers},
				"storage":       cfg.Storage,
				"logging":       cfg.Logging,
				"notifications": cfg.Notifications,
			}
			data, err := yaml.Marshal(out)
			if err != nil {
				return fmt.Errorf("encoding configuration: %w", err)
			}
			cmd.Printf("# %s\n", cfg.ConfigPath())
			if dir := config.GetResolvedProjectDir(); dir != "" {
				cmd.Printf("# project overlay: %s\n", dir)
			}
			cmd.Print(string(data))
			return nil
		},
	}
}

// NewConfigValidateCmd creates the config validate command for validating configuration.
func NewConfigValidateCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validates the effective configuration: backend URL, version constraint,
cache TTLs, storage driver, OAuth providers and notification settings.`,
		Example: `  # Validate current configuration
  finsync config validate

  # Validate and show detailed information
  finsync config validate --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigValidate(cmd, verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed validation information")

	return cmd
}

// runConfigValidate executes the configuration validation logic.
func runConfigValidate(cmd *cobra.Command, verbose bool) error {
	cfg := config.GetGlobalConfig()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cmd.Printf("Configuration is valid\n")

	if verbose {
		printVerboseDetails(cmd, cfg)
	}

	return nil
}

// printVerboseDetails prints detailed configuration information.
func printVerboseDetails(cmd *cobra.Command, cfg *config.Config) {
	cacheCfg, _ := cfg.Cache.ToCacheConfig()
	storagePath, _ := cfg.StoragePath()

	cmd.Println()
	cmd.Println("Configuration details:")
	cmd.Printf("  Backend: %s (timeout %s)\n", cfg.API.BaseURL, cfg.API.Timeout())
	cmd.Printf("  Supported versions: %s\n", cfg.API.VersionConstraint)
	cmd.Printf("  Cache TTL: %s\n", cacheCfg.TTL)
	for resource, ttl := range cacheCfg.ByResource {
		cmd.Printf("    - %s: %s\n", resource, ttl)
	}
	cmd.Printf("  Storage: %s at %s\n", cfg.Storage.Driver, storagePath)
	cmd.Printf("  Logging level: %s\n", cfg.Logging.Level)
	cmd.Printf("  Log file: %s\n", cfg.Logging.File)

	if len(cfg.Auth.Providers) > 0 {
		cmd.Printf("  OAuth providers: %d\n", len(cfg.Auth.Providers))
		for _, p := range cfg.Auth.Providers {
			cmd.Printf("    - %s (%s)\n", p.Name, p.Issuer)
		}
	} else {
		cmd.Println("  No OAuth providers configured")
	}
}
