package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/config"
	"github.com/rshade/finsync/internal/localstore"
	"github.com/rshade/finsync/internal/migration"
)

// NewConfigStorageCmd switches the local storage driver, carrying the stored
// session across.
func NewConfigStorageCmd() *cobra.Command {
	var (
		driver string
		path   string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Move local session state to another storage driver",
		Long: `Copies the stored session and profile to a new storage driver and points
storage.driver at it in the configuration file. The old state is kept.`,
		Example: `  # Move from the JSON file to SQLite
  finsync config storage --driver sqlite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigStorage(cmd, driver, path, yes)
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "target driver: file or sqlite")
	cmd.Flags().StringVar(&path, "path", "", "target path (default under the config directory)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	_ = cmd.MarkFlagRequired("driver")

	return cmd
}

func runConfigStorage(cmd *cobra.Command, driver, path string, yes bool) error {
	const op = "cli.config.storage"
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver != localstore.DriverFile && driver != localstore.DriverSQLite {
		return apierr.Newf(apierr.KindValidation, op, "unknown storage driver %q (want %s or %s)",
			driver, localstore.DriverFile, localstore.DriverSQLite)
	}

	cfg := config.GetGlobalConfig()
	fromPath, err := cfg.StoragePath()
	if err != nil {
		return err
	}
	from := migration.Location{Driver: cfg.Storage.Driver, Path: fromPath}

	target := *cfg
	target.Storage = config.StorageConfig{Driver: driver, Path: path}
	toPath, err := target.StoragePath()
	if err != nil {
		return err
	}
	to := migration.Location{Driver: driver, Path: toPath}

	if !yes && isInteractive(cmd) {
		res := newPrompter(cmd).Confirm(fmt.Sprintf("Move local state from %s to %s?", from, to))
		if !res.Accepted {
			cmd.Println("Aborted.")
			return nil
		}
	}

	res, err := migration.Run(cmd.Context(), from, to)
	if errors.Is(err, migration.ErrSameLocation) {
		return apierr.Wrap(apierr.KindValidation, op, err)
	}
	if err != nil {
		return err
	}

	if err := saveStorageSetting(cfg.ConfigPath(), target.Storage); err != nil {
		return err
	}
	cfg.Storage = target.Storage

	cmd.Printf("Copied %d of %d keys to %s\n", len(res.Copied), len(migration.StateKeys), to)
	cmd.Printf("Updated storage.driver in %s\n", cfg.ConfigPath())
	cmd.Printf("Previous state preserved at %s\n", fromPath)
	return nil
}

// saveStorageSetting rewrites only the storage section of the file at path so
// environment overrides never end up on disk.
func saveStorageSetting(path string, storage config.StorageConfig) error {
	fileCfg := config.Defaults()
	if _, err := os.Stat(path); err == nil {
		if err := fileCfg.Load(path); err != nil {
			return err
		}
	}
	fileCfg.Storage = storage
	fileCfg.SetConfigPath(path)
	if err := fileCfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	return nil
}
