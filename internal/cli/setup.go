package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/rshade/finsync/internal/app"
	"github.com/rshade/finsync/internal/config"
	"github.com/rshade/finsync/internal/logging"
	"github.com/rshade/finsync/pkg/version"
)

// StepStatus represents the outcome of a single setup step.
type StepStatus int

const (
	// StepSuccess indicates the step completed successfully.
	StepSuccess StepStatus = iota
	// StepWarning indicates the step completed with a non-fatal issue.
	StepWarning
	// StepSkipped indicates the step was intentionally skipped via flag.
	StepSkipped
	// StepError indicates the step failed.
	StepError
)

// StepResult describes the outcome of executing a single setup step.
type StepResult struct {
	Name     string
	Status   StepStatus
	Message  string
	Critical bool
	Err      error
}

// SetupOptions holds the configuration for the setup command, derived from CLI flags.
type SetupOptions struct {
	SkipBackend    bool
	NonInteractive bool
}

// SetupResult is the aggregate outcome of all setup steps.
type SetupResult struct {
	Steps       []StepResult
	HasErrors   bool
	HasWarnings bool
}

// dirPermBase is the permission mode for the config and log directories.
const dirPermBase = 0o700

// formatStatus returns a status marker appropriate for the output mode.
func formatStatus(status StepStatus, nonInteractive bool) string {
	if nonInteractive {
		switch status {
		case StepSuccess:
			return "[OK]"
		case StepWarning:
			return "[WARN]"
		case StepSkipped:
			return "[SKIP]"
		case StepError:
			return "[ERR]"
		default:
			return "[??]"
		}
	}

	switch status {
	case StepSuccess:
		return "\u2713" // ✓
	case StepWarning:
		return "!"
	case StepSkipped:
		return "-"
	case StepError:
		return "\u2717" // ✗
	default:
		return "?"
	}
}

// NewSetupCmd creates the top-level setup command that prepares a device.
func NewSetupCmd() *cobra.Command {
	var opts SetupOptions

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Prepare this device for finsync",
		Long: `Creates the finsync directories, writes a default configuration when none
exists, checks that the backend is reachable and supported, and reports
whether a session is stored.

Safe to run repeatedly. Existing configuration is never overwritten.`,
		Example: `  # Full setup
  finsync setup

  # CI/CD setup (no TTY-dependent output)
  finsync setup --non-interactive

  # Offline: skip the backend check
  finsync setup --skip-backend`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSetup(cmd, &opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NonInteractive, "non-interactive", false,
		"Disable TTY-dependent output (status symbols)")
	cmd.Flags().BoolVar(&opts.SkipBackend, "skip-backend", false,
		"Skip the backend reachability check")

	return cmd
}

// runSetup runs every step even when an earlier one fails. It returns an
// error only if a critical step fails.
func runSetup(cmd *cobra.Command, opts *SetupOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log := logging.FromContext(ctx)

	if !opts.NonInteractive && !isWriterTerminal(cmd.OutOrStdout()) {
		opts.NonInteractive = true
	}

	result := &SetupResult{}
	record := func(steps ...StepResult) {
		for _, s := range steps {
			printStep(cmd, s, opts.NonInteractive)
			result.Steps = append(result.Steps, s)
		}
	}

	record(stepDisplayVersion())
	record(stepCreateDirectories()...)
	record(stepInitConfig())

	a, err := newApp(cmd)
	if err != nil {
		record(StepResult{
			Name:     "Client initialization",
			Status:   StepError,
			Message:  fmt.Sprintf("Invalid configuration: %v", err),
			Critical: true,
			Err:      err,
		})
	} else {
		defer a.Close()
		if opts.SkipBackend {
			record(StepResult{
				Name:    "Backend check",
				Status:  StepSkipped,
				Message: "Skipped backend check",
			})
		} else {
			record(stepCheckBackend(ctx, a))
		}
		record(stepSessionStatus(ctx, a))
	}

	for _, s := range result.Steps {
		if s.Status == StepError && s.Critical {
			result.HasErrors = true
		}
		if s.Status == StepWarning {
			result.HasWarnings = true
		}
	}

	printSummary(cmd, result)

	if result.HasErrors {
		log.Error().
			Ctx(ctx).
			Str("component", "setup").
			Msg("setup completed with critical errors")
		return errors.New("setup failed: one or more critical steps failed")
	}

	return nil
}

// printStep outputs a single step's status line.
func printStep(cmd *cobra.Command, step StepResult, nonInteractive bool) {
	marker := formatStatus(step.Status, nonInteractive)
	cmd.Printf("%s %s\n", marker, step.Message)
}

// printSummary outputs the final completion message.
func printSummary(cmd *cobra.Command, result *SetupResult) {
	cmd.Println()
	if result.HasErrors {
		cmd.Println("Setup completed with errors. Review the messages above for remediation steps.")
	} else {
		cmd.Println("Setup complete! Run 'finsync login' to get started.")
	}
}

func stepDisplayVersion() StepResult {
	return StepResult{
		Name:    "Version display",
		Status:  StepSuccess,
		Message: fmt.Sprintf("finsync v%s (%s)", version.GetVersion(), runtime.Version()),
	}
}

func stepCreateDirectories() []StepResult {
	baseDir, err := config.GetConfigDir()
	if err != nil {
		return []StepResult{{
			Name:     "Directory creation",
			Status:   StepError,
			Message:  fmt.Sprintf("Cannot resolve the config directory: %v", err),
			Critical: true,
			Err:      err,
		}}
	}

	dirs := []string{baseDir}
	if logFile := config.GetGlobalConfig().Logging.File; logFile != "" {
		dirs = append(dirs, filepath.Dir(logFile))
	}

	var results []StepResult
	for _, dir := range dirs {
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			results = append(results, StepResult{
				Name:     "Directory creation",
				Status:   StepSuccess,
				Message:  fmt.Sprintf("Directory exists: %s", dir),
				Critical: true,
			})
			continue
		}

		if mkErr := os.MkdirAll(dir, dirPermBase); mkErr != nil {
			results = append(results, StepResult{
				Name:   "Directory creation",
				Status: StepError,
				Message: fmt.Sprintf("Failed to create %s: %v\n  Try: export %s=/path/to/writable/directory",
					dir, mkErr, config.EnvHome),
				Critical: true,
				Err:      mkErr,
			})
			continue
		}

		results = append(results, StepResult{
			Name:     "Directory creation",
			Status:   StepSuccess,
			Message:  fmt.Sprintf("Created %s", dir),
			Critical: true,
		})
	}

	return results
}

func stepInitConfig() StepResult {
	configPath := config.ConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return StepResult{
			Name:     "Config initialization",
			Status:   StepSuccess,
			Message:  fmt.Sprintf("Config already exists (%s)", configPath),
			Critical: true,
		}
	}

	cfg := config.Defaults()
	cfg.SetConfigPath(configPath)
	if err := cfg.Save(); err != nil {
		return StepResult{
			Name:     "Config initialization",
			Status:   StepError,
			Message:  fmt.Sprintf("Failed to initialize config: %v", err),
			Critical: true,
			Err:      err,
		}
	}

	return StepResult{
		Name:     "Config initialization",
		Status:   StepSuccess,
		Message:  fmt.Sprintf("Created config (%s)", configPath),
		Critical: true,
	}
}

func stepCheckBackend(ctx context.Context, a *app.App) StepResult {
	compat, err := a.Gateway.CheckCompatibility(ctx)
	if err != nil {
		logging.FromContext(ctx).Debug().
			Ctx(ctx).
			Str("component", "setup").
			Err(err).
			Msg("backend check failed")
		return StepResult{
			Name:    "Backend check",
			Status:  StepWarning,
			Message: fmt.Sprintf("Backend %s check failed: %v", a.API.BaseURL(), err),
			Err:     err,
		}
	}
	if !compat.Compatible {
		return StepResult{
			Name:   "Backend check",
			Status: StepWarning,
			Message: fmt.Sprintf("Backend %s reports version %s, expected %s",
				a.API.BaseURL(), compat.Version, compat.Constraint),
		}
	}
	return StepResult{
		Name:    "Backend check",
		Status:  StepSuccess,
		Message: fmt.Sprintf("Backend %s version %s", a.API.BaseURL(), compat.Version),
	}
}

func stepSessionStatus(ctx context.Context, a *app.App) StepResult {
	sess, ok, err := a.Sessions.Restore(ctx)
	if err != nil {
		return StepResult{
			Name:    "Session check",
			Status:  StepWarning,
			Message: fmt.Sprintf("Stored session could not be restored: %v", err),
			Err:     err,
		}
	}
	if ok {
		return StepResult{
			Name:    "Session check",
			Status:  StepSuccess,
			Message: fmt.Sprintf("Signed in as %s", sess.Email),
		}
	}
	return StepResult{
		Name:    "Session check",
		Status:  StepSuccess,
		Message: "No stored session",
	}
}
