package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/finsync/internal/config"
	"github.com/rshade/finsync/internal/logging"
)

// setupLogging builds the CLI logger from config and the --debug flag, and
// stores it with a trace ID on the command context.
func setupLogging(cmd *cobra.Command) logging.LogPathResult {
	lc := config.GetLoggingConfig()
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		lc.Level, lc.Format, lc.File = "debug", "console", ""
	}

	stderr := cmd.ErrOrStderr()
	if lc.File != "" {
		if err := config.EnsureLogDir(); err != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: could not create log directory: %v\n", err)
		}
	}

	result := logging.NewLoggerWithPath(lc.ToLoggingConfig())
	logger = logging.ComponentLogger(result.Logger, "cli")

	switch {
	case result.UsingFile:
		logging.PrintLogPathMessage(stderr, result.FilePath)
	case result.FallbackUsed:
		logging.PrintFallbackWarning(stderr, result.FallbackReason)
	}

	ctx := cmd.Context()
	traceID := logging.GetOrGenerateTraceID(ctx)
	ctx = logger.WithContext(logging.ContextWithTraceID(ctx, traceID))
	cmd.SetContext(ctx)

	logger.Debug().
		Ctx(ctx).
		Str("command", cmd.CommandPath()).
		Str("trace_id", traceID).
		Str("storage_driver", config.GetGlobalConfig().Storage.Driver).
		Msg("command started")

	return result
}

// cleanupLogging closes the log file, if one was opened.
func cleanupLogging(result *logging.LogPathResult) error {
	if result == nil {
		return nil
	}
	return result.Close()
}
