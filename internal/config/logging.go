package config

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/finsync/internal/logging"
)

// Logger is the global zerolog logger instance.
//
//nolint:gochecknoglobals // Logger is intentionally global for application-wide structured logging
var Logger zerolog.Logger

// logResult tracks the open log file so it can be closed on re-init.
//
//nolint:gochecknoglobals // Tracks the global logger's file handle for proper cleanup
var logResult *logging.LogPathResult

// logMu protects concurrent access to logResult and Logger.
//
//nolint:gochecknoglobals // Guards the global logger state
var logMu sync.RWMutex

// InitLogger rebuilds the package-level Logger from lc. A file that cannot be
// opened falls back to stderr; the returned result reports where logs went.
func InitLogger(lc LoggingConfig) logging.LogPathResult {
	logMu.Lock()
	defer logMu.Unlock()

	closeLogFileLocked()

	result := logging.NewLoggerWithPath(lc.ToLoggingConfig())
	logResult = &result
	Logger = result.Logger
	return result
}

// SetLogLevel sets the package global Logger's level to the value parsed from level.
// If the provided level cannot be parsed, the logger level is set to zerolog.InfoLevel.
func SetLogLevel(level string) {
	logMu.Lock()
	defer logMu.Unlock()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	Logger = Logger.Level(lvl)
}

// CloseLogFile closes the current log file, if any, and resets the Logger to stderr.
func CloseLogFile() {
	logMu.Lock()
	defer logMu.Unlock()
	closeLogFileLocked()
}

// closeLogFileLocked must be called with logMu held.
func closeLogFileLocked() {
	if logResult == nil || !logResult.UsingFile {
		return
	}
	_ = logResult.Close()
	logResult = nil
	Logger = consoleLogger(os.Stderr, Logger.GetLevel())
}

func consoleLogger(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// GetLogger returns the global logger instance.
func GetLogger() zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return Logger
}

// init installs an info-level console logger so the package can log before
// configuration is loaded.
//
//nolint:gochecknoinits // intentional: package-level logger must be initialized before use
func init() {
	Logger = consoleLogger(os.Stderr, zerolog.InfoLevel)
}

// ToLoggingConfig converts the section to a logging.Config. A configured
// file selects file output; otherwise logs go to stderr.
func (lc LoggingConfig) ToLoggingConfig() logging.Config {
	output := logging.OutputStderr
	if lc.File != "" {
		output = logging.OutputFile
	}

	return logging.Config{
		Level:  lc.Level,
		Format: lc.Format,
		Output: output,
		File:   lc.File,
	}
}

// GetLoggingConfig returns the Logging section of the global configuration.
func GetLoggingConfig() LoggingConfig {
	return GetGlobalConfig().Logging
}
