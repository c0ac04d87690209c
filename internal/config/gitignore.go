package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// localOnlyPatterns are files under a project .finsync/ directory that hold
// per-device state. config.yaml is deliberately absent from the list.
//
//nolint:gochecknoglobals // Read-only pattern list.
var localOnlyPatterns = []string{
	"state.json",
	"state.json.lock",
	"state.json.tmp",
	"state.json.corrupt",
	"state.db",
	"state.db-journal",
	"*.log",
}

// GitignoreContent returns the .gitignore written into project .finsync/
// directories.
func GitignoreContent() string {
	var sb strings.Builder
	sb.WriteString("# finsync project-local data (auto-generated)\n")
	sb.WriteString("# Config is tracked; session state is not.\n")
	for _, p := range localOnlyPatterns {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// EnsureGitignore writes GitignoreContent to dir/.gitignore unless the file
// exists. It reports whether a file was written.
func EnsureGitignore(dir string) (bool, error) {
	path := filepath.Join(dir, ".gitignore")

	switch _, err := os.Stat(path); {
	case err == nil:
		return false, nil
	case !os.IsNotExist(err):
		return false, fmt.Errorf("checking %s: %w", path, err)
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return false, fmt.Errorf("creating %s: %w", dir, err)
	}
	//nolint:gosec // .gitignore is meant to be world-readable.
	if err := os.WriteFile(path, []byte(GitignoreContent()), 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}
