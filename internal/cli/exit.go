package cli

import (
	"github.com/rshade/finsync/internal/apierr"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitAuth        = 3
	ExitUnavailable = 4
	ExitNotFound    = 5
	ExitCancelled   = 130
)

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch apierr.KindOf(err) {
	case apierr.KindValidation:
		return ExitUsage
	case apierr.KindUnauthenticated, apierr.KindInvalidCredentials, apierr.KindProviderError:
		return ExitAuth
	case apierr.KindNetwork, apierr.KindTimeout:
		return ExitUnavailable
	case apierr.KindNotFound:
		return ExitNotFound
	case apierr.KindUserCancelled:
		return ExitCancelled
	}
	return ExitFailure
}
