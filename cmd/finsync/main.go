// Command finsync is the command line client for the finsync backend.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rshade/finsync/internal/cli"
	"github.com/rshade/finsync/pkg/version"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

// run executes the CLI with args and returns the process exit code.
func run(ctx context.Context, args []string) int {
	root := cli.NewRootCmd(version.GetVersion())
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return cli.ExitCode(err)
}
