// Command reqsync moves requestable storage slots between a root layer and a
// child layer.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roach88/reqsync/internal/cli"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	cmd := cli.NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintf(errOut, "Error: %v\n", err)
		}
		// Errors not raised by a command come from cobra's flag and
		// argument validation.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			return cli.ExitCommandError
		}
		return exitErr.Code
	}
	return cli.ExitSuccess
}
