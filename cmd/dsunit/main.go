// Command dsunit applies, verifies and exports database datasets.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/dsunit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		code := cli.GetExitCode(err)
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			// Cobra argument and flag errors are not reported by the commands.
			fmt.Fprintln(os.Stderr, err)
			code = cli.ExitCommandError
		}
		os.Exit(code)
	}
}
