// Command eventidx indexes agent market events from chain checkpoints.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/eventidx/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
