// Command proxysync runs the game/render scene proxy demo and its tools.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/proxysync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
