// Command mascril runs scripted measurement sweeps over lab instruments.
package main

import (
	"fmt"
	"os"

	"github.com/banshee-data/mascril/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
