// Command kfreplay records, stores, validates and replays scene keyframes.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/kfreplay/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
