package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/vinayprograms/renderkit/cmd/renderkit/commands"
)

func main() {
	rootCmd := commands.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		// The run summary already reports failed jobs.
		if !errors.Is(err, commands.ErrJobsFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
