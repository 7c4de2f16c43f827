// Command livedoc stores documents and follows live query results.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/livedoc/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands that already reported through the formatter return
		// ExitErrors; anything else is printed here.
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
