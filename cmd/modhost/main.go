// Command modhost runs module graphs from the command line.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/modhost/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	err := cmd.ExecuteContext(context.Background())
	if err != nil && !cli.IsReported(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
