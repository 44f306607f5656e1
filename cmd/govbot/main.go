// Command govbot runs the governance bot core and its maintenance tools.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/govbot/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "govbot:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
