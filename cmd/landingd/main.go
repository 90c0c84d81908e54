package main

import (
	"context"
	"fmt"
	"os"

	"landing-ops/backend/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "landingd:", err)
		os.Exit(1)
	}
}
