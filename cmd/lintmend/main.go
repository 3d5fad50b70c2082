package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/lintmend/lintmend/internal/cli"
	"github.com/lintmend/lintmend/internal/orchestrator"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, orchestrator.ErrHalted) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}
