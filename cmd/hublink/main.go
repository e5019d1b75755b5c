package main

import (
	"os"

	"github.com/majorcontext/hublink/cmd/hublink/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
