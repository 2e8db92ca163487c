package main

import (
	"os"

	"github.com/harun/tagqueue/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
