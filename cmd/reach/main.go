package main

import (
	"os"

	"github.com/quietreach/reach-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
