package main

import (
	"os"

	"github.com/unibranch/ubr/cmd/ubr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
