package main

import (
	"os"

	"github.com/tenderscout/tenderscout/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
