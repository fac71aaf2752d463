// Package main is the entry point for the sessionkeeper CLI.
package main

import (
	"os"

	"github.com/jmylchreest/sessionkeeper/cmd/sessionkeeper/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
