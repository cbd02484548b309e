// Package main implements the cvet CLI. It provides commands for analyzing
// C source trees and inspecting the intermediate analysis artifacts.
package main

import (
	"os"

	"github.com/quarle/cvet/cmd/cvet/commands"
)

var version = "dev"

func main() {
	commands.RootCmd.Version = version
	commands.RootCmd.SetVersionTemplate(`cvet version {{.Version}}
`)

	if err := commands.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
