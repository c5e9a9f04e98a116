// Package main provides the entry point for the chunkhound CLI.
package main

import (
	"os"

	"github.com/ofriw/chunkhound-sub000/cmd/chunkhound/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
