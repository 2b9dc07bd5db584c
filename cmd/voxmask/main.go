// Package main is the entry point for the voxmask CLI.
//
// Usage:
//
//	voxmask [flags] <command> [args]
//
// Commands:
//
//	anonymize  - Replace speaker embeddings with synthetic substitutes
//	stats      - Build a per-dimension calibration file from reference batches
//	inspect    - Show the contents of an embedding batch file
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/voxmask/voxmask/go/cmd/voxmask/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
