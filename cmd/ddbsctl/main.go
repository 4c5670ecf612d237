// Package main provides the entry point for ddbsctl.
//
// ddbsctl is the command-line administration tool for a ddbs cluster:
// it registers backends, triggers cluster init and derived-table
// builds, and runs ad hoc SQL statements against the control node's
// RPC surface (§6.1).
package main

import (
	"fmt"
	"os"

	"github.com/ddbsgo/ddbs/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
