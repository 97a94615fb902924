// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

// Command washhouse is the operator CLI for the Washhouse fleet:
// machine reservation and lifecycle commands, service status, and
// access token management.
package main

import (
	"fmt"
	"os"

	"github.com/washhouse-systems/washhouse/cmd/washhouse/commands"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output return an ExitError
		// with the desired exit code. Don't print a redundant
		// "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
