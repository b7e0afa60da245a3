// Package main provides the CLI entry point for programmator.
package main

import (
	"os"

	"github.com/ticketloop/programmator/internal/cmd"
)

// Set via -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)
	os.Exit(cmd.Execute())
}
