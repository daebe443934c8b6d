// Package main provides the dials CLI.
package main

import (
	"os"

	"github.com/mesh-intelligence/dials/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
