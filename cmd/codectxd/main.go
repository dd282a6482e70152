// Package main provides the entry point for the codectxd CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/codectx/cmd/codectxd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
