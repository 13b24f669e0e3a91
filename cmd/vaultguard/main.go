// Package main is the entry point for the vaultguard CLI.
package main

import (
	"os"

	"github.com/soledad-rivas/vaultguard/cmd/vaultguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
