// Package main is ledgerctl, the maintenance CLI: it recomputes derived
// balances, verifies the stock registry, previews document numbers, issues
// tokens and prints audit history against the configured storage.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
