// Package main is the recap-api command: the HTTP server plus the operator
// commands for migrations, one-shot processor batches, ledger reconciliation
// and coupon code generation.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
