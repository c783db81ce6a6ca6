// Command tensorsched exercises the scheduler standalone: bench runs a
// synthetic multi-device workload through it, inspect prints queue depths.
// Neither subcommand is part of the scheduler module's public surface; they
// exist so the module can be driven and observed without embedding it in a
// host product.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
