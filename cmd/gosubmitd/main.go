// Command gosubmitd runs the SMTP submission listener and manages the
// Redis-backed principal and credential records it authenticates against.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
