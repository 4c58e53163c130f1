// Command rtx evaluates the trust posture of a project's dependency graph
// and exits non-zero when policy is violated, for use as a CI gate.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsageError)
	}
}
