// Command cachectl is a small operator tool for inspecting and warming a
// component cache without standing up the full worker runtime around it.
package main

import (
	"fmt"
	"os"

	"github.com/wasmcache/component-cache/cmd/cachectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
