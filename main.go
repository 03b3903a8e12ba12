// Package main is the entry point for the vesper capture-to-stream collector.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/vesper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
