// Package main is the entry point for the srouter software router.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/srouter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
