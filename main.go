// Package main is the entry point for the tcpflow stream reassembly tool.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/tcpflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
