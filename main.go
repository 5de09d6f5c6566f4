// Package main provides a banner entry point for rvfront.
// rvfront is a cycle-level instruction-fetch front end -- branch prediction
// unit and register renamer -- built on Akita.
//
// For the full CLI, use: go run ./cmd/rvfront
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rvfront - RISC-V superscalar instruction-fetch front end")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: rvfront [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to front-end configuration JSON file")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rvfront' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rvfront' instead.")
	}
}
