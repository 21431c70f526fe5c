// Package main is the entry point for the nfcsniff ISO14443 sniffer.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/nfcsniff/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
