// leadctl is the operator CLI for the leadbot knowledge base, sessions and
// lead workbook. It talks to the same store as the server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
