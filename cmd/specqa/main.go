// Command specqa answers questions about a corpus of product specifications
// with cited, retrieval-grounded answers. It provides a CLI interface (via
// Cobra) and an HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/specqa-go/cmd/specqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
