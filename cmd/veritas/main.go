// Command veritas classifies text and URLs as fake or authentic news,
// one at a time, in batches from manifest files, or over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/ppiankov/veritas/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
