// Command ucictl inspects UCI traffic and exports a chip over gRPC.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ucictl: %v\n", err)
		os.Exit(1)
	}
}
